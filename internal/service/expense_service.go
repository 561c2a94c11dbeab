package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
	"github.com/noah-isme/hostel-fee-api/pkg/export"
)

type expenseStore interface {
	List(ctx context.Context) ([]*models.Expense, error)
	FindByID(ctx context.Context, id string) (*models.Expense, error)
	Create(ctx context.Context, rec *models.Expense) (*models.Expense, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Expense, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type expensePaidCounter interface {
	CountPaid(ctx context.Context) (int, error)
}

// CreateExpenseRequest holds the payload for recording an expense.
type CreateExpenseRequest struct {
	Category      string  `json:"category" validate:"required,oneof=maintenance salary rent utility grocery wifi other"`
	Description   string  `json:"description" validate:"required"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	PaymentMethod string  `json:"paymentMethod" validate:"required,oneof=cash upi bank_transfer cheque"`
	RecipientName string  `json:"recipientName" validate:"required"`
	Notes         string  `json:"notes"`
}

// UpdateExpenseRequest holds the payload for an explicit admin edit.
type UpdateExpenseRequest = CreateExpenseRequest

// Export MIME types keyed by format.
const (
	exportFormatCSV = "csv"
	exportFormatPDF = "pdf"
)

// ExportResult carries rendered report bytes with transport metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExpenseService handles bookkeeping use-cases: expense CRUD, cash-flow
// summaries and report exports.
type ExpenseService struct {
	expenses  expenseStore
	students  expensePaidCounter
	settings  paymentSettings
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	monthOf   func() string
}

// NewExpenseService constructs the expense service.
func NewExpenseService(expenses expenseStore, students expensePaidCounter, settings paymentSettings, validate *validator.Validate, logger *zap.Logger) *ExpenseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpenseService{
		expenses:  expenses,
		students:  students,
		settings:  settings,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		monthOf:   currentMonth,
	}
}

// WithMonth overrides the current-month source, used by summary tests.
func (s *ExpenseService) WithMonth(fn func() string) *ExpenseService {
	if fn != nil {
		s.monthOf = fn
	}
	return s
}

// List returns expenses newest first by expense date.
func (s *ExpenseService) List(ctx context.Context) ([]*models.Expense, error) {
	expenses, err := s.expenses.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// Get returns one expense by id.
func (s *ExpenseService) Get(ctx context.Context, id string) (*models.Expense, error) {
	return s.expenses.FindByID(ctx, id)
}

// Create records a new expense.
func (s *ExpenseService) Create(ctx context.Context, req CreateExpenseRequest, createdBy string) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	expense := &models.Expense{
		Category:      req.Category,
		Description:   req.Description,
		Amount:        req.Amount,
		Date:          req.Date,
		PaymentMethod: req.PaymentMethod,
		RecipientName: req.RecipientName,
		Notes:         req.Notes,
		CreatedBy:     createdBy,
	}
	return s.expenses.Create(ctx, expense)
}

// Update applies an explicit admin edit to an expense.
func (s *ExpenseService) Update(ctx context.Context, id string, req UpdateExpenseRequest) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	return s.expenses.Update(ctx, id, map[string]any{
		"category":      req.Category,
		"description":   req.Description,
		"amount":        req.Amount,
		"date":          req.Date,
		"paymentMethod": req.PaymentMethod,
		"recipientName": req.RecipientName,
		"notes":         req.Notes,
	})
}

// Delete removes one expense.
func (s *ExpenseService) Delete(ctx context.Context, id string) (bool, error) {
	return s.expenses.Delete(ctx, id)
}

// ClearAll deletes every expense and returns how many were removed.
func (s *ExpenseService) ClearAll(ctx context.Context) (int, error) {
	expenses, err := s.expenses.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range expenses {
		existed, err := s.expenses.Delete(ctx, e.ID)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

// Summary aggregates totals by category, the total for the given month
// (YYYY-MM, defaulting to the current one) and the cash flow against
// collected fees.
func (s *ExpenseService) Summary(ctx context.Context, month string) (*models.ExpenseSummary, error) {
	if month == "" {
		month = s.monthOf()
	} else if err := s.validator.Var(month, "datetime=2006-01"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "month must be formatted YYYY-MM")
	}

	expenses, err := s.expenses.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.ExpenseSummary{
		TotalsByCategory: make(map[string]float64),
		Month:            month,
	}
	for _, e := range expenses {
		summary.TotalAmount += e.Amount
		summary.TotalsByCategory[e.Category] += e.Amount
		if strings.HasPrefix(e.Date, month) {
			summary.MonthlyTotal += e.Amount
		}
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	paid, err := s.students.CountPaid(ctx)
	if err != nil {
		return nil, err
	}
	summary.CollectedFees = settings.MonthlyFee * float64(paid)
	summary.NetCashFlow = summary.CollectedFees - summary.MonthlyTotal
	return summary, nil
}

// Export renders the expense log as a downloadable CSV or PDF report.
func (s *ExpenseService) Export(ctx context.Context, format string) (*ExportResult, error) {
	expenses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Category", "Description", "Amount", "Payment Method", "Recipient", "Notes"},
	}
	var total float64
	for _, e := range expenses {
		total += e.Amount
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":           e.Date,
			"Category":       e.Category,
			"Description":    e.Description,
			"Amount":         fmt.Sprintf("%.2f", e.Amount),
			"Payment Method": e.PaymentMethod,
			"Recipient":      e.RecipientName,
			"Notes":          e.Notes,
		})
	}

	switch format {
	case exportFormatCSV, "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    "expenses.csv",
		}, nil
	case exportFormatPDF:
		title := fmt.Sprintf("%s expense report", settings.HostelName)
		content, err := s.pdf.Render(dataset, title, []string{
			fmt.Sprintf("Total: %.2f", total),
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    "expenses.pdf",
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func currentMonth() string {
	return time.Now().UTC().Format("2006-01")
}
