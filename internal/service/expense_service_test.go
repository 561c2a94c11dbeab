package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

type mockExpenseStore struct {
	mu       sync.Mutex
	expenses map[string]*models.Expense
	order    []string
}

func newMockExpenseStore() *mockExpenseStore {
	return &mockExpenseStore{expenses: make(map[string]*models.Expense)}
}

func (m *mockExpenseStore) List(ctx context.Context) ([]*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Expense, 0, len(m.order))
	for _, id := range m.order {
		copied := *m.expenses[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockExpenseStore) FindByID(ctx context.Context, id string) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	copied := *e
	return &copied, nil
}

func (m *mockExpenseStore) Create(ctx context.Context, rec *models.Expense) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("e%d", len(m.order)+1)
	}
	rec.CreatedAt = time.Now().UTC()
	copied := *rec
	m.expenses[rec.ID] = &copied
	m.order = append(m.order, rec.ID)
	return rec, nil
}

func (m *mockExpenseStore) Update(ctx context.Context, id string, fields map[string]any) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	for key, value := range fields {
		switch key {
		case "category":
			e.Category = value.(string)
		case "description":
			e.Description = value.(string)
		case "amount":
			e.Amount = value.(float64)
		case "date":
			e.Date = value.(string)
		case "paymentMethod":
			e.PaymentMethod = value.(string)
		case "recipientName":
			e.RecipientName = value.(string)
		case "notes":
			e.Notes = value.(string)
		}
	}
	copied := *e
	return &copied, nil
}

func (m *mockExpenseStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[id]; !ok {
		return false, nil
	}
	delete(m.expenses, id)
	for i, eid := range m.order {
		if eid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

type staticPaidCounter struct{ paid int }

func (c *staticPaidCounter) CountPaid(ctx context.Context) (int, error) {
	return c.paid, nil
}

func expenseRequest(category, date string, amount float64) CreateExpenseRequest {
	return CreateExpenseRequest{
		Category:      category,
		Description:   "monthly " + category,
		Amount:        amount,
		Date:          date,
		PaymentMethod: "cash",
		RecipientName: "Vendor",
	}
}

func newTestExpenseService(paid int) (*ExpenseService, *mockExpenseStore) {
	store := newMockExpenseStore()
	settings := &mockResetSettings{settings: models.HostelSettings{
		ID:         "hostel-settings",
		MonthlyFee: 5000,
		HostelName: "Sunrise Hostel",
	}}
	svc := NewExpenseService(store, &staticPaidCounter{paid: paid}, settings, nil, nil)
	return svc, store
}

func TestExpenseCreateAndListNewestFirst(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	ctx := context.Background()

	for _, req := range []CreateExpenseRequest{
		expenseRequest("rent", "2025-08-01", 12000),
		expenseRequest("grocery", "2025-08-15", 2300),
		expenseRequest("maintenance", "2025-07-20", 800),
	} {
		_, err := svc.Create(ctx, req, "admin")
		require.NoError(t, err)
	}

	expenses, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 3)
	assert.Equal(t, "2025-08-15", expenses[0].Date)
	assert.Equal(t, "2025-07-20", expenses[2].Date)
	assert.Equal(t, "admin", expenses[0].CreatedBy)
}

func TestExpenseCreateValidation(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	ctx := context.Background()

	cases := map[string]CreateExpenseRequest{
		"unknown category": expenseRequest("parties", "2025-08-01", 100),
		"negative amount":  expenseRequest("rent", "2025-08-01", -5),
		"bad date":         expenseRequest("rent", "01/08/2025", 100),
	}
	for name, req := range cases {
		_, err := svc.Create(ctx, req, "admin")
		require.Error(t, err, name)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, name)
	}
}

func TestExpenseSummaryMath(t *testing.T) {
	svc, _ := newTestExpenseService(4)
	svc.WithMonth(func() string { return "2025-08" })
	ctx := context.Background()

	for _, req := range []CreateExpenseRequest{
		expenseRequest("rent", "2025-08-01", 12000),
		expenseRequest("grocery", "2025-08-15", 2300),
		expenseRequest("grocery", "2025-07-15", 2100),
	} {
		_, err := svc.Create(ctx, req, "admin")
		require.NoError(t, err)
	}

	summary, err := svc.Summary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-08", summary.Month)
	assert.InDelta(t, 16400, summary.TotalAmount, 0.001)
	assert.InDelta(t, 14300, summary.MonthlyTotal, 0.001)
	assert.InDelta(t, 4400, summary.TotalsByCategory["grocery"], 0.001)
	assert.InDelta(t, 20000, summary.CollectedFees, 0.001)
	assert.InDelta(t, 5700, summary.NetCashFlow, 0.001)
}

func TestExpenseSummaryRejectsBadMonth(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	_, err := svc.Summary(context.Background(), "August 2025")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExpenseClearAll(t *testing.T) {
	svc, store := newTestExpenseService(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, expenseRequest("utility", "2025-08-10", 100), "admin")
		require.NoError(t, err)
	}

	removed, err := svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	remaining, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	removed, err = svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestExpenseExportCSV(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	ctx := context.Background()

	_, err := svc.Create(ctx, expenseRequest("wifi", "2025-08-05", 999.5), "admin")
	require.NoError(t, err)

	result, err := svc.Export(ctx, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "expenses.csv", result.Filename)

	lines := bytes.Split(bytes.TrimSpace(result.Content), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "Payment Method")
	assert.Contains(t, string(lines[1]), "999.50")
	assert.Contains(t, string(lines[1]), "wifi")
}

func TestExpenseExportPDF(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	ctx := context.Background()

	_, err := svc.Create(ctx, expenseRequest("salary", "2025-08-01", 15000), "admin")
	require.NoError(t, err)

	result, err := svc.Export(ctx, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Content, []byte("%PDF")))
}

func TestExpenseExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newTestExpenseService(0)
	_, err := svc.Export(context.Background(), "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
