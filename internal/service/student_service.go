package service

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context) ([]*models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByField(ctx context.Context, field, value string, match func(*models.Student) bool) (*models.Student, error)
	Create(ctx context.Context, rec *models.Student) (*models.Student, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Student, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type feeStatusNotifier interface {
	NotifyFeeStatusChange(ctx context.Context, previous, updated *models.Student)
}

// CreateStudentRequest holds the payload for registering a resident.
type CreateStudentRequest struct {
	Name        string `json:"name" validate:"required"`
	Mobile      string `json:"mobile" validate:"required,len=10,numeric"`
	Room        string `json:"room" validate:"required"`
	JoiningDate string `json:"joiningDate" validate:"required,datetime=2006-01-02"`
}

// UpdateStudentRequest holds the payload for editing resident details.
// Fee status is mutated only through the dedicated transition endpoint.
type UpdateStudentRequest struct {
	Name        string `json:"name" validate:"required"`
	Mobile      string `json:"mobile" validate:"required,len=10,numeric"`
	Room        string `json:"room" validate:"required"`
	JoiningDate string `json:"joiningDate" validate:"required,datetime=2006-01-02"`
}

// UpdateFeeStatusRequest holds a fee status transition.
type UpdateFeeStatusRequest struct {
	FeeStatus   string `json:"feeStatus" validate:"required,oneof=pending paid"`
	PaymentMode string `json:"paymentMode" validate:"omitempty,oneof=upi cash"`
	UpdatedBy   string `json:"updatedBy" validate:"required,oneof=student admin"`
}

// StudentService handles roster and fee-status use-cases.
type StudentService struct {
	students  studentStore
	notifier  feeStatusNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service. The notifier may be
// nil, in which case transitions are applied without emissions.
func NewStudentService(students studentStore, notifier feeStatusNotifier, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, notifier: notifier, validator: validate, logger: logger}
}

// List returns the roster sorted by name.
func (s *StudentService) List(ctx context.Context) ([]*models.Student, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(students, func(i, j int) bool {
		return students[i].Name < students[j].Name
	})
	return students, nil
}

// Get returns one resident by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return student, nil
}

// FindByMobile resolves the resident behind a portal QR scan.
func (s *StudentService) FindByMobile(ctx context.Context, mobile string) (*models.Student, error) {
	if err := s.validator.Var(mobile, "required,len=10,numeric"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mobile number")
	}
	return s.students.FindByField(ctx, "mobile", mobile, func(st *models.Student) bool {
		return st.Mobile == mobile
	})
}

// Create registers a new resident with a pending fee status.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	if existing, err := s.students.FindByField(ctx, "mobile", req.Mobile, func(st *models.Student) bool {
		return st.Mobile == req.Mobile
	}); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "mobile number already registered")
	}

	student := &models.Student{
		Name:        req.Name,
		Mobile:      req.Mobile,
		Room:        req.Room,
		JoiningDate: req.JoiningDate,
		FeeStatus:   models.FeeStatusPending,
	}
	return s.students.Create(ctx, student)
}

// Update edits resident details.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	return s.students.Update(ctx, id, map[string]any{
		"name":        req.Name,
		"mobile":      req.Mobile,
		"room":        req.Room,
		"joiningDate": req.JoiningDate,
	})
}

// Delete removes a resident. Deleting an unknown id is not an error.
func (s *StudentService) Delete(ctx context.Context, id string) (bool, error) {
	return s.students.Delete(ctx, id)
}

// UpdateFeeStatus applies a fee status transition. Moving to pending
// always clears the payment mode; qualifying transitions to paid emit a
// notification.
func (s *StudentService) UpdateFeeStatus(ctx context.Context, id string, req UpdateFeeStatusRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee status payload")
	}

	previous, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"feeStatus": req.FeeStatus,
		"updatedBy": req.UpdatedBy,
	}
	if req.FeeStatus == models.FeeStatusPending {
		fields["paymentMode"] = ""
	} else if req.PaymentMode != "" {
		fields["paymentMode"] = req.PaymentMode
	}

	updated, err := s.students.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyFeeStatusChange(ctx, previous, updated)
	}
	return updated, nil
}

// SelfReportPayment is the portal flow: the resident identified by the
// mobile number marks their own fee as paid. The actor is always the
// student regardless of what the client sends.
func (s *StudentService) SelfReportPayment(ctx context.Context, mobile, paymentMode string) (*models.Student, error) {
	student, err := s.FindByMobile(ctx, mobile)
	if err != nil {
		return nil, err
	}
	return s.UpdateFeeStatus(ctx, student.ID, UpdateFeeStatusRequest{
		FeeStatus:   models.FeeStatusPaid,
		PaymentMode: paymentMode,
		UpdatedBy:   models.UpdatedByStudent,
	})
}

// CountPaid returns how many residents have settled the current period.
func (s *StudentService) CountPaid(ctx context.Context) (int, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return 0, err
	}
	paid := 0
	for _, st := range students {
		if st.FeeStatus == models.FeeStatusPaid {
			paid++
		}
	}
	return paid, nil
}
