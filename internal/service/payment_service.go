package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
	"github.com/noah-isme/hostel-fee-api/pkg/jobs"
)

// Job types handled by the payment verification pipeline.
const (
	jobPaymentProcess  = "payment.process"
	jobPaymentComplete = "payment.complete"
)

type paymentStudents interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Student, error)
}

type paymentSettings interface {
	Get(ctx context.Context) (*models.HostelSettings, error)
}

type paymentNotifier interface {
	NotifyPaymentInitiated(ctx context.Context, student *models.Student, amount float64)
	NotifyPaymentCompleted(ctx context.Context, student *models.Student, amount float64, transactionID string)
}

// InitiatePaymentRequest starts a simulated UPI payment for a resident.
type InitiatePaymentRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// PaymentConfig tunes the simulated verification delays.
type PaymentConfig struct {
	ProcessingDelay time.Duration
	CompletionDelay time.Duration
}

// PaymentService runs the simulated UPI flow: a tracking record moves
// pending -> processing -> completed through delayed background jobs, and
// completion marks the student's fee as paid. Trackings are process-local
// and never persisted.
type PaymentService struct {
	students  paymentStudents
	settings  paymentSettings
	notifier  paymentNotifier
	queue     *jobs.Queue
	config    PaymentConfig
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	clock     func() time.Time

	mu        sync.Mutex
	trackings map[string]*models.PaymentTracking
	order     []string
}

// NewPaymentService constructs the payment service and registers its job
// handlers on the queue.
func NewPaymentService(students paymentStudents, settings paymentSettings, notifier paymentNotifier, queue *jobs.Queue, config PaymentConfig, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ProcessingDelay <= 0 {
		config.ProcessingDelay = 2 * time.Second
	}
	if config.CompletionDelay <= 0 {
		config.CompletionDelay = 3 * time.Second
	}
	s := &PaymentService{
		students:  students,
		settings:  settings,
		notifier:  notifier,
		queue:     queue,
		config:    config,
		validator: validate,
		logger:    logger,
		clock:     time.Now,
		trackings: make(map[string]*models.PaymentTracking),
	}
	if queue != nil {
		queue.Register(jobPaymentProcess, s.handleProcess)
		queue.Register(jobPaymentComplete, s.handleComplete)
	}
	return s
}

// WithClock overrides the time source.
func (s *PaymentService) WithClock(clock func() time.Time) *PaymentService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithMetrics attaches payment counters.
func (s *PaymentService) WithMetrics(metrics *MetricsService) *PaymentService {
	s.metrics = metrics
	return s
}

// Initiate starts a payment attempt for the configured monthly fee.
func (s *PaymentService) Initiate(ctx context.Context, req InitiatePaymentRequest) (*models.PaymentTracking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.EnablePayNow {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "online payments are disabled")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	tracking := &models.PaymentTracking{
		ID:            uuid.NewString(),
		StudentID:     student.ID,
		Amount:        settings.MonthlyFee,
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.PaymentModeUPI,
		InitiatedAt:   s.clock().UTC(),
	}

	s.mu.Lock()
	s.trackings[tracking.ID] = tracking
	s.order = append(s.order, tracking.ID)
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.NotifyPaymentInitiated(ctx, student, tracking.Amount)
	}

	if s.queue != nil {
		s.queue.EnqueueAfter(jobs.Job{
			ID:      tracking.ID,
			Type:    jobPaymentProcess,
			Payload: tracking.ID,
		}, s.config.ProcessingDelay)
	}

	copied := *tracking
	return &copied, nil
}

// List returns payment attempts newest first.
func (s *PaymentService) List(ctx context.Context) ([]*models.PaymentTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PaymentTracking, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.trackings[id]
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InitiatedAt.After(out[j].InitiatedAt)
	})
	return out, nil
}

// Get returns one payment attempt.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracking, ok := s.trackings[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	copied := *tracking
	return &copied, nil
}

func (s *PaymentService) handleProcess(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if !s.transition(id, models.PaymentStatusPending, models.PaymentStatusProcessing) {
		return nil
	}

	s.queue.EnqueueAfter(jobs.Job{
		ID:      id,
		Type:    jobPaymentComplete,
		Payload: id,
	}, s.config.CompletionDelay)
	return nil
}

func (s *PaymentService) handleComplete(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	s.mu.Lock()
	tracking, found := s.trackings[id]
	if !found || tracking.Status != models.PaymentStatusProcessing {
		s.mu.Unlock()
		return nil
	}
	studentID := tracking.StudentID
	amount := tracking.Amount
	s.mu.Unlock()

	student, err := s.students.Update(ctx, studentID, map[string]any{
		"feeStatus":   models.FeeStatusPaid,
		"paymentMode": models.PaymentModeUPI,
		"updatedBy":   models.UpdatedByAdmin,
	})
	if err != nil {
		s.fail(id)
		s.metrics.RecordPayment(models.PaymentStatusFailed)
		return fmt.Errorf("mark student paid: %w", err)
	}

	now := s.clock().UTC()
	transactionID := fmt.Sprintf("UPI%d", now.UnixMilli())

	s.mu.Lock()
	tracking.Status = models.PaymentStatusCompleted
	tracking.CompletedAt = &now
	tracking.TransactionID = transactionID
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.NotifyPaymentCompleted(ctx, student, amount, transactionID)
	}
	s.metrics.RecordPayment(models.PaymentStatusCompleted)
	s.logger.Info("payment verified",
		zap.String("tracking_id", id),
		zap.String("student_id", studentID),
		zap.String("transaction_id", transactionID))
	return nil
}

// transition advances a tracking between two states; terminal states and
// unknown ids are left untouched.
func (s *PaymentService) transition(id, from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracking, ok := s.trackings[id]
	if !ok || tracking.Status != from {
		return false
	}
	tracking.Status = to
	return true
}

func (s *PaymentService) fail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tracking, ok := s.trackings[id]; ok && tracking.Status == models.PaymentStatusProcessing {
		tracking.Status = models.PaymentStatusFailed
		now := s.clock().UTC()
		tracking.CompletedAt = &now
	}
}
