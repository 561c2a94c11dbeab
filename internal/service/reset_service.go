package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

type resetSettings interface {
	Get(ctx context.Context) (*models.HostelSettings, error)
	RecordReset(ctx context.Context, t time.Time) error
}

type resetStudents interface {
	List(ctx context.Context) ([]*models.Student, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Student, error)
}

// ResetStatus reports whether a new fee-collection cycle has started.
type ResetStatus struct {
	ResetNeeded bool       `json:"resetNeeded"`
	LastReset   *time.Time `json:"lastReset,omitempty"`
	CurrentDate time.Time  `json:"currentDate"`
}

// ResetResult summarises one reset pass.
type ResetResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	StudentsReset int    `json:"studentsReset"`
}

// ResetService performs the once-per-calendar-month fee reset: every
// student back to pending with the payment mode cleared. The settings
// timestamp advances only after a fully successful pass, so an
// interrupted pass is retried on the next invocation.
type ResetService struct {
	settings resetSettings
	students resetStudents
	clock    func() time.Time
	metrics  *MetricsService
	logger   *zap.Logger

	mu sync.Mutex
}

// NewResetService constructs the reset service.
func NewResetService(settings resetSettings, students resetStudents, logger *zap.Logger) *ResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetService{settings: settings, students: students, clock: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (s *ResetService) WithClock(clock func() time.Time) *ResetService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithMetrics attaches reset counters.
func (s *ResetService) WithMetrics(metrics *MetricsService) *ResetService {
	s.metrics = metrics
	return s
}

// CheckNeeded reports whether the current calendar month differs from the
// month of the last recorded reset. A missing timestamp means a reset has
// never run.
func (s *ResetService) CheckNeeded(ctx context.Context) (ResetStatus, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return ResetStatus{}, err
	}
	now := s.clock().UTC()
	status := ResetStatus{
		LastReset:   settings.LastMonthlyReset,
		CurrentDate: now,
	}
	status.ResetNeeded = settings.LastMonthlyReset == nil || !sameCalendarMonth(*settings.LastMonthlyReset, now)
	return status, nil
}

// CheckAndReset runs the reset pass when a new month has started. Calling
// it again within the same month is a no-op. One pass runs at a time.
func (s *ResetService) CheckAndReset(ctx context.Context) (ResetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.CheckNeeded(ctx)
	if err != nil {
		return ResetResult{}, err
	}
	if !status.ResetNeeded {
		return ResetResult{Success: true, Message: "fee statuses already reset this month"}, nil
	}

	students, err := s.students.List(ctx)
	if err != nil {
		return ResetResult{}, err
	}

	reset := 0
	for _, st := range students {
		if _, err := s.students.Update(ctx, st.ID, map[string]any{
			"feeStatus":   models.FeeStatusPending,
			"paymentMode": "",
			"updatedBy":   models.UpdatedByAdmin,
		}); err != nil {
			s.logger.Error("monthly reset interrupted",
				zap.String("student_id", st.ID),
				zap.Int("students_reset", reset),
				zap.Error(err))
			return ResetResult{StudentsReset: reset},
				appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "monthly reset interrupted")
		}
		reset++
	}

	if err := s.settings.RecordReset(ctx, status.CurrentDate); err != nil {
		// The timestamp stays in the previous month; the next invocation
		// re-runs the pass, which is idempotent.
		s.logger.Error("failed to record monthly reset", zap.Error(err))
		return ResetResult{StudentsReset: reset}, err
	}

	s.metrics.RecordResetPass(reset)
	s.logger.Info("monthly fee reset complete", zap.Int("students_reset", reset))
	return ResetResult{
		Success:       true,
		Message:       "monthly fee reset complete",
		StudentsReset: reset,
	}, nil
}

func sameCalendarMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
