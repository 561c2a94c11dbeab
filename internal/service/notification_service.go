package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	"github.com/noah-isme/hostel-fee-api/internal/store"
)

type notificationStore interface {
	List(ctx context.Context) ([]*models.Notification, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	Create(ctx context.Context, rec *models.Notification) (*models.Notification, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Notification, error)
}

type counterSource interface {
	NextID(counter string) (int64, error)
}

// NotificationService derives alerts from fee-status transitions, keeps
// the append-only notification log, and fans each emission out to live
// listeners and an optional Redis channel.
type NotificationService struct {
	notifications notificationStore
	counters      counterSource
	redis         *redis.Client
	channel       string
	clock         func() time.Time
	metrics       *MetricsService
	logger        *zap.Logger

	mu           sync.Mutex
	listeners    map[int]func(*models.Notification)
	nextListener int
}

// NewNotificationService constructs the notification service. The Redis
// client may be nil; fan-out is then skipped.
func NewNotificationService(notifications notificationStore, counters counterSource, redisClient *redis.Client, channel string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		counters:      counters,
		redis:         redisClient,
		channel:       channel,
		clock:         time.Now,
		logger:        logger,
		listeners:     make(map[int]func(*models.Notification)),
	}
}

// WithClock overrides the time source.
func (s *NotificationService) WithClock(clock func() time.Time) *NotificationService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithMetrics attaches emission counters.
func (s *NotificationService) WithMetrics(metrics *MetricsService) *NotificationService {
	s.metrics = metrics
	return s
}

// Subscribe registers a listener invoked synchronously for every new
// notification. The returned function deregisters it.
func (s *NotificationService) Subscribe(fn func(*models.Notification)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// List returns notifications newest first, optionally only unread ones.
func (s *NotificationService) List(ctx context.Context, unreadOnly bool) ([]*models.Notification, error) {
	records, err := s.notifications.List(ctx)
	if err != nil {
		return nil, err
	}
	if unreadOnly {
		unread := records[:0:0]
		for _, n := range records {
			if !n.IsRead {
				unread = append(unread, n)
			}
		}
		records = unread
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return numericID(records[i].ID) > numericID(records[j].ID)
	})
	return records, nil
}

// MarkAsRead flips one notification to read. Already-read records are
// returned unchanged; the flag never goes back.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	return s.notifications.Update(ctx, id, map[string]any{"isRead": true})
}

// MarkAllAsRead flips every unread notification and returns how many
// were touched.
func (s *NotificationService) MarkAllAsRead(ctx context.Context) (int, error) {
	records, err := s.notifications.List(ctx)
	if err != nil {
		return 0, err
	}
	touched := 0
	for _, n := range records {
		if n.IsRead {
			continue
		}
		if _, err := s.notifications.Update(ctx, n.ID, map[string]any{"isRead": true}); err != nil {
			return touched, err
		}
		touched++
	}
	return touched, nil
}

// NotifyFeeStatusChange evaluates the emission rules for one fee-status
// transition.
func (s *NotificationService) NotifyFeeStatusChange(ctx context.Context, previous, updated *models.Student) {
	if updated == nil || updated.FeeStatus != models.FeeStatusPaid {
		return
	}

	switch updated.UpdatedBy {
	case models.UpdatedByStudent:
		if previous == nil || previous.FeeStatus != models.FeeStatusPending {
			return
		}
		method := updated.PaymentMode
		if method == "" {
			method = "not specified"
		}
		s.emit(ctx, &models.Notification{
			Type:          models.NotificationPaymentClaimed,
			Title:         "Payment Claimed",
			Message:       fmt.Sprintf("%s claims to have paid the monthly fee (method: %s)", updated.Name, method),
			StudentID:     updated.ID,
			StudentName:   updated.Name,
			PaymentMethod: updated.PaymentMode,
			Priority:      models.PriorityHigh,
		})
	case models.UpdatedByAdmin:
		s.emit(ctx, &models.Notification{
			Type:          models.NotificationPaymentReceived,
			Title:         "Payment Received",
			Message:       fmt.Sprintf("Payment from %s recorded by admin", updated.Name),
			StudentID:     updated.ID,
			StudentName:   updated.Name,
			PaymentMethod: updated.PaymentMode,
			Priority:      models.PriorityMedium,
		})
	}
}

// NotifyPaymentInitiated announces that a UPI payment entered processing.
func (s *NotificationService) NotifyPaymentInitiated(ctx context.Context, student *models.Student, amount float64) {
	s.emit(ctx, &models.Notification{
		Type:          models.NotificationPaymentReceived,
		Title:         "Payment Processing",
		Message:       fmt.Sprintf("UPI payment of %.2f from %s is being processed", amount, student.Name),
		StudentID:     student.ID,
		StudentName:   student.Name,
		Amount:        amount,
		PaymentMethod: models.PaymentModeUPI,
		Priority:      models.PriorityMedium,
	})
}

// NotifyPaymentCompleted announces an automatically verified UPI payment.
func (s *NotificationService) NotifyPaymentCompleted(ctx context.Context, student *models.Student, amount float64, transactionID string) {
	s.emit(ctx, &models.Notification{
		Type:          models.NotificationPaymentReceived,
		Title:         "Payment Confirmed",
		Message:       fmt.Sprintf("UPI payment of %.2f from %s confirmed (txn %s)", amount, student.Name, transactionID),
		StudentID:     student.ID,
		StudentName:   student.Name,
		Amount:        amount,
		PaymentMethod: models.PaymentModeUPI,
		Priority:      models.PriorityHigh,
	})
}

// NotifySystemAlert records an operator-facing alert, such as a failed
// reset pass.
func (s *NotificationService) NotifySystemAlert(ctx context.Context, title, message string) {
	s.emit(ctx, &models.Notification{
		Type:     models.NotificationSystemAlert,
		Title:    title,
		Message:  message,
		Priority: models.PriorityLow,
	})
}

// emit assigns a monotonic id, invokes the notification listeners, then
// appends the record, which in turn fires the generic data listeners.
func (s *NotificationService) emit(ctx context.Context, n *models.Notification) {
	n.ID = s.nextID()
	n.Timestamp = s.clock().UTC()
	n.IsRead = false

	s.mu.Lock()
	fns := make([]func(*models.Notification), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("notification listener panicked", zap.Any("panic", r))
				}
			}()
			fn(n)
		}()
	}

	if _, err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Error("failed to persist notification",
			zap.String("type", n.Type), zap.Error(err))
		return
	}

	s.metrics.RecordNotification(n.Type)
	s.publish(ctx, n)
}

// publish pushes the notification JSON onto the configured Redis channel.
// Redis being down or absent never affects the caller.
func (s *NotificationService) publish(ctx context.Context, n *models.Notification) {
	if s.redis == nil || s.channel == "" {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.redis.Publish(pctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("notification publish failed", zap.Error(err))
	}
}

func (s *NotificationService) nextID() string {
	if s.counters != nil {
		if n, err := s.counters.NextID(store.CounterNotificationID); err == nil {
			return strconv.FormatInt(n, 10)
		}
		s.logger.Warn("notification counter unavailable, using time-based id")
	}
	return strconv.FormatInt(s.clock().UnixNano(), 10)
}

func numericID(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
