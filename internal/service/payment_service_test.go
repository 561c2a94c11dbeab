package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
	"github.com/noah-isme/hostel-fee-api/pkg/jobs"
)

type capturePaymentNotifier struct {
	mu        sync.Mutex
	initiated []string
	completed []string
	lastTxn   string
}

func (n *capturePaymentNotifier) NotifyPaymentInitiated(ctx context.Context, student *models.Student, amount float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.initiated = append(n.initiated, student.ID)
}

func (n *capturePaymentNotifier) NotifyPaymentCompleted(ctx context.Context, student *models.Student, amount float64, transactionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, student.ID)
	n.lastTxn = transactionID
}

func newTestPaymentService(payNow bool) (*PaymentService, *mockStudentStore, *capturePaymentNotifier) {
	students := newMockStudentStore(sampleStudent("s1", "Ravi", "9876543210"))
	settings := &mockResetSettings{settings: models.HostelSettings{
		ID:           "hostel-settings",
		MonthlyFee:   5000,
		EnablePayNow: payNow,
	}}
	notifier := &capturePaymentNotifier{}
	// The queue is never started; handlers are invoked directly.
	queue := jobs.NewQueue("payments-test", jobs.QueueConfig{Workers: 1, BufferSize: 8})
	svc := NewPaymentService(students, settings, notifier, queue, PaymentConfig{
		ProcessingDelay: time.Millisecond,
		CompletionDelay: time.Millisecond,
	}, nil, nil)
	return svc, students, notifier
}

func TestPaymentInitiate(t *testing.T) {
	svc, _, notifier := newTestPaymentService(true)
	ctx := context.Background()

	tracking, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, tracking.Status)
	assert.Equal(t, "s1", tracking.StudentID)
	assert.InDelta(t, 5000, tracking.Amount, 0.001)
	assert.Equal(t, models.PaymentModeUPI, tracking.PaymentMethod)
	assert.Equal(t, []string{"s1"}, notifier.initiated)
}

func TestPaymentInitiateDisabled(t *testing.T) {
	svc, _, _ := newTestPaymentService(false)

	_, err := svc.Initiate(context.Background(), InitiatePaymentRequest{StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.FromError(err).Status)
}

func TestPaymentInitiateUnknownStudent(t *testing.T) {
	svc, _, _ := newTestPaymentService(true)

	_, err := svc.Initiate(context.Background(), InitiatePaymentRequest{StudentID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestPaymentFullLifecycle(t *testing.T) {
	svc, students, notifier := newTestPaymentService(true)
	ctx := context.Background()

	tracking, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s1"})
	require.NoError(t, err)

	job := jobs.Job{ID: tracking.ID, Type: jobPaymentProcess, Payload: tracking.ID}
	require.NoError(t, svc.handleProcess(ctx, job))

	current, err := svc.Get(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, current.Status)

	job.Type = jobPaymentComplete
	require.NoError(t, svc.handleComplete(ctx, job))

	completed, err := svc.Get(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, completed.Status)
	assert.Regexp(t, `^UPI\d+$`, completed.TransactionID)
	require.NotNil(t, completed.CompletedAt)

	student, err := students.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, student.FeeStatus)
	assert.Equal(t, models.PaymentModeUPI, student.PaymentMode)
	assert.Equal(t, models.UpdatedByAdmin, student.UpdatedBy)

	assert.Equal(t, []string{"s1"}, notifier.completed)
	assert.Equal(t, completed.TransactionID, notifier.lastTxn)
}

func TestPaymentCompleteRequiresProcessing(t *testing.T) {
	svc, students, notifier := newTestPaymentService(true)
	ctx := context.Background()

	tracking, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s1"})
	require.NoError(t, err)

	// Completion before processing is ignored.
	job := jobs.Job{ID: tracking.ID, Type: jobPaymentComplete, Payload: tracking.ID}
	require.NoError(t, svc.handleComplete(ctx, job))

	current, err := svc.Get(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, current.Status)
	assert.Empty(t, notifier.completed)

	student, err := students.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPending, student.FeeStatus)
}

func TestPaymentCompleteFailsWhenStoreRejects(t *testing.T) {
	svc, students, notifier := newTestPaymentService(true)
	ctx := context.Background()

	tracking, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s1"})
	require.NoError(t, err)
	require.NoError(t, svc.handleProcess(ctx, jobs.Job{ID: tracking.ID, Type: jobPaymentProcess, Payload: tracking.ID}))

	students.failOn = 1
	err = svc.handleComplete(ctx, jobs.Job{ID: tracking.ID, Type: jobPaymentComplete, Payload: tracking.ID})
	require.Error(t, err)

	failed, err := svc.Get(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	assert.Empty(t, notifier.completed)
}

func TestPaymentListNewestFirst(t *testing.T) {
	svc, students, _ := newTestPaymentService(true)
	ctx := context.Background()

	second := sampleStudent("s2", "Amit", "9876543211")
	_, err := students.Create(ctx, second)
	require.NoError(t, err)

	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	svc.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	first, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s1"})
	require.NoError(t, err)
	latest, err := svc.Initiate(ctx, InitiatePaymentRequest{StudentID: "s2"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, latest.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
