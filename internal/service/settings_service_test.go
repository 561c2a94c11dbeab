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
)

type mockSettingsStore struct {
	mu      sync.Mutex
	records []*models.HostelSettings
	creates int
}

func (m *mockSettingsStore) List(ctx context.Context) ([]*models.HostelSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.HostelSettings, 0, len(m.records))
	for _, r := range m.records {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockSettingsStore) Create(ctx context.Context, rec *models.HostelSettings) (*models.HostelSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	copied := *rec
	m.records = append(m.records, &copied)
	return rec, nil
}

func (m *mockSettingsStore) Update(ctx context.Context, id string, fields map[string]any) (*models.HostelSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID != id {
			continue
		}
		for key, value := range fields {
			switch key {
			case "monthlyFee":
				r.MonthlyFee = value.(float64)
			case "upiId":
				r.UPIID = value.(string)
			case "hostelName":
				r.HostelName = value.(string)
			case "enablePayNow":
				r.EnablePayNow = value.(bool)
			case "lastMonthlyReset":
				stamp := value.(time.Time)
				r.LastMonthlyReset = &stamp
			}
		}
		copied := *r
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
}

func TestSettingsGetCreatesDefaultOnce(t *testing.T) {
	store := &mockSettingsStore{}
	svc := NewSettingsService(store, nil, nil)
	ctx := context.Background()

	settings, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SettingsID, settings.ID)
	assert.InDelta(t, 5000, settings.MonthlyFee, 0.001)
	assert.True(t, settings.EnablePayNow)

	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.creates)
}

func TestSettingsUpdate(t *testing.T) {
	store := &mockSettingsStore{}
	svc := NewSettingsService(store, nil, nil)
	ctx := context.Background()

	updated, err := svc.Update(ctx, UpdateSettingsRequest{
		MonthlyFee:   6500,
		UPIID:        "sunrise@upi",
		HostelName:   "Sunrise Boys Hostel",
		EnablePayNow: false,
	})
	require.NoError(t, err)
	assert.InDelta(t, 6500, updated.MonthlyFee, 0.001)
	assert.Equal(t, "sunrise@upi", updated.UPIID)
	assert.False(t, updated.EnablePayNow)
}

func TestSettingsUpdateRejectsLowFee(t *testing.T) {
	svc := NewSettingsService(&mockSettingsStore{}, nil, nil)

	_, err := svc.Update(context.Background(), UpdateSettingsRequest{
		MonthlyFee: 50,
		UPIID:      "sunrise@upi",
		HostelName: "Sunrise Hostel",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSettingsRecordReset(t *testing.T) {
	store := &mockSettingsStore{}
	svc := NewSettingsService(store, nil, nil)
	ctx := context.Background()

	stamp := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordReset(ctx, stamp))

	settings, err := svc.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, settings.LastMonthlyReset)
	assert.True(t, settings.LastMonthlyReset.Equal(stamp))
}
