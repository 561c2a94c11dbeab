package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

type memCache struct {
	mu          sync.Mutex
	collections map[string][]byte
	counters    map[string]int64
	failSaves   bool
}

func newMemCache() *memCache {
	return &memCache{collections: map[string][]byte{}, counters: map[string]int64{}}
}

func (m *memCache) SaveCollection(name string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return errors.New("disk full")
	}
	m.collections[name] = append([]byte(nil), payload...)
	return nil
}

func (m *memCache) LoadCollection(name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.collections[name]
	return payload, ok, nil
}

func (m *memCache) NextID(counter string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counter]++
	return m.counters[counter], nil
}

type fakeRemote struct {
	mu      sync.Mutex
	records map[string]*models.Student
	nextID  int
	failing bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: map[string]*models.Student{}}
}

func (f *fakeRemote) List(ctx context.Context) ([]*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	out := make([]*models.Student, 0, len(f.records))
	for _, rec := range f.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRemote) FindByID(ctx context.Context, id string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	if rec, ok := f.records[id]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
}

func (f *fakeRemote) FindByField(ctx context.Context, field, value string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	for _, rec := range f.records {
		if field == "mobile" && rec.Mobile == value {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
}

func (f *fakeRemote) Create(ctx context.Context, rec *models.Student) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	f.nextID++
	clone := *rec
	clone.ID = "remote-" + strconv.Itoa(f.nextID)
	f.records[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, fields map[string]any) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	if v, ok := fields["feeStatus"].(string); ok {
		rec.FeeStatus = v
	}
	if v, ok := fields["paymentMode"].(string); ok {
		rec.PaymentMode = v
	}
	if v, ok := fields["lastUpdated"].(time.Time); ok {
		rec.LastUpdated = v
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("connection refused")
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRemote) Watch(ctx context.Context, onChange func()) (func(), error) {
	return func() {}, nil
}

func newStudentCollection(remote Remote[*models.Student], cache Cache, clock func() time.Time) *Collection[*models.Student] {
	return NewCollection(Options[*models.Student]{
		Name:           CollectionStudents,
		Remote:         remote,
		Cache:          cache,
		New:            func() *models.Student { return &models.Student{} },
		TimestampField: "lastUpdated",
		Clock:          clock,
	})
}

func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestCollectionCreateThenListRemote(t *testing.T) {
	remote := newFakeRemote()
	coll := newStudentCollection(remote, newMemCache(), tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	before := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	created, err := coll.Create(context.Background(), &models.Student{Name: "Rahul Sharma", Mobile: "9876543210", Room: "A101", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.LastUpdated.Before(before))

	students, err := coll.List(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, created.ID, students[0].ID)
}

func TestCollectionFallsBackWhenRemoteFails(t *testing.T) {
	remote := newFakeRemote()
	remote.failing = true
	cache := newMemCache()
	coll := newStudentCollection(remote, cache, tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	created, err := coll.Create(context.Background(), &models.Student{Name: "Priya Patel", Mobile: "9876543211", Room: "B205", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err, "remote failure must degrade silently")
	assert.NotEmpty(t, created.ID)

	updated, err := coll.Update(context.Background(), created.ID, map[string]any{"feeStatus": models.FeeStatusPaid, "paymentMode": models.PaymentModeUPI})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, updated.FeeStatus)

	existed, err := coll.Delete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	students, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestCollectionUpdateIdempotent(t *testing.T) {
	coll := newStudentCollection(nil, newMemCache(), tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	created, err := coll.Create(context.Background(), &models.Student{Name: "Amit Kumar", Mobile: "9876543212", Room: "C301", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)

	fields := map[string]any{"feeStatus": models.FeeStatusPaid, "paymentMode": models.PaymentModeUPI}
	first, err := coll.Update(context.Background(), created.ID, fields)
	require.NoError(t, err)
	second, err := coll.Update(context.Background(), created.ID, fields)
	require.NoError(t, err)

	assert.Equal(t, first.FeeStatus, second.FeeStatus)
	assert.Equal(t, first.PaymentMode, second.PaymentMode)
	assert.True(t, second.LastUpdated.After(first.LastUpdated), "timestamp must strictly advance")
}

func TestCollectionUpdateStripsNilFields(t *testing.T) {
	remote := newFakeRemote()
	coll := newStudentCollection(remote, newMemCache(), tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	created, err := coll.Create(context.Background(), &models.Student{Name: "Sneha Reddy", Mobile: "9876543213", Room: "D405", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)

	updated, err := coll.Update(context.Background(), created.ID, map[string]any{
		"feeStatus":   models.FeeStatusPaid,
		"paymentMode": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, updated.FeeStatus)
	assert.Empty(t, updated.PaymentMode, "nil field must not reach the store")
}

func TestCollectionUpdateAfterOfflineCreate(t *testing.T) {
	remote := newFakeRemote()
	remote.failing = true
	coll := newStudentCollection(remote, newMemCache(), tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	created, err := coll.Create(context.Background(), &models.Student{Name: "Arjun Mehta", Mobile: "9876543219", Room: "B303", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failing = false
	remote.mu.Unlock()

	found, err := coll.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	updated, err := coll.Update(context.Background(), created.ID, map[string]any{"feeStatus": models.FeeStatusPaid, "paymentMode": models.PaymentModeUPI})
	require.NoError(t, err, "a record the remote never saw must stay updatable from the mirror")
	assert.Equal(t, models.FeeStatusPaid, updated.FeeStatus)

	_, err = coll.Update(context.Background(), "ghost", map[string]any{"feeStatus": models.FeeStatusPaid})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCollectionUpdateMissingRecord(t *testing.T) {
	coll := newStudentCollection(nil, newMemCache(), tickingClock(time.Now()))

	_, err := coll.Update(context.Background(), "ghost", map[string]any{"feeStatus": models.FeeStatusPaid})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCollectionDeleteMissingRecord(t *testing.T) {
	coll := newStudentCollection(nil, newMemCache(), tickingClock(time.Now()))

	existed, err := coll.Delete(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestCollectionPersistenceFailureSurfaces(t *testing.T) {
	cache := newMemCache()
	cache.failSaves = true
	remote := newFakeRemote()
	remote.failing = true
	coll := newStudentCollection(remote, cache, tickingClock(time.Now()))

	_, err := coll.Create(context.Background(), &models.Student{Name: "Vikash Singh", Mobile: "9876543214", Room: "A202", FeeStatus: models.FeeStatusPending})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistence.Code, appErrors.FromError(err).Code)
}

func TestCollectionListenerIsolation(t *testing.T) {
	coll := newStudentCollection(nil, newMemCache(), tickingClock(time.Now()))

	var called int
	unsub := coll.Subscribe(func() { panic("boom") })
	defer unsub()
	coll.Subscribe(func() { called++ })

	_, err := coll.Create(context.Background(), &models.Student{Name: "Rohit Verma", Mobile: "9876543215", Room: "B101", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, called, "a panicking listener must not block the rest")
}

func TestCollectionRefreshNotifiesOnlyOnChange(t *testing.T) {
	remote := newFakeRemote()
	coll := newStudentCollection(remote, newMemCache(), tickingClock(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	created, err := coll.Create(context.Background(), &models.Student{Name: "Meera Joshi", Mobile: "9876543220", Room: "A303", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)

	var called int
	unsub := coll.Subscribe(func() { called++ })
	defer unsub()

	_, err = coll.List(context.Background())
	require.NoError(t, err)
	assert.Zero(t, called, "an unchanged remote snapshot must not wake listeners")

	remote.mu.Lock()
	remote.records[created.ID].FeeStatus = models.FeeStatusPaid
	remote.mu.Unlock()

	_, err = coll.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestCollectionUnsubscribe(t *testing.T) {
	coll := newStudentCollection(nil, newMemCache(), tickingClock(time.Now()))

	var called int
	unsub := coll.Subscribe(func() { called++ })
	unsub()

	_, err := coll.Create(context.Background(), &models.Student{Name: "Neha Gupta", Mobile: "9876543216", Room: "C105", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)
	assert.Zero(t, called)
}

func TestCollectionWarmStartFromCache(t *testing.T) {
	cache := newMemCache()
	first := newStudentCollection(nil, cache, tickingClock(time.Now()))
	created, err := first.Create(context.Background(), &models.Student{Name: "Kiran Rao", Mobile: "9876543217", Room: "D202", FeeStatus: models.FeeStatusPending})
	require.NoError(t, err)

	second := newStudentCollection(nil, cache, tickingClock(time.Now()))
	require.NoError(t, second.Init(context.Background()))
	students, err := second.List(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, created.ID, students[0].ID)
}

func TestCollectionCorruptCacheFallsBackToSeed(t *testing.T) {
	cache := newMemCache()
	cache.collections[CollectionStudents] = []byte("{not json")

	seed := []*models.Student{{ID: "seed-1", Name: "Seeded", Mobile: "9876543218", Room: "A1", FeeStatus: models.FeeStatusPending}}
	coll := NewCollection(Options[*models.Student]{
		Name:  CollectionStudents,
		Cache: cache,
		New:   func() *models.Student { return &models.Student{} },
		Seed:  seed,
	})
	require.NoError(t, coll.Init(context.Background()))

	students, err := coll.List(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "seed-1", students[0].ID)
}
