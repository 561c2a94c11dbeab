package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

// Options configures a Collection. Remote may be nil, in which case every
// operation runs against the local cache alone. The fallback policy is
// composed here once instead of being scattered per call site.
type Options[T Record] struct {
	// Name keys the collection in both stores.
	Name string
	// Remote is the preferred store. Nil means unconfigured.
	Remote Remote[T]
	// Cache is the durable local mirror. Required.
	Cache Cache
	// New allocates an empty record for decoding.
	New func() T
	// Seed populates the collection when both stores are empty.
	Seed []T
	// IDCounter names the cache counter used to synthesize local ids.
	// Empty means time-based ids.
	IDCounter string
	// TimestampField, when set, is stamped with the current time on every
	// update sent to the remote store.
	TimestampField string
	// Timeout bounds each remote call. Zero means 15s.
	Timeout time.Duration
	// Clock is the time source. Nil means time.Now.
	Clock func() time.Time
	// OnFallback, when set, is invoked each time an operation degrades to
	// the local cache because the remote store failed.
	OnFallback func(collection string)
	Logger     *zap.Logger
}

// Collection presents a single CRUD+subscribe API per entity, preferring
// the remote store and falling back to the local cache. It owns the
// authoritative in-memory snapshot; callers must treat returned slices as
// read-only.
type Collection[T Record] struct {
	name           string
	remote         Remote[T]
	cache          Cache
	newRecord      func() T
	seed           []T
	idCounter      string
	timestampField string
	timeout        time.Duration
	clock          func() time.Time
	onFallback     func(collection string)
	logger         *zap.Logger

	mu           sync.Mutex
	records      []T
	seeded       bool
	listeners    map[int]func()
	nextListener int
	watchStop    func()
}

// NewCollection builds a Collection from Options.
func NewCollection[T Record](opts Options[T]) *Collection[T] {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Collection[T]{
		name:           opts.Name,
		remote:         opts.Remote,
		cache:          opts.Cache,
		newRecord:      opts.New,
		seed:           opts.Seed,
		idCounter:      opts.IDCounter,
		timestampField: opts.TimestampField,
		timeout:        opts.Timeout,
		clock:          opts.Clock,
		onFallback:     opts.OnFallback,
		logger:         opts.Logger,
		listeners:      make(map[int]func()),
	}
}

// Init primes the in-memory snapshot from the local cache, refreshes it
// from the remote store when one is configured, and starts the push
// subscription. Remote failure during Init is not fatal.
func (c *Collection[T]) Init(ctx context.Context) error {
	c.mu.Lock()
	c.loadMirrorLocked()
	c.mu.Unlock()

	if c.remote == nil {
		return nil
	}

	if err := c.refreshFromRemote(ctx); err != nil {
		c.logger.Warn("remote refresh failed, serving local cache",
			zap.String("collection", c.name), zap.Error(err))
	}

	stop, err := c.remote.Watch(ctx, func() {
		wctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.refreshFromRemote(wctx); err != nil {
			c.logger.Warn("push refresh failed",
				zap.String("collection", c.name), zap.Error(err))
		}
	})
	if err != nil {
		c.logger.Warn("remote watch unavailable, push updates disabled",
			zap.String("collection", c.name), zap.Error(err))
		return nil
	}
	c.watchStop = stop
	return nil
}

// Dispose stops the push subscription and unregisters all listeners.
func (c *Collection[T]) Dispose() {
	c.mu.Lock()
	if c.watchStop != nil {
		c.watchStop()
		c.watchStop = nil
	}
	c.listeners = make(map[int]func())
	c.mu.Unlock()
}

// Subscribe registers a listener invoked after every successful mutation
// and every remote push update. The returned function deregisters it.
func (c *Collection[T]) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// List returns the current records, preferring a fresh remote read and
// falling back to the in-memory snapshot.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	if c.remote != nil {
		if err := c.refreshFromRemote(ctx); err != nil {
			c.logger.Warn("remote list failed, serving local data",
				zap.String("collection", c.name), zap.Error(err))
			c.fellBack()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSeededLocked()
	return append([]T(nil), c.records...), nil
}

// FindByID looks up one record, remote first.
func (c *Collection[T]) FindByID(ctx context.Context, id string) (T, error) {
	if c.remote != nil {
		rctx, cancel := c.remoteContext(ctx)
		rec, err := c.remote.FindByID(rctx, id)
		cancel()
		if err == nil {
			return rec, nil
		}
		if !isNotFound(err) {
			c.logger.Warn("remote lookup failed, using local data",
				zap.String("collection", c.name), zap.Error(err))
			c.fellBack()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSeededLocked()
	for _, rec := range c.records {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	var zero T
	return zero, appErrors.Clone(appErrors.ErrNotFound, "record not found")
}

// FindByField looks up one record by an indexed field, remote first. The
// match predicate drives the local fallback scan.
func (c *Collection[T]) FindByField(ctx context.Context, field, value string, match func(T) bool) (T, error) {
	if c.remote != nil {
		rctx, cancel := c.remoteContext(ctx)
		rec, err := c.remote.FindByField(rctx, field, value)
		cancel()
		if err == nil {
			return rec, nil
		}
		if !isNotFound(err) {
			c.logger.Warn("remote field lookup failed, using local data",
				zap.String("collection", c.name), zap.Error(err))
			c.fellBack()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSeededLocked()
	for _, rec := range c.records {
		if match(rec) {
			return rec, nil
		}
	}
	var zero T
	return zero, appErrors.Clone(appErrors.ErrNotFound, "record not found")
}

// Create writes a new record, remote first. Remote failure degrades to a
// cache-only write with a synthesized id; only a double failure surfaces
// as ErrPersistence.
func (c *Collection[T]) Create(ctx context.Context, rec T) (T, error) {
	rec.StampUpdated(c.clock())

	if c.remote != nil {
		rctx, cancel := c.remoteContext(ctx)
		created, err := c.remote.Create(rctx, rec)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.ensureSeededLocked()
			c.records = append(c.records, created)
			c.saveMirrorLocked(false)
			c.mu.Unlock()
			c.notify()
			return created, nil
		}
		c.logger.Warn("remote create failed, persisting locally",
			zap.String("collection", c.name), zap.Error(err))
		c.fellBack()
	}

	if rec.RecordID() == "" {
		rec.SetRecordID(c.nextLocalID())
	}

	c.mu.Lock()
	c.ensureSeededLocked()
	c.records = append(c.records, rec)
	err := c.saveMirrorLocked(true)
	c.mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	c.notify()
	return rec, nil
}

// Update applies a partial mutation, remote first. Nil-valued fields are
// stripped before the remote write; the timestamp field always advances.
func (c *Collection[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	clean := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if v == nil {
			continue
		}
		clean[k] = v
	}
	if c.timestampField != "" {
		clean[c.timestampField] = c.clock().UTC()
	}

	if c.remote != nil {
		rctx, cancel := c.remoteContext(ctx)
		updated, err := c.remote.Update(rctx, id, clean)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.replaceLocked(updated)
			c.saveMirrorLocked(false)
			c.mu.Unlock()
			c.notify()
			return updated, nil
		}
		// A remote not-found is not terminal: the record may exist only
		// in the mirror, created while the remote was unreachable.
		if !isNotFound(err) {
			c.logger.Warn("remote update failed, applying locally",
				zap.String("collection", c.name), zap.Error(err))
			c.fellBack()
		}
	}

	c.mu.Lock()
	c.ensureSeededLocked()
	idx := c.indexOfLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		var zero T
		return zero, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	merged, err := c.mergeRecord(c.records[idx], clean)
	if err != nil {
		c.mu.Unlock()
		var zero T
		return zero, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to apply update")
	}
	c.records[idx] = merged
	saveErr := c.saveMirrorLocked(true)
	c.mu.Unlock()
	if saveErr != nil {
		var zero T
		return zero, saveErr
	}
	c.notify()
	return merged, nil
}

// Delete removes a record. The remote delete is attempted first but the
// result reflects only whether the record existed in the mirror, keeping
// the operation idempotent for callers.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	if c.remote != nil {
		rctx, cancel := c.remoteContext(ctx)
		err := c.remote.Delete(rctx, id)
		cancel()
		if err != nil && !isNotFound(err) {
			c.logger.Warn("remote delete failed, removing locally",
				zap.String("collection", c.name), zap.Error(err))
			c.fellBack()
		}
	}

	c.mu.Lock()
	c.ensureSeededLocked()
	idx := c.indexOfLocked(id)
	existed := idx >= 0
	if existed {
		c.records = append(c.records[:idx], c.records[idx+1:]...)
		c.saveMirrorLocked(false)
	}
	c.mu.Unlock()
	if existed {
		c.notify()
	}
	return existed, nil
}

// ReplaceAll swaps the entire snapshot. Used by bulk flows that compute a
// new collection state outside the store.
func (c *Collection[T]) ReplaceAll(ctx context.Context, records []T) error {
	c.mu.Lock()
	c.records = append([]T(nil), records...)
	c.seeded = true
	err := c.saveMirrorLocked(c.remote == nil)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// refreshFromRemote replaces the snapshot with the remote state. Listeners
// fire only when the data actually changed, so plain reads stay silent.
func (c *Collection[T]) refreshFromRemote(ctx context.Context) error {
	rctx, cancel := c.remoteContext(ctx)
	defer cancel()
	records, err := c.remote.List(rctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "remote list failed")
	}
	c.mu.Lock()
	changed := c.snapshotDiffersLocked(records)
	c.records = records
	c.seeded = true
	if changed {
		c.saveMirrorLocked(false)
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
	return nil
}

func (c *Collection[T]) snapshotDiffersLocked(records []T) bool {
	current, err := json.Marshal(c.records)
	if err != nil {
		return true
	}
	incoming, err := json.Marshal(records)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, incoming)
}

func (c *Collection[T]) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Collection[T]) nextLocalID() string {
	if c.idCounter != "" {
		if n, err := c.cache.NextID(c.idCounter); err == nil {
			return strconv.FormatInt(n, 10)
		} else {
			c.logger.Warn("counter unavailable, using time-based id",
				zap.String("collection", c.name), zap.Error(err))
		}
	}
	return strconv.FormatInt(c.clock().UnixMilli(), 10)
}

func (c *Collection[T]) ensureSeededLocked() {
	if c.seeded {
		return
	}
	c.seeded = true
	if len(c.records) == 0 && len(c.seed) > 0 {
		c.records = append([]T(nil), c.seed...)
		c.saveMirrorLocked(false)
	}
}

func (c *Collection[T]) loadMirrorLocked() {
	payload, ok, err := c.cache.LoadCollection(c.name)
	if err != nil {
		c.logger.Warn("cache load failed", zap.String("collection", c.name), zap.Error(err))
	}
	if !ok {
		c.ensureSeededLocked()
		return
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		c.logger.Warn("corrupt cache payload, falling back to seed data",
			zap.String("collection", c.name), zap.Error(err))
		c.ensureSeededLocked()
		return
	}
	records := make([]T, 0, len(raw))
	for _, item := range raw {
		rec := c.newRecord()
		if err := json.Unmarshal(item, rec); err != nil {
			c.logger.Warn("skipping corrupt cached record",
				zap.String("collection", c.name), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	c.records = records
	c.seeded = true
}

// saveMirrorLocked persists the snapshot to the cache. When mustSucceed is
// set (the remote already failed or is absent), a cache error is the
// terminal persistence failure; otherwise it is advisory and only logged.
func (c *Collection[T]) saveMirrorLocked(mustSucceed bool) error {
	payload, err := json.Marshal(c.records)
	if err == nil {
		err = c.cache.SaveCollection(c.name, payload)
	}
	if err == nil {
		return nil
	}
	if mustSucceed {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "both stores rejected the write")
	}
	c.logger.Warn("cache save failed", zap.String("collection", c.name), zap.Error(err))
	return nil
}

func (c *Collection[T]) fellBack() {
	if c.onFallback != nil {
		c.onFallback(c.name)
	}
}

func (c *Collection[T]) indexOfLocked(id string) int {
	for i, rec := range c.records {
		if rec.RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) replaceLocked(rec T) {
	if idx := c.indexOfLocked(rec.RecordID()); idx >= 0 {
		c.records[idx] = rec
		return
	}
	c.records = append(c.records, rec)
}

// mergeRecord folds a field map into a record by round-tripping through
// JSON, producing a fresh instance so snapshots stay stable.
func (c *Collection[T]) mergeRecord(rec T, fields map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(rec)
	if err != nil {
		return zero, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return zero, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	mergedRaw, err := json.Marshal(doc)
	if err != nil {
		return zero, err
	}
	merged := c.newRecord()
	if err := json.Unmarshal(mergedRaw, merged); err != nil {
		return zero, err
	}
	return merged, nil
}

// notify invokes every registered listener. A panicking listener is
// isolated so the remaining listeners still run.
func (c *Collection[T]) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("listener panicked", zap.String("collection", c.name), zap.Any("panic", r))
				}
			}()
			fn()
		}()
	}
}

func isNotFound(err error) bool {
	appErr := appErrors.FromError(err)
	return appErr != nil && appErr.Code == appErrors.ErrNotFound.Code
}
