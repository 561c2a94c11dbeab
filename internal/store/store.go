package store

import (
	"context"
	"time"
)

// Collection names shared by the remote store and the local cache mirror.
const (
	CollectionStudents      = "students"
	CollectionExpenses      = "expenses"
	CollectionSettings      = "hostel_settings"
	CollectionNotifications = "notifications"
	CollectionAdmins        = "admins"
	CollectionSessions      = "admin_sessions"
)

// Counter names issued by the local cache.
const (
	CounterExpenseID      = "expense_id"
	CounterNotificationID = "notification_id"
)

// Record is implemented by every persisted entity.
type Record interface {
	RecordID() string
	SetRecordID(id string)
	StampUpdated(t time.Time)
}

// Remote is the opaque remote-collection capability consumed by the sync
// layer. Implementations assign ids on Create and return the stored
// document on every mutation.
type Remote[T Record] interface {
	List(ctx context.Context) ([]T, error)
	FindByID(ctx context.Context, id string) (T, error)
	FindByField(ctx context.Context, field, value string) (T, error)
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, id string, fields map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context, onChange func()) (stop func(), err error)
}

// Cache is the durable, synchronous local mirror. Implementations must
// tolerate corrupt payloads by reporting the collection as absent rather
// than failing the caller.
type Cache interface {
	SaveCollection(name string, payload []byte) error
	LoadCollection(name string) ([]byte, bool, error)
	NextID(counter string) (int64, error)
}
