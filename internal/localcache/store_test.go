package localcache

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewWithDB(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestStoreSaveCollection(t *testing.T) {
	store, mock, cleanup := newCacheMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO collections").
		WithArgs("students", `[{"id":"1"}]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveCollection("students", []byte(`[{"id":"1"}]`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadCollection(t *testing.T) {
	store, mock, cleanup := newCacheMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT payload FROM collections WHERE name = ?").
		WithArgs("expenses").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(`[{"id":"7"}]`))

	payload, ok, err := store.LoadCollection("expenses")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"7"}]`, string(payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadCollectionMissing(t *testing.T) {
	store, mock, cleanup := newCacheMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT payload FROM collections WHERE name = ?").
		WithArgs("notifications").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	payload, ok, err := store.LoadCollection("notifications")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreNextID(t *testing.T) {
	store, mock, cleanup := newCacheMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO counters").
		WithArgs("expense_id").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

	value, err := store.NextID("expense_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
