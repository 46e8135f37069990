// Package storagetest opens throwaway sqlite candle stores for tests.
package storagetest

import (
	"testing"

	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/stretchr/testify/require"
)

// NewStore returns a migrated in-memory store that is closed with the test.
func NewStore(t testing.TB) *storage.GormStore {
	t.Helper()

	db, err := storage.OpenDB(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(sqlDB, storage.DriverSQLite, logger.Discard()))

	store := storage.NewGormStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
