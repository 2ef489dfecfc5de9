package db

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens a migrated SQLite database private to the test
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, "?_pragma=busy_timeout(5000)", 1)
}

// newConcurrentTestDB lets several connections write at once, so transactions
// really interleave and only the upsert itself keeps increments from being lost
func newConcurrentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", 8)
}

func openTestDB(t *testing.T, params string, conns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calorie_tracker.db")
	gdb, err := Open(sqlite.Open(path + params))
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(gdb))
	return gdb
}
