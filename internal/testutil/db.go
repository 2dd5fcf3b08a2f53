// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"waste-station-backend/config"
	"waste-station-backend/internal/db"
)

// NewSQLite returns a migrated, isolated in-memory database with the append-only
// guard installed. It is closed when the test ends.
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:            config.DriverSQLite,
		DSN:               "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel:          "silent",
		EnforceAppendOnly: true,
	}
	gormDB, err := db.Init(cfg, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}
