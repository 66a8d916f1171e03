package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"camguard-backend/config"
	"camguard-backend/internal/model"
)

func TestWithForeignKeys(t *testing.T) {
	testCases := []struct {
		name     string
		dsn      string
		expected string
	}{
		{name: "plain file", dsn: "camguard.db", expected: "camguard.db?_foreign_keys=on"},
		{name: "existing query", dsn: "file::memory:?cache=shared", expected: "file::memory:?cache=shared&_foreign_keys=on"},
		{name: "already enabled", dsn: "camguard.db?_foreign_keys=1", expected: "camguard.db?_foreign_keys=1"},
		{name: "short flag", dsn: "camguard.db?_fk=1", expected: "camguard.db?_fk=1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, withForeignKeys(tc.dsn))
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Error, logLevel("ERROR"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}

func TestInit_SQLiteMigratesAllModels(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      "file:db_init_test?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, m := range []any{&model.User{}, &model.Camera{}, &model.AccessToken{}, &model.Capture{}, &model.PushSubscription{}} {
		assert.True(t, gormDB.Migrator().HasTable(m))
	}
	assert.True(t, gormDB.Migrator().HasTable("subscription_camera_mapping"))
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
