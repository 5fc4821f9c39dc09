package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/loracam/internal/config"
	"github.com/wfunc/loracam/internal/models"
)

func testConfig(dsn string) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Enabled:         true,
		Driver:          "sqlite",
		DSN:             dsn,
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "silent",
		AutoMigrate:     true,
	}
}

func TestInitAndMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "loracam.db")
	require.NoError(t, Init(testConfig(dsn)))
	defer Close()

	assert.True(t, IsConnected())
	assert.NotNil(t, GetDB())

	require.NoError(t, AutoMigrate())
	assert.True(t, GetDB().Migrator().HasTable(&models.LinkEvent{}))

	// 迁移结束后锁文件已释放
	_, err := os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 重复迁移无副作用
	require.NoError(t, AutoMigrate())
}

func TestInitUnsupportedDriver(t *testing.T) {
	cfg := testConfig("")
	cfg.Driver = "oracle"
	assert.Error(t, Init(cfg))
}

func TestAutoMigrateWithoutInit(t *testing.T) {
	require.NoError(t, Close())
	assert.Error(t, AutoMigrate())
	assert.False(t, IsConnected())
}

func TestMigrationLockStale(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stale.db")
	lockPath := dbPath + ".migration.lock"
	require.NoError(t, os.WriteFile(lockPath, nil, 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	lock, err := acquireMigrationLock(dbPath)
	require.NoError(t, err)
	releaseMigrationLock(lock)

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}
