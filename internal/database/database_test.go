package database

import (
	"bytes"
	"log"
	"testing"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormLogConfig(t *testing.T) {
	cfg := gormLogConfig()
	assert.Equal(t, logger.Error, cfg.LogLevel)
	assert.True(t, cfg.IgnoreRecordNotFoundError)
	assert.False(t, cfg.Colorful)
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: newGormLogger(log.New(&buf, "", 0)),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	buf.Reset()

	var tx models.PaymentTransaction
	err = db.Where("external_id = ?", "missing").First(&tx).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	require.Error(t, db.Exec("SELECT * FROM no_such_table").Error)
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	_, err := NewDB(&config.DatabaseConfig{Driver: "postgres"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
