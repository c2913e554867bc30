// Package testutil provides a migrated sqlite database and fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/database"
	"github.com/aligovro/newschools-sub000/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a fresh sqlite file under t.TempDir and migrates it. A single
// connection serializes writers the way sqlite needs; busy_timeout covers the
// remaining contention from concurrent tests.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, "?_busy_timeout=5000&_foreign_keys=on", 1)
}

// NewConcurrentDB opens a WAL-mode sqlite file behind conns connections, so concurrent
// callers really hold separate connections and overlapping transactions. Readers run in
// parallel; writers queue on sqlite's write lock. Transactions begin IMMEDIATE so a
// writer waits on busy_timeout instead of failing a lock upgrade.
func NewConcurrentDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	return open(t, "?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate&_foreign_keys=on", conns)
}

func open(t *testing.T, params string, conns int) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "test.db") + params,
		MaxIdleConns: conns,
		MaxOpenConns: conns,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func CreateOrganization(t *testing.T, db *gorm.DB, name string) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: name, Slug: name}
	require.NoError(t, db.Create(org).Error)
	return org
}

func CreateProject(t *testing.T, db *gorm.DB, orgID uint, title string) *models.Project {
	t.Helper()
	p := &models.Project{OrganizationID: orgID, Title: title, TargetAmount: 10_000_000}
	require.NoError(t, db.Create(p).Error)
	return p
}

func CreateStage(t *testing.T, db *gorm.DB, projectID uint, title string) *models.ProjectStage {
	t.Helper()
	s := &models.ProjectStage{ProjectID: projectID, Title: title, TargetAmount: 1_000_000}
	require.NoError(t, db.Create(s).Error)
	return s
}

// Reload fetches the current row of T with the given primary key.
func Reload[T any](t *testing.T, db *gorm.DB, id uint) *T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}
