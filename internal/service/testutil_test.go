package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
)

var testLoc = time.UTC

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.Database{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "rotor_test.db"),
	})
	require.NoError(t, err)
	return db
}

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

// seedAccount connects an account through the registry so it gets the
// default assignment and warmup health record, then returns it with both
// preloaded.
func seedAccount(t *testing.T, db *gorm.DB, platform, handle string) *models.Account {
	t.Helper()
	registry := NewRegistryService(db, newTestLogger())
	account := &models.Account{Platform: platform, Handle: handle}
	require.NoError(t, registry.Add(account))

	loaded, err := registry.Get(account.ID)
	require.NoError(t, err)
	return loaded
}

// seedJob creates one pending upload job directly.
func seedJob(t *testing.T, db *gorm.DB, id, sourceRef, category string, platforms ...string) *models.UploadJob {
	t.Helper()
	job := &models.UploadJob{
		ID:        id,
		SourceRef: sourceRef,
		Title:     "title " + id,
		Category:  category,
		Platforms: models.StringArray(platforms),
		Status:    models.UploadStatusPending,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

// setAssignment overwrites the account's rotation assignment fields and
// refreshes the in-memory copy.
func setAssignment(t *testing.T, db *gorm.DB, account *models.Account, mutate func(*models.RotationAssignment)) {
	t.Helper()
	var assignment models.RotationAssignment
	require.NoError(t, db.Where("account_id = ?", account.ID).First(&assignment).Error)
	mutate(&assignment)
	require.NoError(t, db.Save(&assignment).Error)
	account.Assignment = &assignment
}

// setHealth overwrites the account's health record fields.
func setHealth(t *testing.T, db *gorm.DB, accountID uint, mutate func(*models.HealthRecord)) {
	t.Helper()
	var record models.HealthRecord
	require.NoError(t, db.Where("account_id = ?", accountID).First(&record).Error)
	mutate(&record)
	require.NoError(t, db.Save(&record).Error)
}
