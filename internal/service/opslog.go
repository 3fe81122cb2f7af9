package service

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// OpsService writes the engine's durable operational trail. The retry,
// backoff, and terminal-failure taxonomy never surfaces to the dashboard
// beyond {success, error}, so this table is where it stays observable.
type OpsService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewOpsService(db *gorm.DB, logger *zap.Logger) *OpsService {
	return &OpsService{
		db:     db,
		logger: logger,
	}
}

// Record appends an ops entry. Failures to write are logged, never
// propagated: the trail must not take the scheduler down with it.
func (o *OpsService) Record(level, source, title, message string, options ...OpsOption) {
	entry := &models.OpsEntry{
		Level:   level,
		Source:  source,
		Title:   util.Truncate(title, 500),
		Message: message,
	}

	for _, option := range options {
		option(entry)
	}

	if err := o.db.Create(entry).Error; err != nil {
		o.logger.Error("Failed to record ops entry",
			zap.String("source", source),
			zap.String("title", title),
			zap.Error(err))
	}
}

// OpsOption customizes an ops entry before it is written.
type OpsOption func(*models.OpsEntry)

func WithAccount(accountID uint) OpsOption {
	return func(e *models.OpsEntry) {
		e.AccountID = &accountID
	}
}

func WithJob(jobID string) OpsOption {
	return func(e *models.OpsEntry) {
		e.JobID = jobID
	}
}

func WithReason(reason models.FailReason) OpsOption {
	return func(e *models.OpsEntry) {
		e.Reason = string(reason)
	}
}

func WithContext(context map[string]interface{}) OpsOption {
	return func(e *models.OpsEntry) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// GetRecent returns the newest entries, most recent first.
func (o *OpsService) GetRecent(limit int) ([]models.OpsEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.OpsEntry
	err := o.db.Order("created_at desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ops entries: %w", err)
	}
	return entries, nil
}

// Cleanup removes entries older than daysToKeep.
func (o *OpsService) Cleanup(daysToKeep int) error {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	if err := o.db.Where("created_at < ?", cutoff).Delete(&models.OpsEntry{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup ops entries: %w", err)
	}
	return nil
}
