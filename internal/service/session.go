package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
)

// SessionStore owns the singleton AutopilotSession row. Counter bumps are
// single conditional UPDATEs so concurrent pipeline workers never lose
// increments and restarts never double-count.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Load returns the session row, creating the stopped singleton on first use.
func (s *SessionStore) Load() (*models.AutopilotSession, error) {
	var session models.AutopilotSession
	err := s.db.First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = models.AutopilotSession{State: models.SessionStateStopped}
		if err := s.db.Create(&session).Error; err != nil {
			return nil, fmt.Errorf("failed to create autopilot session: %w", err)
		}
		return &session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load autopilot session: %w", err)
	}
	return &session, nil
}

// SaveState persists a state transition.
func (s *SessionStore) SaveState(id uint, state models.SessionState) error {
	return s.db.Model(&models.AutopilotSession{}).Where("id = ?", id).
		Update("state", state).Error
}

// SaveConfig persists the per-start configuration value object.
func (s *SessionStore) SaveConfig(id uint, intervalMinutes int, categories, targets []string, maxItems int) error {
	return s.db.Model(&models.AutopilotSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"interval_minutes": intervalMinutes,
			"categories":       models.StringArray(categories),
			"targets":          models.StringArray(targets),
			"max_items":        maxItems,
		}).Error
}

// MarkRun records a completed wake.
func (s *SessionStore) MarkRun(id uint, at time.Time) error {
	return s.db.Model(&models.AutopilotSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"sessions_run": gorm.Expr("sessions_run + 1"),
			"last_run_at":  at,
		}).Error
}

func (s *SessionStore) BumpDownloaded(id uint) error {
	return s.bump(id, "total_downloaded")
}

func (s *SessionStore) BumpUploaded(id uint) error {
	return s.bump(id, "total_uploaded")
}

func (s *SessionStore) BumpFailed(id uint) error {
	return s.bump(id, "total_failed")
}

func (s *SessionStore) bump(id uint, column string) error {
	return s.db.Model(&models.AutopilotSession{}).Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1")).Error
}
