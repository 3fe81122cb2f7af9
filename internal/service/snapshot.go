package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// SnapshotService freezes yesterday's totals into an AnalyticsSnapshot
// row just after local midnight and prunes aged history. Snapshots make
// long-range trends cheap even after raw rows are gone.
type SnapshotService struct {
	config *config.Analytics
	db     *gorm.DB
	logger *zap.Logger
	loc    *time.Location
	health *HealthService
	ops    *OpsService
	cron   *cron.Cron
}

func NewSnapshotService(cfg *config.Analytics, db *gorm.DB, logger *zap.Logger, loc *time.Location, health *HealthService, ops *OpsService) *SnapshotService {
	return &SnapshotService{
		config: cfg,
		db:     db,
		logger: logger,
		loc:    loc,
		health: health,
		ops:    ops,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}
}

// Start schedules the nightly rollup. The schedule accepts both 5-field
// and 6-field cron expressions.
func (s *SnapshotService) Start() error {
	schedule := normalizeSchedule(s.config.SnapshotSchedule)
	jobID, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule snapshot job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Snapshot scheduler started",
		zap.Int("job_id", int(jobID)),
		zap.String("schedule", schedule))
	return nil
}

func (s *SnapshotService) Stop() {
	s.cron.Stop()
	s.logger.Info("Snapshot scheduler stopped")
}

func (s *SnapshotService) run() {
	start := time.Now()
	day := start.In(s.loc).AddDate(0, 0, -1)

	snapshot, err := s.TakeSnapshot(day)
	if err != nil {
		s.logger.Error("Snapshot rollup failed", zap.Error(err))
		if s.ops != nil {
			s.ops.Record("ERROR", "snapshot", "Snapshot rollup failed", err.Error())
		}
		return
	}

	if err := s.cleanup(); err != nil {
		s.logger.Error("Retention cleanup failed", zap.Error(err))
	}

	s.logger.Info("Snapshot rollup completed",
		zap.String("date", snapshot.Date),
		zap.Int64("published", snapshot.Published),
		zap.Int64("failed", snapshot.Failed),
		zap.Duration("duration", time.Since(start)))
}

// TakeSnapshot rolls one local day up into its snapshot row. Re-running
// for the same day overwrites, so a missed night can be backfilled.
func (s *SnapshotService) TakeSnapshot(day time.Time) (*models.AnalyticsSnapshot, error) {
	dayStart := util.StartOfDay(day, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	key := util.DayKey(day, s.loc)

	var published, failed, downloaded, activeAccounts int64
	err := s.db.Model(&models.UploadJob{}).
		Where("status = ? AND published_at >= ? AND published_at < ?", models.UploadStatusPublished, dayStart, dayEnd).
		Count(&published).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count published: %w", err)
	}
	err = s.db.Model(&models.UploadJob{}).
		Where("status = ? AND failed_at >= ? AND failed_at < ?", models.UploadStatusFailed, dayStart, dayEnd).
		Count(&failed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count failed: %w", err)
	}
	err = s.db.Model(&models.UploadJob{}).
		Where("claimed_at >= ? AND claimed_at < ?", dayStart, dayEnd).
		Count(&downloaded).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count downloaded: %w", err)
	}
	err = s.db.Model(&models.Account{}).
		Where("status = ?", models.AccountStatusActive).
		Count(&activeAccounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active accounts: %w", err)
	}

	var snapshot models.AnalyticsSnapshot
	result := s.db.Where("date = ?", key).First(&snapshot)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query existing snapshot: %w", result.Error)
	}

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		snapshot = models.AnalyticsSnapshot{
			Date:           key,
			Published:      published,
			Failed:         failed,
			Downloaded:     downloaded,
			ActiveAccounts: activeAccounts,
		}
		if err := s.db.Create(&snapshot).Error; err != nil {
			return nil, fmt.Errorf("failed to create snapshot: %w", err)
		}
	} else {
		snapshot.Published = published
		snapshot.Failed = failed
		snapshot.Downloaded = downloaded
		snapshot.ActiveAccounts = activeAccounts
		if err := s.db.Save(&snapshot).Error; err != nil {
			return nil, fmt.Errorf("failed to update snapshot: %w", err)
		}
	}

	return &snapshot, nil
}

// cleanup prunes snapshots, ops entries, and health outcomes past the
// retention horizon. Job rows are kept; they back the calendar.
func (s *SnapshotService) cleanup() error {
	days := s.config.RetentionDays
	if days <= 0 {
		return nil
	}

	cutoff := util.DayKey(time.Now().In(s.loc).AddDate(0, 0, -days), s.loc)
	if err := s.db.Where("date < ?", cutoff).Delete(&models.AnalyticsSnapshot{}).Error; err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if s.ops != nil {
		if err := s.ops.Cleanup(days); err != nil {
			return err
		}
	}
	if s.health != nil {
		if err := s.health.Cleanup(days); err != nil {
			return err
		}
	}
	return nil
}

// normalizeSchedule widens 5-field cron expressions for the
// seconds-aware parser.
func normalizeSchedule(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}
