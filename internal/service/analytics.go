package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// AnalyticsService answers the read-only questions: upload history,
// per-day calendar rollups, and the dashboard summary. It never mutates
// job rows.
type AnalyticsService struct {
	db     *gorm.DB
	logger *zap.Logger
	loc    *time.Location
}

func NewAnalyticsService(db *gorm.DB, logger *zap.Logger, loc *time.Location) *AnalyticsService {
	return &AnalyticsService{
		db:     db,
		logger: logger,
		loc:    loc,
	}
}

type UploadFilter struct {
	Status   string
	Platform string
	Limit    int
	Offset   int
}

// ListUploads returns recent jobs, newest first. Limit defaults to 50
// and caps at 200; Offset pages through older rows.
func (s *AnalyticsService) ListUploads(filter UploadFilter) ([]models.UploadJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := s.db.Order("created_at desc").Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}

	var jobs []models.UploadJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return jobs, nil
}

type CalendarDay struct {
	Date      string `json:"date"`
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
}

type CalendarView struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// Calendar rolls published and failed terminals up per local day for one
// month. Every day of the month appears, zero-filled when quiet.
func (s *AnalyticsService) Calendar(year, month int) (*CalendarView, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}
	if year < 2000 || year > 2200 {
		return nil, fmt.Errorf("invalid year: %d", year)
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0)

	published, err := s.countPerDay(models.UploadStatusPublished, "published_at", start, end)
	if err != nil {
		return nil, err
	}
	failed, err := s.countPerDay(models.UploadStatusFailed, "failed_at", start, end)
	if err != nil {
		return nil, err
	}

	view := &CalendarView{Year: year, Month: month}
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := util.DayKey(day, s.loc)
		view.Days = append(view.Days, CalendarDay{
			Date:      key,
			Published: published[key],
			Failed:    failed[key],
		})
	}
	return view, nil
}

// countPerDay buckets terminal timestamps into local day keys in Go, so
// the same query works on every SQL dialect.
func (s *AnalyticsService) countPerDay(status models.UploadStatus, column string, start, end time.Time) (map[string]int, error) {
	var jobs []models.UploadJob
	err := s.db.Select(column).
		Where("status = ?", status).
		Where(column+" >= ? AND "+column+" < ?", start, end).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s jobs: %w", status, err)
	}

	counts := make(map[string]int, len(jobs))
	for _, job := range jobs {
		var at *time.Time
		switch column {
		case "published_at":
			at = job.PublishedAt
		case "failed_at":
			at = job.FailedAt
		}
		if at == nil {
			continue
		}
		counts[util.DayKey(*at, s.loc)]++
	}
	return counts, nil
}

type AccountBreakdown struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Warmup    int64 `json:"warmup"`
	Throttled int64 `json:"throttled"`
	Banned    int64 `json:"banned"`
}

type SummaryView struct {
	Pending            int64            `json:"pending"`
	InFlight           int64            `json:"inFlight"`
	Published          int64            `json:"published"`
	Failed             int64            `json:"failed"`
	PublishedLast7Days int64            `json:"publishedLast7Days"`
	ByPlatform         map[string]int64 `json:"byPlatform"`
	Accounts           AccountBreakdown `json:"accounts"`
}

// Summary is the dashboard rollup: queue depth, terminal totals, recent
// velocity, per-platform published counts, and account phases.
func (s *AnalyticsService) Summary(now time.Time) (*SummaryView, error) {
	view := &SummaryView{ByPlatform: make(map[string]int64)}

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&view.Pending, s.db.Model(&models.UploadJob{}).Where("status = ?", models.UploadStatusPending)},
		{&view.InFlight, s.db.Model(&models.UploadJob{}).Where("status IN ?", []models.UploadStatus{
			models.UploadStatusClaimed,
			models.UploadStatusDownloading,
			models.UploadStatusTransformed,
			models.UploadStatusUploading,
		})},
		{&view.Published, s.db.Model(&models.UploadJob{}).Where("status = ?", models.UploadStatusPublished)},
		{&view.Failed, s.db.Model(&models.UploadJob{}).Where("status = ?", models.UploadStatusFailed)},
		{&view.PublishedLast7Days, s.db.Model(&models.UploadJob{}).
			Where("status = ? AND published_at >= ?", models.UploadStatusPublished, now.AddDate(0, 0, -7))},
		{&view.Accounts.Total, s.db.Model(&models.Account{})},
		{&view.Accounts.Active, s.db.Model(&models.HealthRecord{}).Where("phase = ?", models.HealthPhaseActive)},
		{&view.Accounts.Warmup, s.db.Model(&models.HealthRecord{}).Where("phase = ?", models.HealthPhaseWarmup)},
		{&view.Accounts.Throttled, s.db.Model(&models.HealthRecord{}).Where("phase = ?", models.HealthPhaseThrottled)},
		{&view.Accounts.Banned, s.db.Model(&models.HealthRecord{}).Where("phase = ?", models.HealthPhaseBanned)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count for summary: %w", err)
		}
	}

	for _, platform := range models.KnownPlatforms {
		var n int64
		err := s.db.Model(&models.UploadJob{}).
			Where("status = ? AND platform = ?", models.UploadStatusPublished, platform).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count platform %s: %w", platform, err)
		}
		if n > 0 {
			view.ByPlatform[platform] = n
		}
	}

	return view, nil
}

// ListSnapshots returns the most recent daily snapshots, newest first.
func (s *AnalyticsService) ListSnapshots(limit int) ([]models.AnalyticsSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	var snapshots []models.AnalyticsSnapshot
	if err := s.db.Order("date desc").Limit(limit).Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}
