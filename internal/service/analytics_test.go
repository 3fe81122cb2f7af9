package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// finishJob seeds a job already settled in a terminal state at the given
// instant, claimed the same moment.
func finishJob(t *testing.T, db *gorm.DB, id, platform string, status models.UploadStatus, at time.Time) {
	t.Helper()
	seedJob(t, db, id, "src/"+id, "clips", platform)
	updates := map[string]interface{}{
		"status":     status,
		"platform":   platform,
		"claimed_at": at,
	}
	switch status {
	case models.UploadStatusPublished:
		updates["published_at"] = at
	case models.UploadStatusFailed:
		updates["failed_at"] = at
	}
	require.NoError(t, db.Model(&models.UploadJob{}).Where("id = ?", id).Updates(updates).Error)
}

func TestListUploads(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)
	now := time.Now()

	finishJob(t, db, "job-yt", models.PlatformYouTube, models.UploadStatusPublished, now.Add(-time.Hour))
	finishJob(t, db, "job-tt", models.PlatformTikTok, models.UploadStatusPublished, now.Add(-2*time.Hour))
	finishJob(t, db, "job-bad", models.PlatformYouTube, models.UploadStatusFailed, now.Add(-3*time.Hour))
	seedJob(t, db, "job-wait", "src/wait", "clips", models.PlatformYouTube)

	all, err := analytics.ListUploads(UploadFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	published, err := analytics.ListUploads(UploadFilter{Status: "published"})
	require.NoError(t, err)
	assert.Len(t, published, 2)

	tiktok, err := analytics.ListUploads(UploadFilter{Platform: models.PlatformTikTok})
	require.NoError(t, err)
	require.Len(t, tiktok, 1)
	assert.Equal(t, "job-tt", tiktok[0].ID)

	one, err := analytics.ListUploads(UploadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestListUploadsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)
	now := time.Now()

	seedJob(t, db, "job-a", "src/a", "clips", models.PlatformYouTube)
	seedJob(t, db, "job-b", "src/b", "clips", models.PlatformYouTube)
	require.NoError(t, db.Model(&models.UploadJob{}).Where("id = ?", "job-a").
		Update("created_at", now.Add(-2*time.Hour)).Error)
	require.NoError(t, db.Model(&models.UploadJob{}).Where("id = ?", "job-b").
		Update("created_at", now.Add(-time.Hour)).Error)

	jobs, err := analytics.ListUploads(UploadFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-b", jobs[0].ID)
	assert.Equal(t, "job-a", jobs[1].ID)

	// Offset pages past the newest row.
	jobs, err = analytics.ListUploads(UploadFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-a", jobs[0].ID)
}

func TestCalendar(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)

	day3 := time.Date(2026, 7, 3, 14, 0, 0, 0, testLoc)
	day10 := time.Date(2026, 7, 10, 9, 0, 0, 0, testLoc)
	finishJob(t, db, "job-1", models.PlatformYouTube, models.UploadStatusPublished, day3)
	finishJob(t, db, "job-2", models.PlatformYouTube, models.UploadStatusPublished, day3.Add(time.Hour))
	finishJob(t, db, "job-3", models.PlatformYouTube, models.UploadStatusFailed, day3.Add(2*time.Hour))
	finishJob(t, db, "job-4", models.PlatformYouTube, models.UploadStatusPublished, day10)
	// Previous month stays out of the July view.
	finishJob(t, db, "job-5", models.PlatformYouTube, models.UploadStatusPublished, time.Date(2026, 6, 30, 23, 0, 0, 0, testLoc))

	view, err := analytics.Calendar(2026, 7)
	require.NoError(t, err)
	assert.Equal(t, 2026, view.Year)
	assert.Equal(t, 7, view.Month)
	require.Len(t, view.Days, 31)

	assert.Equal(t, "2026-07-01", view.Days[0].Date)
	assert.Equal(t, 0, view.Days[0].Published)
	assert.Equal(t, CalendarDay{Date: "2026-07-03", Published: 2, Failed: 1}, view.Days[2])
	assert.Equal(t, CalendarDay{Date: "2026-07-10", Published: 1}, view.Days[9])

	var total int
	for _, d := range view.Days {
		total += d.Published
	}
	assert.Equal(t, 3, total)
}

func TestCalendarRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)

	_, err := analytics.Calendar(2026, 0)
	assert.Error(t, err)
	_, err = analytics.Calendar(2026, 13)
	assert.Error(t, err)
	_, err = analytics.Calendar(1999, 5)
	assert.Error(t, err)
	_, err = analytics.Calendar(2300, 5)
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)
	now := time.Now()

	active := seedAccount(t, db, models.PlatformYouTube, "front")
	setHealth(t, db, active.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseActive })
	seedAccount(t, db, models.PlatformTikTok, "rookie")

	seedJob(t, db, "job-wait", "src/wait", "clips", models.PlatformYouTube)
	claimed := seedJob(t, db, "job-claimed", "src/claimed", "clips", models.PlatformYouTube)
	require.NoError(t, db.Model(claimed).Update("status", models.UploadStatusClaimed).Error)

	finishJob(t, db, "job-recent", models.PlatformYouTube, models.UploadStatusPublished, now.Add(-24*time.Hour))
	finishJob(t, db, "job-ancient", models.PlatformYouTube, models.UploadStatusPublished, now.AddDate(0, 0, -30))
	finishJob(t, db, "job-bad", models.PlatformYouTube, models.UploadStatusFailed, now.Add(-time.Hour))

	view, err := analytics.Summary(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Pending)
	assert.Equal(t, int64(1), view.InFlight)
	assert.Equal(t, int64(2), view.Published)
	assert.Equal(t, int64(1), view.Failed)
	assert.Equal(t, int64(1), view.PublishedLast7Days)
	assert.Equal(t, map[string]int64{models.PlatformYouTube: 2}, view.ByPlatform)
	assert.Equal(t, int64(2), view.Accounts.Total)
	assert.Equal(t, int64(1), view.Accounts.Active)
	assert.Equal(t, int64(1), view.Accounts.Warmup)
	assert.Equal(t, int64(0), view.Accounts.Banned)
}

func TestListSnapshots(t *testing.T) {
	db := newTestDB(t)
	analytics := NewAnalyticsService(db, newTestLogger(), testLoc)

	for _, date := range []string{"2026-07-01", "2026-07-02", "2026-07-03"} {
		require.NoError(t, db.Create(&models.AnalyticsSnapshot{Date: date, Published: 1}).Error)
	}

	snapshots, err := analytics.ListSnapshots(2)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "2026-07-03", snapshots[0].Date)
	assert.Equal(t, "2026-07-02", snapshots[1].Date)
}

func newSnapshotService(t *testing.T, db *gorm.DB, retentionDays int) *SnapshotService {
	t.Helper()
	logger := newTestLogger()
	health := NewHealthService(db, logger, testLoc, DefaultHealthConfig())
	return NewSnapshotService(
		&config.Analytics{SnapshotSchedule: "0 5 0 * * *", RetentionDays: retentionDays},
		db, logger, testLoc, health, NewOpsService(db, logger))
}

func TestTakeSnapshot(t *testing.T) {
	db := newTestDB(t)
	snapshots := newSnapshotService(t, db, 0)
	registry := NewRegistryService(db, newTestLogger())

	day := time.Date(2026, 7, 3, 16, 30, 0, 0, testLoc)
	finishJob(t, db, "job-1", models.PlatformYouTube, models.UploadStatusPublished, day)
	finishJob(t, db, "job-2", models.PlatformYouTube, models.UploadStatusPublished, day.Add(time.Hour))
	finishJob(t, db, "job-3", models.PlatformYouTube, models.UploadStatusFailed, day.Add(2*time.Hour))
	// Next local day stays out of this rollup.
	finishJob(t, db, "job-4", models.PlatformYouTube, models.UploadStatusPublished, day.AddDate(0, 0, 1))

	seedAccount(t, db, models.PlatformYouTube, "counted")
	gone := seedAccount(t, db, models.PlatformYouTube, "uncounted")
	require.NoError(t, registry.SetStatus(gone.ID, models.AccountStatusBanned))

	snapshot, err := snapshots.TakeSnapshot(day)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-03", snapshot.Date)
	assert.Equal(t, int64(2), snapshot.Published)
	assert.Equal(t, int64(1), snapshot.Failed)
	assert.Equal(t, int64(3), snapshot.Downloaded)
	assert.Equal(t, int64(1), snapshot.ActiveAccounts)
}

func TestTakeSnapshotOverwritesSameDay(t *testing.T) {
	db := newTestDB(t)
	snapshots := newSnapshotService(t, db, 0)

	day := time.Date(2026, 7, 3, 16, 30, 0, 0, testLoc)
	finishJob(t, db, "job-1", models.PlatformYouTube, models.UploadStatusPublished, day)

	first, err := snapshots.TakeSnapshot(day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Published)

	finishJob(t, db, "job-2", models.PlatformYouTube, models.UploadStatusPublished, day.Add(time.Hour))

	second, err := snapshots.TakeSnapshot(day)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.Published)

	var count int64
	require.NoError(t, db.Model(&models.AnalyticsSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSnapshotCleanupPrunesOldRows(t *testing.T) {
	db := newTestDB(t)
	snapshots := newSnapshotService(t, db, 30)

	fresh := util.DayKey(time.Now(), testLoc)
	require.NoError(t, db.Create(&models.AnalyticsSnapshot{Date: "2020-01-01"}).Error)
	require.NoError(t, db.Create(&models.AnalyticsSnapshot{Date: fresh}).Error)

	require.NoError(t, snapshots.cleanup())

	var remaining []models.AnalyticsSnapshot
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh, remaining[0].Date)
}

func TestSnapshotSchedulerStartStop(t *testing.T) {
	db := newTestDB(t)
	snapshots := newSnapshotService(t, db, 30)

	require.NoError(t, snapshots.Start())
	snapshots.Stop()
}

func TestNormalizeSchedule(t *testing.T) {
	assert.Equal(t, "0 5 0 * * *", normalizeSchedule("5 0 * * *"))
	assert.Equal(t, "0 5 0 * * *", normalizeSchedule("0 5 0 * * *"))
	assert.Equal(t, "@daily", normalizeSchedule("@daily"))
}
