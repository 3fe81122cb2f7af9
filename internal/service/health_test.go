package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorops/rotor/internal/models"
)

func TestHealthScoreSingleSuccess(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "scored")
	at := time.Now()

	record, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
	require.NoError(t, err)

	// rate 1.0 x70, neutral velocity 0.5 x20, fresh success x10.
	assert.InDelta(t, 90, record.Score, 0.001)
	assert.Equal(t, models.HealthPhaseWarmup, record.Phase)
	assert.Equal(t, 0, record.ZeroSuccessStreak)
	require.NotNil(t, record.LastOutcomeAt)
}

func TestHealthScoreAllFailures(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "failing")
	at := time.Now()

	var record *models.HealthRecord
	var err error
	for i := 0; i < 3; i++ {
		record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
		require.NoError(t, err)
	}

	// rate 0, neutral velocity, no success to be recent.
	assert.InDelta(t, 10, record.Score, 0.001)
	assert.Equal(t, 3, record.ZeroSuccessStreak)
}

func TestHealthShadowSignalAloneKeepsNeutralScore(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "watched")

	record, err := health.OnOutcome(account.ID, ShadowBanSignal(time.Now()))
	require.NoError(t, err)

	// Signals are observations, not attempts.
	assert.InDelta(t, 50, record.Score, 0.001)
	assert.True(t, record.ShadowBanSuspected)
	assert.Equal(t, 0, record.ZeroSuccessStreak)
	assert.Equal(t, models.HealthPhaseWarmup, record.Phase)
}

func TestHealthVelocityRewardsEvenDays(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "steady")
	base := time.Now()

	var record *models.HealthRecord
	var err error
	for i, at := range []time.Time{
		base.Add(-24 * time.Hour), base.Add(-24 * time.Hour), base, base,
	} {
		record, err = health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
		require.NoError(t, err, "outcome %d", i)
	}

	// Two even days: zero variance, full velocity share.
	assert.InDelta(t, 100, record.Score, 0.001)
}

func TestHealthVelocityPenalizesBursts(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "bursty")
	base := time.Now()

	yesterday := base.Add(-24 * time.Hour)
	var record *models.HealthRecord
	var err error
	for _, at := range []time.Time{yesterday, yesterday, yesterday, yesterday, base} {
		record, err = health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
		require.NoError(t, err)
	}

	// Days of 4 and 1: cv = 0.6, velocity share 0.4 of 20.
	assert.InDelta(t, 88, record.Score, 0.001)
}

func TestHealthRecencyDecay(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "idle")
	base := time.Now()

	_, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", base.Add(-72*time.Hour)))
	require.NoError(t, err)
	record, err := health.OnOutcome(account.ID, FailureOutcome("job-2", models.FailReasonNetwork, base))
	require.NoError(t, err)

	// rate 0.5 x70, even days x20, 72h-old success decays to 2/3 of 10.
	assert.InDelta(t, 35+20+10.0*96/144, record.Score, 0.001)
}

func TestHealthWarmupToActive(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "newcomer")
	at := time.Now()

	for i := 0; i < 2; i++ {
		record, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
		require.NoError(t, err)
		assert.Equal(t, models.HealthPhaseWarmup, record.Phase)
	}

	record, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
	require.NoError(t, err)
	assert.Equal(t, models.HealthPhaseActive, record.Phase)
}

func TestHealthThrottleNeedsTwoLowObservations(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "slipping")
	setHealth(t, db, account.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseActive })
	at := time.Now()

	_, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
	require.NoError(t, err)

	// Three failures keep the score at or above the throttle line.
	var record *models.HealthRecord
	for i := 0; i < 3; i++ {
		record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
		require.NoError(t, err)
		assert.Equal(t, models.HealthPhaseActive, record.Phase)
		assert.Equal(t, 0, record.LowStreak)
	}

	// Fourth failure drops to 34: first low observation, phase holds.
	record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
	require.NoError(t, err)
	assert.InDelta(t, 34, record.Score, 0.001)
	assert.Equal(t, models.HealthPhaseActive, record.Phase)
	assert.Equal(t, 1, record.LowStreak)

	// Second consecutive low observation throttles.
	record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
	require.NoError(t, err)
	assert.Equal(t, models.HealthPhaseThrottled, record.Phase)
	assert.Equal(t, 0, record.LowStreak)
}

func TestHealthLowStreakResetsOnRebound(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "rebounder")
	setHealth(t, db, account.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseActive })
	at := time.Now()

	_, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
	require.NoError(t, err)
	var record *models.HealthRecord
	for i := 0; i < 4; i++ {
		record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
		require.NoError(t, err)
	}
	require.Equal(t, 1, record.LowStreak)

	// A good observation between two lows clears the streak, so the next
	// low starts counting from scratch.
	record, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", at))
	require.NoError(t, err)
	assert.Equal(t, 0, record.LowStreak)
	assert.Equal(t, models.HealthPhaseActive, record.Phase)
}

func TestHealthThrottledBansOnPlatformRejection(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "doomed")
	setHealth(t, db, account.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseThrottled })

	record, err := health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonPlatformRejected, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, models.HealthPhaseBanned, record.Phase)

	// The ban is mirrored into the account status.
	var reloaded models.Account
	require.NoError(t, db.First(&reloaded, account.ID).Error)
	assert.Equal(t, models.AccountStatusBanned, reloaded.Status)

	// Banned is terminal for the scorer.
	record, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, models.HealthPhaseBanned, record.Phase)
}

func TestHealthThrottledBansOnZeroSuccessStreak(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultHealthConfig()
	cfg.BanZeroStreak = 3
	health := NewHealthService(db, newTestLogger(), testLoc, cfg)
	account := seedAccount(t, db, models.PlatformYouTube, "silent")
	setHealth(t, db, account.ID, func(r *models.HealthRecord) {
		r.Phase = models.HealthPhaseThrottled
		r.ZeroSuccessStreak = 2
	})

	record, err := health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 3, record.ZeroSuccessStreak)
	assert.Equal(t, models.HealthPhaseBanned, record.Phase)
}

func TestHealthThrottledRecovery(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "comeback")
	setHealth(t, db, account.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseThrottled })
	at := time.Now()

	record, err := health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
	require.NoError(t, err)
	assert.Equal(t, models.HealthPhaseThrottled, record.Phase)

	// Exactly the recovery threshold is not enough; the bar is strict.
	record, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", at))
	require.NoError(t, err)
	assert.InDelta(t, 55, record.Score, 0.001)
	assert.Equal(t, models.HealthPhaseThrottled, record.Phase)

	record, err = health.OnOutcome(account.ID, SuccessOutcome("job-3", at))
	require.NoError(t, err)
	assert.Greater(t, record.Score, 55.0)
	assert.Equal(t, models.HealthPhaseActive, record.Phase)
}

func TestHealthShadowFlagDerivedFromCollapse(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "muted")
	at := time.Now()

	record, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", at))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
		require.NoError(t, err)
		assert.False(t, record.ShadowBanSuspected)
	}

	// Fifth attempt pushes the rate to 0.2 with no explicit rejection.
	record, err = health.OnOutcome(account.ID, FailureOutcome("job-1", models.FailReasonNetwork, at))
	require.NoError(t, err)
	assert.True(t, record.ShadowBanSuspected)

	// The flag clears once the rate climbs back to half.
	for i := 0; i < 2; i++ {
		record, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", at))
		require.NoError(t, err)
		assert.True(t, record.ShadowBanSuspected)
	}
	record, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", at))
	require.NoError(t, err)
	assert.False(t, record.ShadowBanSuspected)
}

func TestHealthShadowFlagNotDerivedWithExplicitRejection(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "rejected")
	at := time.Now()

	// Same collapse shape, but one failure is an explicit rejection: the
	// platform is telling us outright, nothing covert to suspect.
	outcomes := []Outcome{
		SuccessOutcome("job-1", at),
		FailureOutcome("job-1", models.FailReasonNetwork, at),
		FailureOutcome("job-1", models.FailReasonPlatformRejected, at),
		FailureOutcome("job-1", models.FailReasonNetwork, at),
		FailureOutcome("job-1", models.FailReasonNetwork, at),
	}
	var record *models.HealthRecord
	var err error
	for _, o := range outcomes {
		record, err = health.OnOutcome(account.ID, o)
		require.NoError(t, err)
	}
	assert.False(t, record.ShadowBanSuspected)
}

func TestHealthSchedulable(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())

	warmup := seedAccount(t, db, models.PlatformYouTube, "fresh")
	assert.True(t, health.Schedulable(warmup.ID))

	throttled := seedAccount(t, db, models.PlatformYouTube, "gated")
	setHealth(t, db, throttled.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseThrottled })
	assert.False(t, health.Schedulable(throttled.ID))

	banned := seedAccount(t, db, models.PlatformYouTube, "blocked")
	setHealth(t, db, banned.ID, func(r *models.HealthRecord) { r.Phase = models.HealthPhaseBanned })
	assert.False(t, health.Schedulable(banned.ID))

	// No record at all: scheduling is not blocked on missing scorer state.
	orphan := models.Account{Platform: models.PlatformYouTube, Handle: "orphan", Status: models.AccountStatusActive}
	require.NoError(t, db.Create(&orphan).Error)
	assert.True(t, health.Schedulable(orphan.ID))
}

func TestHealthOnOutcomeUnknownAccount(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())

	_, err := health.OnOutcome(9999, SuccessOutcome("job-1", time.Now()))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestHealthCleanup(t *testing.T) {
	db := newTestDB(t)
	health := NewHealthService(db, newTestLogger(), testLoc, DefaultHealthConfig())
	account := seedAccount(t, db, models.PlatformYouTube, "archived")

	_, err := health.OnOutcome(account.ID, SuccessOutcome("job-1", time.Now().AddDate(0, 0, -40)))
	require.NoError(t, err)
	_, err = health.OnOutcome(account.ID, SuccessOutcome("job-2", time.Now()))
	require.NoError(t, err)

	require.NoError(t, health.Cleanup(30))

	var remaining []models.UploadOutcome
	require.NoError(t, db.Where("account_id = ?", account.ID).Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "job-2", remaining[0].JobID)
}
