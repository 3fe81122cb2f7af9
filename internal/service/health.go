package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// HealthConfig fixes the scoring window and the hysteresis thresholds.
type HealthConfig struct {
	WindowSize        int
	WindowDays        int
	WarmupMinSuccess  int
	ThrottleBelow     float64
	RecoverAbove      float64
	BanZeroStreak     int
	ShadowMinOutcomes int
	ShadowMaxRate     float64
	ShadowClearRate   float64
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		WindowSize:        50,
		WindowDays:        14,
		WarmupMinSuccess:  3,
		ThrottleBelow:     35,
		RecoverAbove:      55,
		BanZeroStreak:     10,
		ShadowMinOutcomes: 5,
		ShadowMaxRate:     0.2,
		ShadowClearRate:   0.5,
	}
}

// Outcome is one observed publish result fed to the scorer.
type Outcome struct {
	Kind   models.OutcomeKind
	Reason models.FailReason
	JobID  string
	At     time.Time
}

func SuccessOutcome(jobID string, at time.Time) Outcome {
	return Outcome{Kind: models.OutcomeSuccess, JobID: jobID, At: at}
}

func FailureOutcome(jobID string, reason models.FailReason, at time.Time) Outcome {
	return Outcome{Kind: models.OutcomeFailure, Reason: reason, JobID: jobID, At: at}
}

func ShadowBanSignal(at time.Time) Outcome {
	return Outcome{Kind: models.OutcomeShadowBanSignal, At: at}
}

// HealthService derives a 0-100 score and lifecycle phase per account from
// a bounded window of outcomes. Phase transitions carry hysteresis so a
// single bad observation never flips an account's phase, and recovery
// needs a higher bar than the drop that throttled it.
type HealthService struct {
	db     *gorm.DB
	logger *zap.Logger
	loc    *time.Location
	cfg    HealthConfig
}

func NewHealthService(db *gorm.DB, logger *zap.Logger, loc *time.Location, cfg HealthConfig) *HealthService {
	if loc == nil {
		loc = time.Local
	}
	return &HealthService{
		db:     db,
		logger: logger,
		loc:    loc,
		cfg:    cfg,
	}
}

// OnOutcome records one outcome and recomputes the account's health.
func (h *HealthService) OnOutcome(accountID uint, outcome Outcome) (*models.HealthRecord, error) {
	if outcome.At.IsZero() {
		outcome.At = time.Now()
	}

	var account models.Account
	err := h.db.First(&account, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	event := &models.UploadOutcome{
		AccountID: accountID,
		JobID:     outcome.JobID,
		Kind:      outcome.Kind,
		Reason:    outcome.Reason,
		At:        outcome.At,
	}
	if err := h.db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	record, err := h.loadRecord(accountID)
	if err != nil {
		return nil, err
	}

	window, err := h.loadWindow(accountID, outcome.At)
	if err != nil {
		return nil, err
	}

	// Update streaks: success clears the zero-success streak, a failed
	// attempt extends it. Shadow-ban signals are observations, not
	// attempts, and leave streaks alone.
	switch outcome.Kind {
	case models.OutcomeSuccess:
		record.ZeroSuccessStreak = 0
	case models.OutcomeFailure:
		record.ZeroSuccessStreak++
	}

	record.Score = h.computeScore(window, outcome.At)
	h.advancePhase(record, window, outcome)
	h.updateShadowFlag(record, window, outcome)

	record.DaysActive = int(outcome.At.Sub(account.CreatedAt).Hours() / 24)
	record.LastOutcomeAt = &outcome.At

	if err := h.db.Save(record).Error; err != nil {
		return nil, fmt.Errorf("failed to save health record: %w", err)
	}

	// Mirror a terminal ban into the account status so the registry and
	// eligibility queries see it without consulting health.
	if record.Phase == models.HealthPhaseBanned && account.Status != models.AccountStatusBanned {
		if err := h.db.Model(&models.Account{}).Where("id = ?", accountID).
			Update("status", models.AccountStatusBanned).Error; err != nil {
			return nil, fmt.Errorf("failed to mirror ban into account status: %w", err)
		}
		h.logger.Warn("Account banned",
			zap.Uint("account_id", accountID),
			zap.String("handle", account.Handle))
	}

	return record, nil
}

// Score returns the current health record for one account.
func (h *HealthService) Score(accountID uint) (*models.HealthRecord, error) {
	var record models.HealthRecord
	err := h.db.Where("account_id = ?", accountID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health record: %w", err)
	}
	return &record, nil
}

// HealthSnapshot is the per-account view served by the health endpoint.
// TodayUploads is derived from the rotation counter at read time.
type HealthSnapshot struct {
	AccountID          uint               `json:"account_id"`
	Platform           string             `json:"platform"`
	Handle             string             `json:"handle"`
	Score              float64            `json:"score"`
	Phase              models.HealthPhase `json:"phase"`
	DaysActive         int                `json:"days_active"`
	ShadowBanSuspected bool               `json:"shadow_ban_suspected"`
	TodayUploads       int                `json:"today_uploads"`
	LastOutcomeAt      *time.Time         `json:"last_outcome_at"`
}

// Snapshot assembles the health view for every account.
func (h *HealthService) Snapshot(now time.Time) ([]HealthSnapshot, error) {
	var accounts []models.Account
	if err := h.db.Preload("Assignment").Preload("Health").Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	day := util.DayKey(now, h.loc)
	snapshots := make([]HealthSnapshot, 0, len(accounts))
	for _, account := range accounts {
		snap := HealthSnapshot{
			AccountID: account.ID,
			Platform:  account.Platform,
			Handle:    account.Handle,
		}
		if rec := account.Health; rec != nil {
			snap.Score = rec.Score
			snap.Phase = rec.Phase
			snap.DaysActive = rec.DaysActive
			snap.ShadowBanSuspected = rec.ShadowBanSuspected
			snap.LastOutcomeAt = rec.LastOutcomeAt
		}
		if a := account.Assignment; a != nil && a.DayKey == day {
			snap.TodayUploads = a.UploadsToday
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Schedulable reports whether the scorer lets the autopilot hand new work
// to the account. Throttled and banned accounts are gated out; warmup
// accounts are allowed so they can earn their way to active.
func (h *HealthService) Schedulable(accountID uint) bool {
	var record models.HealthRecord
	err := h.db.Where("account_id = ?", accountID).First(&record).Error
	if err != nil {
		// Missing record means the registry has not seeded it; do not
		// block scheduling on scorer state we do not have.
		return true
	}
	return record.Phase != models.HealthPhaseThrottled && record.Phase != models.HealthPhaseBanned
}

// Cleanup removes outcome events older than daysToKeep.
func (h *HealthService) Cleanup(daysToKeep int) error {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	if err := h.db.Where("at < ?", cutoff).Delete(&models.UploadOutcome{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup outcomes: %w", err)
	}
	return nil
}

func (h *HealthService) loadRecord(accountID uint) (*models.HealthRecord, error) {
	var record models.HealthRecord
	err := h.db.Where("account_id = ?", accountID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.HealthRecord{
			AccountID: accountID,
			Score:     50,
			Phase:     models.HealthPhaseWarmup,
		}
		if err := h.db.Create(&record).Error; err != nil {
			return nil, fmt.Errorf("failed to create health record: %w", err)
		}
		return &record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health record: %w", err)
	}
	return &record, nil
}

func (h *HealthService) loadWindow(accountID uint, at time.Time) ([]models.UploadOutcome, error) {
	since := at.AddDate(0, 0, -h.cfg.WindowDays)
	var window []models.UploadOutcome
	err := h.db.Where("account_id = ? AND at >= ?", accountID, since).
		Order("at desc").
		Limit(h.cfg.WindowSize).
		Find(&window).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome window: %w", err)
	}
	return window, nil
}

// computeScore is a pure function of the outcome window:
// success rate x70, velocity consistency x20, recency bonus x10.
func (h *HealthService) computeScore(window []models.UploadOutcome, at time.Time) float64 {
	var successes, attempts int
	var lastSuccess *time.Time
	for i := range window {
		o := window[i]
		switch o.Kind {
		case models.OutcomeSuccess:
			successes++
			attempts++
			if lastSuccess == nil || o.At.After(*lastSuccess) {
				t := o.At
				lastSuccess = &t
			}
		case models.OutcomeFailure:
			attempts++
		}
	}

	if attempts == 0 {
		// Neutral prior before any attempt is observed.
		return 50
	}

	rate := float64(successes) / float64(attempts)
	score := rate*70 + h.velocityConsistency(window)*20 + recencyBonus(lastSuccess, at)*10
	return clamp(score, 0, 100)
}

// velocityConsistency rewards a steady per-day attempt rate over bursts.
// Returns [0,1]; neutral 0.5 until there are two active days to compare.
func (h *HealthService) velocityConsistency(window []models.UploadOutcome) float64 {
	perDay := make(map[string]int)
	for _, o := range window {
		if o.Kind == models.OutcomeShadowBanSignal {
			continue
		}
		perDay[util.DayKey(o.At, h.loc)]++
	}
	if len(perDay) < 2 {
		return 0.5
	}

	var sum float64
	for _, n := range perDay {
		sum += float64(n)
	}
	mean := sum / float64(len(perDay))

	var variance float64
	for _, n := range perDay {
		variance += (float64(n) - mean) * (float64(n) - mean)
	}
	variance /= float64(len(perDay))

	cv := math.Sqrt(variance) / mean
	return clamp(1-cv, 0, 1)
}

// recencyBonus decays from 1 (success within a day) to 0 (none for a week).
func recencyBonus(lastSuccess *time.Time, at time.Time) float64 {
	if lastSuccess == nil {
		return 0
	}
	hours := at.Sub(*lastSuccess).Hours()
	switch {
	case hours <= 24:
		return 1
	case hours >= 168:
		return 0
	default:
		return (168 - hours) / 144
	}
}

// advancePhase applies the hysteresis rules. Dropping out of active needs
// two consecutive low observations; coming back needs the higher recovery
// threshold; banned is terminal for the scorer.
func (h *HealthService) advancePhase(record *models.HealthRecord, window []models.UploadOutcome, outcome Outcome) {
	switch record.Phase {
	case models.HealthPhaseWarmup:
		var successes int
		for _, o := range window {
			if o.Kind == models.OutcomeSuccess {
				successes++
			}
		}
		if successes >= h.cfg.WarmupMinSuccess {
			record.Phase = models.HealthPhaseActive
			record.LowStreak = 0
			h.logger.Info("Account warmed up", zap.Uint("account_id", record.AccountID))
		}
	case models.HealthPhaseActive:
		if record.Score < h.cfg.ThrottleBelow {
			record.LowStreak++
			if record.LowStreak >= 2 {
				record.Phase = models.HealthPhaseThrottled
				record.LowStreak = 0
				h.logger.Warn("Account throttled",
					zap.Uint("account_id", record.AccountID),
					zap.Float64("score", record.Score))
			}
		} else {
			record.LowStreak = 0
		}
	case models.HealthPhaseThrottled:
		// A platform rejection while throttled is treated as the
		// platform's explicit signal; a sustained zero-success streak
		// bans without one.
		banSignal := outcome.Kind == models.OutcomeFailure && outcome.Reason == models.FailReasonPlatformRejected
		switch {
		case banSignal || record.ZeroSuccessStreak >= h.cfg.BanZeroStreak:
			record.Phase = models.HealthPhaseBanned
		case record.Score > h.cfg.RecoverAbove:
			record.Phase = models.HealthPhaseActive
			record.LowStreak = 0
			h.logger.Info("Account recovered",
				zap.Uint("account_id", record.AccountID),
				zap.Float64("score", record.Score))
		}
	case models.HealthPhaseBanned:
		// Terminal. Operators reset by removing and reconnecting.
	}
}

// updateShadowFlag raises the suspicion heuristic when the success rate
// collapses with no explicit platform rejection in the window, and clears
// it once the rate recovers.
func (h *HealthService) updateShadowFlag(record *models.HealthRecord, window []models.UploadOutcome, outcome Outcome) {
	if outcome.Kind == models.OutcomeShadowBanSignal {
		record.ShadowBanSuspected = true
		return
	}

	var successes, attempts int
	var explicitSignal bool
	for _, o := range window {
		switch o.Kind {
		case models.OutcomeSuccess:
			successes++
			attempts++
		case models.OutcomeFailure:
			attempts++
			if o.Reason == models.FailReasonPlatformRejected {
				explicitSignal = true
			}
		}
	}
	if attempts == 0 {
		return
	}

	rate := float64(successes) / float64(attempts)
	if record.ShadowBanSuspected {
		if rate >= h.cfg.ShadowClearRate {
			record.ShadowBanSuspected = false
		}
		return
	}
	if attempts >= h.cfg.ShadowMinOutcomes && rate <= h.cfg.ShadowMaxRate && !explicitSignal {
		record.ShadowBanSuspected = true
		h.logger.Warn("Shadow ban suspected",
			zap.Uint("account_id", record.AccountID),
			zap.Float64("success_rate", rate))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
