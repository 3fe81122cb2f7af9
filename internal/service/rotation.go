package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// RotationService decides account eligibility and enforces daily quotas
// and cooldowns. Daily counters reset lazily: rows carry the local day
// they were counted in, and a stale day means zero uploads today. The
// only mutation path is RecordPublish, a conditional UPDATE that can
// never push a counter past its limit.
type RotationService struct {
	db     *gorm.DB
	logger *zap.Logger
	loc    *time.Location
}

func NewRotationService(db *gorm.DB, logger *zap.Logger, loc *time.Location) *RotationService {
	if loc == nil {
		loc = time.Local
	}
	return &RotationService{
		db:     db,
		logger: logger,
		loc:    loc,
	}
}

// EligibleAccounts returns accounts able to publish format at now, ordered
// least-recently-published first; accounts that never published sort first.
func (r *RotationService) EligibleAccounts(format string, now time.Time) ([]models.Account, error) {
	return r.eligible("", format, now)
}

// EligibleForTarget is EligibleAccounts narrowed to one platform. The
// autopilot loop walks (platform, category) pairs, so it always scopes
// eligibility to the target platform.
func (r *RotationService) EligibleForTarget(platform, format string, now time.Time) ([]models.Account, error) {
	return r.eligible(platform, format, now)
}

func (r *RotationService) eligible(platform, format string, now time.Time) ([]models.Account, error) {
	query := r.db.Preload("Assignment").Where("status = ?", models.AccountStatusActive)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}

	var accounts []models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	day := util.DayKey(now, r.loc)
	eligible := make([]models.Account, 0, len(accounts))
	for _, account := range accounts {
		a := account.Assignment
		if a == nil {
			// No assignment row means no constraints.
			eligible = append(eligible, account)
			continue
		}
		if format != "" && a.AssignedFormat != "" && a.AssignedFormat != format {
			continue
		}
		if !quotaOpen(a, day) {
			continue
		}
		if !cooldownElapsed(a, now) {
			continue
		}
		eligible = append(eligible, account)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		li := lastPublished(eligible[i].Assignment)
		lj := lastPublished(eligible[j].Assignment)
		if li == nil && lj == nil {
			return eligible[i].ID < eligible[j].ID
		}
		if li == nil {
			return true
		}
		if lj == nil {
			return false
		}
		return li.Before(*lj)
	})

	return eligible, nil
}

func quotaOpen(a *models.RotationAssignment, day string) bool {
	if a.DailyLimit == 0 {
		return true
	}
	if a.DayKey != day {
		// Counter belongs to a previous local day.
		return true
	}
	return a.UploadsToday < a.DailyLimit
}

func cooldownElapsed(a *models.RotationAssignment, now time.Time) bool {
	if a.CooldownMinutes == 0 || a.LastPublishedAt == nil {
		return true
	}
	return now.Sub(*a.LastPublishedAt) >= time.Duration(a.CooldownMinutes)*time.Minute
}

func lastPublished(a *models.RotationAssignment) *time.Time {
	if a == nil {
		return nil
	}
	return a.LastPublishedAt
}

// CanTake reports whether the account's assignment accepts the category.
func (r *RotationService) CanTake(account *models.Account, category string) bool {
	a := account.Assignment
	if a == nil || a.AssignedFormat == "" || category == "" {
		return true
	}
	return a.AssignedFormat == category
}

// UploadsToday reads the same-day counter; a counter stamped with an
// older day key reads as zero.
func (r *RotationService) UploadsToday(account *models.Account, now time.Time) int {
	a := account.Assignment
	if a == nil || a.DayKey != util.DayKey(now, r.loc) {
		return 0
	}
	return a.UploadsToday
}

// RemainingQuota returns how many more publishes the account may take
// today, or -1 when unlimited.
func (r *RotationService) RemainingQuota(account *models.Account, now time.Time) int {
	a := account.Assignment
	if a == nil || a.DailyLimit == 0 {
		return -1
	}
	if a.DayKey != util.DayKey(now, r.loc) {
		return a.DailyLimit
	}
	remaining := a.DailyLimit - a.UploadsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Assign upserts the rotation assignment for an account. Counters and the
// last-publish timestamp survive reassignment so quota and cooldown
// invariants hold across config changes within a day.
func (r *RotationService) Assign(accountID uint, format string, dailyLimit, cooldownMinutes int) (*models.RotationAssignment, error) {
	if dailyLimit < 0 || cooldownMinutes < 0 {
		return nil, fmt.Errorf("%w: daily_limit and cooldown_minutes must be non-negative", ErrInvalidAssignment)
	}

	var account models.Account
	err := r.db.First(&account, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var assignment models.RotationAssignment
	err = r.db.Where("account_id = ?", accountID).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		assignment = models.RotationAssignment{
			AccountID:       accountID,
			AssignedFormat:  format,
			DailyLimit:      dailyLimit,
			CooldownMinutes: cooldownMinutes,
		}
		if err := r.db.Create(&assignment).Error; err != nil {
			return nil, fmt.Errorf("failed to create assignment: %w", err)
		}
		return &assignment, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}

	assignment.AssignedFormat = format
	assignment.DailyLimit = dailyLimit
	assignment.CooldownMinutes = cooldownMinutes
	if err := r.db.Save(&assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}

	r.logger.Info("Rotation assignment updated",
		zap.Uint("account_id", accountID),
		zap.String("format", format),
		zap.Int("daily_limit", dailyLimit),
		zap.Int("cooldown_minutes", cooldownMinutes))
	return &assignment, nil
}

// RecordPublish counts one publish against the account's daily quota and
// stamps the cooldown clock. The increment is a conditional UPDATE keyed
// on the current local day: it either counts within the limit, rolls the
// counter over to a new day, or refuses with ErrQuotaExhausted. It never
// partially applies.
func (r *RotationService) RecordPublish(accountID uint, now time.Time) error {
	day := util.DayKey(now, r.loc)

	// Two rounds so a concurrent day rollover cannot starve the caller:
	// if another writer rolls the day over between our attempts, the
	// same-day increment succeeds on the second round.
	for i := 0; i < 2; i++ {
		res := r.db.Model(&models.RotationAssignment{}).
			Where("account_id = ? AND day_key = ? AND (daily_limit = 0 OR uploads_today < daily_limit)", accountID, day).
			Updates(map[string]interface{}{
				"uploads_today":     gorm.Expr("uploads_today + 1"),
				"last_published_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record publish: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}

		res = r.db.Model(&models.RotationAssignment{}).
			Where("account_id = ? AND day_key <> ?", accountID, day).
			Updates(map[string]interface{}{
				"uploads_today":     1,
				"day_key":           day,
				"last_published_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to record publish: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}

	var assignment models.RotationAssignment
	err := r.db.Where("account_id = ?", accountID).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return fmt.Errorf("failed to load assignment: %w", err)
	}
	return fmt.Errorf("%w: %d/%d today", ErrQuotaExhausted, assignment.UploadsToday, assignment.DailyLimit)
}
