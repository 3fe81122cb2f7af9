package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// RegistryService holds connected publishing accounts. It owns no
// scheduling decisions; status changes come from the health scorer or
// explicit operator action, never from the autopilot loop.
type RegistryService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRegistryService(db *gorm.DB, logger *zap.Logger) *RegistryService {
	return &RegistryService{
		db:     db,
		logger: logger,
	}
}

// AccountFilter narrows List results; zero value lists everything.
type AccountFilter struct {
	Platform string
	Status   models.AccountStatus
}

// Add connects a new account. The (platform, handle) pair must be unique
// among live accounts. Every account starts with a default rotation
// assignment (any format, no limits) and a warmup health record.
func (r *RegistryService) Add(account *models.Account) error {
	account.Handle = util.NormalizeHandle(account.Handle)
	if account.Platform == "" || account.Handle == "" {
		return fmt.Errorf("%w: platform and handle are required", ErrInvalidAssignment)
	}
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}

	var existing models.Account
	err := r.db.Where("platform = ? AND handle = ?", account.Platform, account.Handle).
		First(&existing).Error
	if err == nil {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateAccount, account.Platform, account.Handle)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check for existing account: %w", err)
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		assignment := &models.RotationAssignment{AccountID: account.ID}
		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("failed to create default assignment: %w", err)
		}
		health := &models.HealthRecord{AccountID: account.ID, Score: 50, Phase: models.HealthPhaseWarmup}
		if err := tx.Create(health).Error; err != nil {
			return fmt.Errorf("failed to create health record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Account connected",
		zap.Uint("account_id", account.ID),
		zap.String("platform", account.Platform),
		zap.String("handle", account.Handle))
	return nil
}

// Remove disconnects an account. Fails with ErrAccountInUse while an
// in-flight upload job still holds the account.
func (r *RegistryService) Remove(id uint) error {
	account, err := r.Get(id)
	if err != nil {
		return err
	}

	var inFlight int64
	err = r.db.Model(&models.UploadJob{}).
		Where("account_id = ? AND status IN ?", id, []models.UploadStatus{
			models.UploadStatusClaimed,
			models.UploadStatusDownloading,
			models.UploadStatusTransformed,
			models.UploadStatusUploading,
		}).
		Count(&inFlight).Error
	if err != nil {
		return fmt.Errorf("failed to count in-flight jobs: %w", err)
	}
	if inFlight > 0 {
		return fmt.Errorf("%w: %d jobs in flight", ErrAccountInUse, inFlight)
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&models.RotationAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.HealthRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Account{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	r.logger.Info("Account removed",
		zap.Uint("account_id", id),
		zap.String("platform", account.Platform),
		zap.String("handle", account.Handle))
	return nil
}

// Get returns one account with its assignment and health preloaded.
func (r *RegistryService) Get(id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.Preload("Assignment").Preload("Health").First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// List returns accounts matching the filter, assignment and health included.
func (r *RegistryService) List(filter AccountFilter) ([]models.Account, error) {
	query := r.db.Preload("Assignment").Preload("Health").Order("id")
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var accounts []models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// SetStatus updates an account's status. Used by the health scorer and by
// explicit operator action.
func (r *RegistryService) SetStatus(id uint, status models.AccountStatus) error {
	res := r.db.Model(&models.Account{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set account status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
	}
	return nil
}
