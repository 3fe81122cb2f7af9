package models

import (
	"time"

	"gorm.io/gorm"
)

// Platform names accepted by the engine. The set is open-ended; these are
// the ones the bundled publish bridges know about.
const (
	PlatformYouTube   = "youtube"
	PlatformFacebook  = "facebook"
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
)

// KnownPlatforms lists the platforms accepted when connecting an account.
var KnownPlatforms = []string{PlatformYouTube, PlatformFacebook, PlatformTikTok, PlatformInstagram}

func IsKnownPlatform(platform string) bool {
	for _, p := range KnownPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBanned  AccountStatus = "banned"
	AccountStatusError   AccountStatus = "error"
	AccountStatusUnknown AccountStatus = "unknown"
)

// Account is a connected publishing identity. CredentialRef is an opaque
// handle into the external credential store; the engine never sees secrets.
type Account struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Platform      string         `gorm:"size:50;not null;index:idx_platform_handle" json:"platform"`
	Handle        string         `gorm:"size:255;not null;index:idx_platform_handle" json:"handle"`
	DisplayName   string         `gorm:"size:255" json:"display_name"`
	CredentialRef string         `gorm:"size:500" json:"credential_ref"`
	Status        AccountStatus  `gorm:"size:50;default:'active';index" json:"status"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	Assignment *RotationAssignment `gorm:"foreignKey:AccountID" json:"assignment,omitempty"`
	Health     *HealthRecord       `gorm:"foreignKey:AccountID" json:"health,omitempty"`
}

// RotationAssignment binds an account to a content format, daily quota,
// and cooldown. AssignedFormat empty means the account takes any format.
// UploadsToday is only meaningful together with DayKey: a row whose DayKey
// is not the current local day counts as zero uploads today.
type RotationAssignment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	AccountID       uint       `gorm:"uniqueIndex;not null" json:"account_id"`
	AssignedFormat  string     `gorm:"size:100" json:"assigned_format"`
	DailyLimit      int        `gorm:"default:0" json:"daily_limit"`
	CooldownMinutes int        `gorm:"default:0" json:"cooldown_minutes"`
	UploadsToday    int        `gorm:"default:0" json:"uploads_today"`
	DayKey          string     `gorm:"size:10" json:"day_key"`
	LastPublishedAt *time.Time `json:"last_published_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
