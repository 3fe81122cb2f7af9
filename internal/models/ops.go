package models

import (
	"time"
)

// OpsEntry is the durable operational trail: every retry, backoff, and
// terminal pipeline failure lands here so operators can reconstruct what
// the engine did without grepping process logs.
type OpsEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;not null;index" json:"level"`
	Source    string    `gorm:"size:100;not null;index" json:"source"`
	AccountID *uint     `gorm:"index" json:"account_id"`
	JobID     string    `gorm:"size:36;index" json:"job_id"`
	Reason    string    `gorm:"size:50" json:"reason"`
	Title     string    `gorm:"size:500;not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Context   string    `gorm:"type:text" json:"context"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// AnalyticsSnapshot is a per-day rollup maintained by the snapshot cron.
// Date is the local day key ("2006-01-02") so the unique index works the
// same on every driver. Live API reads always derive from UploadJob;
// snapshots exist for trend reporting after old jobs have been pruned.
type AnalyticsSnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Date           string    `gorm:"size:10;uniqueIndex;not null" json:"date"`
	Published      int64     `gorm:"default:0" json:"published"`
	Failed         int64     `gorm:"default:0" json:"failed"`
	Downloaded     int64     `gorm:"default:0" json:"downloaded"`
	ActiveAccounts int64     `gorm:"default:0" json:"active_accounts"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
