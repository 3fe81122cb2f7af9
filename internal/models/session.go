package models

import (
	"time"
)

type SessionState string

const (
	SessionStateStopped SessionState = "stopped"
	SessionStateRunning SessionState = "running"
	SessionStatePaused  SessionState = "paused"
)

// AutopilotSession is the singleton row backing the control loop. State,
// configuration, and cumulative counters persist here so a restarted
// process resumes where it left off without double-counting.
type AutopilotSession struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	State           SessionState `gorm:"size:50;default:'stopped'" json:"state"`
	IntervalMinutes int          `gorm:"default:0" json:"interval_minutes"`
	Categories      StringArray  `gorm:"type:text" json:"categories"`
	Targets         StringArray  `gorm:"type:text" json:"targets"`
	MaxItems        int          `gorm:"default:0" json:"max_items"`
	SessionsRun     int64        `gorm:"default:0" json:"sessions_run"`
	TotalDownloaded int64        `gorm:"default:0" json:"total_downloaded"`
	TotalUploaded   int64        `gorm:"default:0" json:"total_uploaded"`
	TotalFailed     int64        `gorm:"default:0" json:"total_failed"`
	LastRunAt       *time.Time   `json:"last_run_at"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}
