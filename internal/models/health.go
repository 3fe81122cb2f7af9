package models

import (
	"time"
)

type HealthPhase string

const (
	HealthPhaseWarmup    HealthPhase = "warmup"
	HealthPhaseActive    HealthPhase = "active"
	HealthPhaseThrottled HealthPhase = "throttled"
	HealthPhaseBanned    HealthPhase = "banned"
)

type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeFailure         OutcomeKind = "failure"
	OutcomeShadowBanSignal OutcomeKind = "shadow_ban_signal"
)

// HealthRecord is derived state, one row per account. Score is recomputed
// from the recent outcome window on every observation, never hand-edited.
// LowStreak and ZeroSuccessStreak carry the hysteresis counters across
// observations so phase transitions survive restarts.
type HealthRecord struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	AccountID          uint        `gorm:"uniqueIndex;not null" json:"account_id"`
	Score              float64     `gorm:"default:50" json:"score"`
	Phase              HealthPhase `gorm:"size:50;default:'warmup'" json:"phase"`
	DaysActive         int         `gorm:"default:0" json:"days_active"`
	ShadowBanSuspected bool        `gorm:"default:false" json:"shadow_ban_suspected"`
	LowStreak          int         `gorm:"default:0" json:"-"`
	ZeroSuccessStreak  int         `gorm:"default:0" json:"-"`
	LastOutcomeAt      *time.Time  `json:"last_outcome_at"`
	CreatedAt          time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// UploadOutcome is the append-only event log the scorer's window reads from.
type UploadOutcome struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	AccountID uint        `gorm:"not null;index:idx_outcome_account_at" json:"account_id"`
	JobID     string      `gorm:"size:36;index" json:"job_id"`
	Kind      OutcomeKind `gorm:"size:50;not null" json:"kind"`
	Reason    FailReason  `gorm:"size:50" json:"reason"`
	At        time.Time   `gorm:"not null;index:idx_outcome_account_at" json:"at"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
