package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray stores a string set as a PostgreSQL-style array literal so the
// same column works on both the postgres and sqlite drivers.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		// Remove outer braces and split by comma
		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			// Remove quotes if present
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Fallback to string parsing
		return s.Scan(string(v))
	default:
		return errors.New(fmt.Sprintf("cannot scan %T into StringArray", value))
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	// Format as array literal: {value1,value2,value3}
	quoted := make([]string, len(s))
	for i, v := range s {
		// Escape quotes and wrap in quotes
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// Contains reports whether v is one of the stored values.
func (s StringArray) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

type UploadStatus string

const (
	UploadStatusPending     UploadStatus = "pending"
	UploadStatusClaimed     UploadStatus = "claimed"
	UploadStatusDownloading UploadStatus = "downloading"
	UploadStatusTransformed UploadStatus = "transformed"
	UploadStatusUploading   UploadStatus = "uploading"
	UploadStatusPublished   UploadStatus = "published"
	UploadStatusFailed      UploadStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusPublished || s == UploadStatusFailed
}

// InFlight reports whether the status means an account currently owns the job.
func (s UploadStatus) InFlight() bool {
	switch s {
	case UploadStatusClaimed, UploadStatusDownloading, UploadStatusTransformed, UploadStatusUploading:
		return true
	}
	return false
}

type FailReason string

const (
	FailReasonNetwork          FailReason = "network"
	FailReasonQuota            FailReason = "quota"
	FailReasonTransform        FailReason = "transform-error"
	FailReasonPlatformRejected FailReason = "platform-rejected"
	FailReasonTimeout          FailReason = "timeout"
)

// UploadJob tracks one content item from intake to terminal publish/fail.
// Platforms is the requested target set; Platform is resolved to the
// claiming account's platform once an account owns the job. NotBefore gates
// retried jobs until their backoff delay has elapsed.
type UploadJob struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	SourceRef   string         `gorm:"size:1000;not null;index" json:"source_ref"`
	Title       string         `gorm:"size:500" json:"title"`
	Category    string         `gorm:"size:100;index" json:"category"`
	Platforms   StringArray    `gorm:"type:text" json:"platforms"`
	Platform    string         `gorm:"size:50;index" json:"platform"`
	Status      UploadStatus   `gorm:"size:50;default:'pending';index" json:"status"`
	RetryCount  int            `gorm:"default:0" json:"retry_count"`
	NotBefore   *time.Time     `gorm:"index" json:"not_before"`
	AccountID   *uint          `gorm:"index" json:"account_id"`
	ArtifactRef string         `gorm:"size:1000" json:"artifact_ref"`
	TargetURL   string         `gorm:"size:1000" json:"target_url"`
	FailReason  FailReason     `gorm:"size:50" json:"fail_reason"`
	FailMessage string         `gorm:"size:500" json:"fail_message"`
	ClaimedAt   *time.Time     `json:"claimed_at"`
	PublishedAt *time.Time     `json:"published_at"`
	FailedAt    *time.Time     `json:"failed_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
