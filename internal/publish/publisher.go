// Package publish holds the registry of per-platform publish capabilities.
// Concrete delivery (upload APIs, sessions, retries against the platform)
// lives in external bridge services; the engine only needs
// publish(account, artifact) -> URL or failure.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/processor"
)

// Result is a confirmed publish on the target platform.
type Result struct {
	URL         string    `json:"url"`
	PostID      string    `json:"post_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher delivers a prepared artifact through one platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, account *models.Account, artifact *processor.Artifact) (*Result, error)
}

// StatusError reports a non-2xx response from a publish bridge.
type StatusError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s publish bridge returned status %d: %s", e.Platform, e.StatusCode, e.Body)
}
