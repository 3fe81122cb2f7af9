// Package processor talks to the external download/transform service. The
// engine treats it as a black box that turns a source reference into a
// publishable artifact; everything about codecs and transforms stays on
// the other side of this boundary.
package processor

import (
	"context"
	"fmt"

	"github.com/creatorops/rotor/internal/models"
)

// Artifact is a prepared, publishable piece of content.
type Artifact struct {
	Ref      string `json:"ref"`
	Title    string `json:"title,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
}

// Processor prepares a job's source into a publishable artifact.
type Processor interface {
	Prepare(ctx context.Context, job *models.UploadJob) (*Artifact, error)
}

// StatusError reports a non-2xx response from the processor service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("processor returned status %d: %s", e.StatusCode, e.Body)
}
