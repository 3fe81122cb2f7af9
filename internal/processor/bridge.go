package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
)

// Bridge is the HTTP client for the processor service.
type Bridge struct {
	config *config.Processor
	logger *zap.Logger
	client *http.Client
}

func NewBridge(cfg *config.Processor, logger *zap.Logger) *Bridge {
	return &Bridge{
		config: cfg,
		logger: logger,
		// Deadlines come from the caller's context so the pipeline's
		// step timeout is the single source of truth.
		client: &http.Client{},
	}
}

type prepareRequest struct {
	SourceRef string `json:"source_ref"`
	Category  string `json:"category,omitempty"`
	JobID     string `json:"job_id"`
}

type prepareResponse struct {
	ArtifactRef string `json:"artifact_ref"`
	Title       string `json:"title"`
	Duration    int    `json:"duration_seconds"`
}

func (b *Bridge) Prepare(ctx context.Context, job *models.UploadJob) (*Artifact, error) {
	url := fmt.Sprintf("%s/v1/prepare", b.config.BaseURL)

	jsonBody, err := json.Marshal(prepareRequest{
		SourceRef: job.SourceRef,
		Category:  job.Category,
		JobID:     job.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call processor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response prepareResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	b.logger.Debug("Artifact prepared",
		zap.String("job_id", job.ID),
		zap.String("artifact_ref", response.ArtifactRef))

	return &Artifact{
		Ref:      response.ArtifactRef,
		Title:    response.Title,
		Duration: response.Duration,
	}, nil
}
