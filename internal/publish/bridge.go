package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/processor"
)

// Bridge is the HTTP client publisher for one platform's upload service.
type Bridge struct {
	config *config.PublisherBridge
	logger *zap.Logger
	client *http.Client
}

func NewBridge(cfg *config.PublisherBridge, logger *zap.Logger) *Bridge {
	return &Bridge{
		config: cfg,
		logger: logger,
		client: &http.Client{},
	}
}

func (b *Bridge) Platform() string {
	return b.config.Platform
}

type publishRequest struct {
	Handle        string `json:"handle"`
	CredentialRef string `json:"credential_ref"`
	ArtifactRef   string `json:"artifact_ref"`
	Title         string `json:"title,omitempty"`
}

type publishResponse struct {
	URL    string `json:"url"`
	PostID string `json:"post_id"`
}

func (b *Bridge) Publish(ctx context.Context, account *models.Account, artifact *processor.Artifact) (*Result, error) {
	url := fmt.Sprintf("%s/v1/publish", b.config.BaseURL)

	jsonBody, err := json.Marshal(publishRequest{
		Handle:        account.Handle,
		CredentialRef: account.CredentialRef,
		ArtifactRef:   artifact.Ref,
		Title:         artifact.Title,
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
		return nil, fmt.Errorf("failed to call publish bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			Platform:   b.config.Platform,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var response publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	b.logger.Info("Artifact published",
		zap.String("platform", b.config.Platform),
		zap.String("handle", account.Handle),
		zap.String("url", response.URL))

	return &Result{
		URL:         response.URL,
		PostID:      response.PostID,
		PublishedAt: time.Now(),
	}, nil
}
