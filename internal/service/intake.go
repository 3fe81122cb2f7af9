package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/pkg/util"
)

// IntakeService pulls publishable items from the content catalog and
// turns them into pending upload jobs. Items are deduplicated on their
// source ref, so re-syncing the same feed is harmless.
type IntakeService struct {
	config *config.Intake
	db     *gorm.DB
	logger *zap.Logger
	ops    *OpsService
	client *http.Client
}

type CatalogItem struct {
	SourceRef string   `json:"source_ref"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Platforms []string `json:"platforms"`
}

type catalogPageResponse struct {
	Items      []CatalogItem `json:"items"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

func NewIntakeService(config *config.Intake, db *gorm.DB, logger *zap.Logger, ops *OpsService) *IntakeService {
	return &IntakeService{
		config: config,
		db:     db,
		logger: logger,
		ops:    ops,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Sync walks the catalog feed for the given categories and enqueues every
// item not seen before. An empty category list pulls the whole feed.
// Returns the number of jobs created.
func (s *IntakeService) Sync(ctx context.Context, categories []string) (int, error) {
	s.logger.Info("Starting catalog sync", zap.Strings("categories", categories))

	if len(categories) == 0 {
		categories = []string{""}
	}

	created := 0
	for _, category := range categories {
		n, err := s.syncCategory(ctx, category)
		created += n
		if err != nil {
			return created, fmt.Errorf("failed to sync category %q: %w", category, err)
		}
	}

	s.logger.Info("Catalog sync completed", zap.Int("created", created))
	return created, nil
}

func (s *IntakeService) syncCategory(ctx context.Context, category string) (int, error) {
	created := 0
	cursor := ""
	for {
		page, err := s.fetchPage(ctx, category, cursor)
		if err != nil {
			return created, err
		}

		for _, item := range page.Items {
			ok, err := s.enqueueItem(item)
			if err != nil {
				s.logger.Error("Failed to enqueue catalog item",
					zap.String("source_ref", item.SourceRef), zap.Error(err))
				continue
			}
			if ok {
				created++
			}
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return created, nil
}

func (s *IntakeService) fetchPage(ctx context.Context, category, cursor string) (*catalogPageResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/items", s.config.BaseURL)

	params := url.Values{}
	params.Set("limit", strconv.Itoa(s.config.PageSize))
	if category != "" {
		params.Set("category", category)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog API returned status %d: %s", resp.StatusCode, util.Truncate(string(body), 200))
	}

	var page catalogPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, nil
}

// enqueueItem creates a pending job for the item unless one already
// exists for its source ref, in any state. Reports whether a job was
// created.
func (s *IntakeService) enqueueItem(item CatalogItem) (bool, error) {
	if item.SourceRef == "" {
		return false, errors.New("catalog item has empty source_ref")
	}

	var existing models.UploadJob
	result := s.db.Where("source_ref = ?", item.SourceRef).First(&existing)
	if result.Error == nil {
		return false, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to query existing job: %w", result.Error)
	}

	job := models.UploadJob{
		ID:        uuid.NewString(),
		SourceRef: item.SourceRef,
		Title:     util.Truncate(item.Title, 500),
		Category:  item.Category,
		Platforms: models.StringArray(item.Platforms),
		Status:    models.UploadStatusPending,
	}
	if err := s.db.Create(&job).Error; err != nil {
		return false, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Enqueued catalog item",
		zap.String("job_id", job.ID),
		zap.String("source_ref", item.SourceRef),
		zap.String("category", item.Category))
	return true, nil
}

// EnqueueManual creates a pending job outside the catalog flow. Unknown
// platform names are rejected before anything is stored.
func (s *IntakeService) EnqueueManual(item CatalogItem) (*models.UploadJob, error) {
	if item.SourceRef == "" {
		return nil, errors.New("source_ref is required")
	}
	for _, platform := range item.Platforms {
		if !models.IsKnownPlatform(platform) {
			return nil, fmt.Errorf("unknown platform: %s", platform)
		}
	}

	var existing models.UploadJob
	result := s.db.Where("source_ref = ?", item.SourceRef).First(&existing)
	if result.Error == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, item.SourceRef)
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query existing job: %w", result.Error)
	}

	job := models.UploadJob{
		ID:        uuid.NewString(),
		SourceRef: item.SourceRef,
		Title:     util.Truncate(item.Title, 500),
		Category:  item.Category,
		Platforms: models.StringArray(item.Platforms),
		Status:    models.UploadStatusPending,
	}
	if err := s.db.Create(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if s.ops != nil {
		s.ops.Record("INFO", "intake", "Manual upload enqueued", item.SourceRef, WithJob(job.ID))
	}
	return &job, nil
}
