package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/processor"
	"github.com/creatorops/rotor/internal/publish"
	"github.com/creatorops/rotor/pkg/util"
)

// PipelineConfig bounds retries and external-call time per step.
type PipelineConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	StepTimeout     time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetries:      3,
		RetryBackoff:    time.Minute,
		MaxRetryBackoff: 30 * time.Minute,
		StepTimeout:     5 * time.Minute,
	}
}

// PipelineDeps are the collaborators a job touches on its way through.
type PipelineDeps struct {
	Rotation   *RotationService
	Health     *HealthService
	Ops        *OpsService
	Bus        *EventBus
	Sessions   *SessionStore
	SessionID  uint
	Processor  processor.Processor
	Publishers *publish.Manager
}

// PipelineService owns every UploadJob state transition:
// pending -> claimed -> downloading -> transformed -> uploading ->
// published | failed, with failed re-entering pending under backoff until
// retries run out. Terminal rows are immutable and kept for analytics.
type PipelineService struct {
	db     *gorm.DB
	logger *zap.Logger
	cfg    PipelineConfig
	deps   PipelineDeps
}

func NewPipelineService(db *gorm.DB, logger *zap.Logger, cfg PipelineConfig, deps PipelineDeps) *PipelineService {
	return &PipelineService{
		db:     db,
		logger: logger,
		cfg:    cfg,
		deps:   deps,
	}
}

// Claim moves a pending job to claimed for the given account. The claim
// is a single conditional UPDATE: losing the race returns ErrClaimConflict
// and the caller just skips the item.
func (p *PipelineService) Claim(jobID string, account *models.Account, now time.Time) (*models.UploadJob, error) {
	res := p.db.Model(&models.UploadJob{}).
		Where("id = ? AND status = ?", jobID, models.UploadStatusPending).
		Where("not_before IS NULL OR not_before <= ?", now).
		Updates(map[string]interface{}{
			"status":     models.UploadStatusClaimed,
			"account_id": account.ID,
			"platform":   account.Platform,
			"claimed_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrClaimConflict, jobID)
	}

	var job models.UploadJob
	if err := p.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload claimed job: %w", err)
	}

	p.notify(&job)
	return &job, nil
}

// PullReady returns up to limit pending jobs whose backoff gate has
// passed, oldest first, optionally narrowed to a category set. Platform
// matching against the requested target set happens at pairing time.
func (p *PipelineService) PullReady(categories []string, limit int, now time.Time) ([]models.UploadJob, error) {
	query := p.db.Where("status = ?", models.UploadStatusPending).
		Where("not_before IS NULL OR not_before <= ?", now).
		Order("created_at asc").
		Limit(limit)
	if len(categories) > 0 {
		query = query.Where("category IN ?", categories)
	}

	var jobs []models.UploadJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to pull ready jobs: %w", err)
	}
	return jobs, nil
}

// Process drives a claimed job to a terminal state. Every external call
// runs under the step timeout; a deadline routes the job to failed with
// a timeout reason instead of hanging the worker.
func (p *PipelineService) Process(ctx context.Context, job *models.UploadJob, account *models.Account) {
	if err := p.setStatus(job, models.UploadStatusDownloading); err != nil {
		p.storeTrouble(job, err)
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, p.cfg.StepTimeout)
	artifact, err := p.deps.Processor.Prepare(stepCtx, job)
	cancel()
	if err != nil {
		p.fail(job, account, "prepare", classifyProcessorErr(err), err)
		return
	}

	job.ArtifactRef = artifact.Ref
	if job.Title == "" && artifact.Title != "" {
		job.Title = util.Truncate(artifact.Title, 500)
	}
	err = p.db.Model(job).Updates(map[string]interface{}{
		"status":       models.UploadStatusTransformed,
		"artifact_ref": job.ArtifactRef,
		"title":        job.Title,
	}).Error
	if err != nil {
		p.storeTrouble(job, err)
		return
	}
	job.Status = models.UploadStatusTransformed
	p.bump(p.deps.Sessions.BumpDownloaded)
	p.notify(job)

	publisher, err := p.deps.Publishers.Get(account.Platform)
	if err != nil {
		p.fail(job, account, "publish", models.FailReasonPlatformRejected, err)
		return
	}

	if err := p.setStatus(job, models.UploadStatusUploading); err != nil {
		p.storeTrouble(job, err)
		return
	}

	stepCtx, cancel = context.WithTimeout(ctx, p.cfg.StepTimeout)
	result, err := publisher.Publish(stepCtx, account, artifact)
	cancel()
	if err != nil {
		p.fail(job, account, "publish", classifyPublishErr(err), err)
		return
	}

	p.complete(job, account, result)
}

// complete marks the job published and fans out the side effects: quota
// counting, health success, session counters, event stream.
func (p *PipelineService) complete(job *models.UploadJob, account *models.Account, result *publish.Result) {
	now := time.Now()
	err := p.db.Model(job).Updates(map[string]interface{}{
		"status":       models.UploadStatusPublished,
		"target_url":   result.URL,
		"published_at": now,
	}).Error
	if err != nil {
		p.storeTrouble(job, err)
		return
	}
	job.Status = models.UploadStatusPublished
	job.TargetURL = result.URL
	job.PublishedAt = &now

	if err := p.deps.Rotation.RecordPublish(account.ID, now); err != nil {
		// The artifact is live on the platform; the counter refused so
		// the quota invariant still holds. Log the overrun, do not fail
		// the published job.
		p.logger.Warn("Publish landed outside quota window",
			zap.String("job_id", job.ID),
			zap.Uint("account_id", account.ID),
			zap.Error(err))
		if p.deps.Ops != nil {
			p.deps.Ops.Record("WARN", "pipeline", "Publish outside quota window", err.Error(),
				WithJob(job.ID), WithAccount(account.ID))
		}
	}

	if _, err := p.deps.Health.OnOutcome(account.ID, SuccessOutcome(job.ID, now)); err != nil {
		p.logger.Error("Failed to record success outcome",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	p.bump(p.deps.Sessions.BumpUploaded)
	p.notify(job)

	p.logger.Info("Job published",
		zap.String("job_id", job.ID),
		zap.String("platform", account.Platform),
		zap.String("handle", account.Handle),
		zap.String("url", result.URL))
}

// fail routes a step failure. With retries left the job re-enters pending
// behind an exponential backoff gate and its account is released; once
// retries are exhausted it settles in terminal failed, which is the one
// place a failure outcome reaches the health scorer.
func (p *PipelineService) fail(job *models.UploadJob, account *models.Account, step string, reason models.FailReason, cause error) {
	now := time.Now()

	if job.RetryCount >= p.cfg.MaxRetries {
		message := util.Truncate(cause.Error(), 500)
		err := p.db.Model(job).Updates(map[string]interface{}{
			"status":       models.UploadStatusFailed,
			"fail_reason":  reason,
			"fail_message": message,
			"failed_at":    now,
		}).Error
		if err != nil {
			p.storeTrouble(job, err)
			return
		}
		job.Status = models.UploadStatusFailed
		job.FailReason = reason
		job.FailMessage = message
		job.FailedAt = &now

		if _, err := p.deps.Health.OnOutcome(account.ID, FailureOutcome(job.ID, reason, now)); err != nil {
			p.logger.Error("Failed to record failure outcome",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		p.bump(p.deps.Sessions.BumpFailed)

		if p.deps.Ops != nil {
			p.deps.Ops.Record("ERROR", "pipeline",
				fmt.Sprintf("Upload failed permanently after %d attempts", job.RetryCount+1),
				cause.Error(),
				WithJob(job.ID), WithAccount(account.ID), WithReason(reason))
		}
		p.notify(job)

		p.logger.Error("Job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("step", step),
			zap.String("reason", string(reason)),
			zap.Error(fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, cause)))
		return
	}

	delay := util.NextBackoff(p.cfg.RetryBackoff, job.RetryCount, p.cfg.MaxRetryBackoff)
	notBefore := now.Add(delay)
	err := p.db.Model(job).Updates(map[string]interface{}{
		"status":       models.UploadStatusPending,
		"retry_count":  gorm.Expr("retry_count + 1"),
		"not_before":   notBefore,
		"account_id":   nil,
		"platform":     "",
		"artifact_ref": "",
		"claimed_at":   nil,
	}).Error
	if err != nil {
		p.storeTrouble(job, err)
		return
	}
	job.Status = models.UploadStatusPending
	job.RetryCount++
	job.NotBefore = &notBefore
	job.AccountID = nil

	if p.deps.Ops != nil {
		p.deps.Ops.Record("WARN", "pipeline",
			fmt.Sprintf("Upload step %s failed, retry %d scheduled", step, job.RetryCount),
			cause.Error(),
			WithJob(job.ID), WithAccount(account.ID), WithReason(reason),
			WithContext(map[string]interface{}{"backoff": delay.String()}))
	}
	p.notify(job)

	p.logger.Warn("Job step failed, retry scheduled",
		zap.String("job_id", job.ID),
		zap.String("step", step),
		zap.String("reason", string(reason)),
		zap.Duration("backoff", delay),
		zap.Error(cause))
}

// RecoverInFlight requeues jobs a dead process left mid-flight. Called
// once at startup, before the loop can claim anything.
func (p *PipelineService) RecoverInFlight() (int, error) {
	res := p.db.Model(&models.UploadJob{}).
		Where("status IN ?", []models.UploadStatus{
			models.UploadStatusClaimed,
			models.UploadStatusDownloading,
			models.UploadStatusTransformed,
			models.UploadStatusUploading,
		}).
		Updates(map[string]interface{}{
			"status":       models.UploadStatusPending,
			"account_id":   nil,
			"platform":     "",
			"artifact_ref": "",
			"claimed_at":   nil,
			"not_before":   nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover in-flight jobs: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		p.logger.Warn("Requeued in-flight jobs from previous run",
			zap.Int64("count", res.RowsAffected))
		if p.deps.Ops != nil {
			p.deps.Ops.Record("WARN", "pipeline",
				fmt.Sprintf("Requeued %d in-flight jobs from previous run", res.RowsAffected), "")
		}
	}
	return int(res.RowsAffected), nil
}

func (p *PipelineService) setStatus(job *models.UploadJob, status models.UploadStatus) error {
	if err := p.db.Model(job).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	job.Status = status
	p.notify(job)
	return nil
}

// storeTrouble handles persistence errors mid-transition: the job is left
// where it is and startup recovery or the next wake picks it up.
func (p *PipelineService) storeTrouble(job *models.UploadJob, err error) {
	p.logger.Error("Store unavailable during pipeline transition",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Error(err))
}

func (p *PipelineService) bump(fn func(uint) error) {
	if p.deps.Sessions == nil {
		return
	}
	if err := fn(p.deps.SessionID); err != nil {
		p.logger.Error("Failed to bump session counter", zap.Error(err))
	}
}

func (p *PipelineService) notify(job *models.UploadJob) {
	if p.deps.Bus == nil {
		return
	}
	evt := Event{
		Type:     EventJobUpdate,
		JobID:    job.ID,
		Platform: job.Platform,
		Status:   string(job.Status),
	}
	if job.Status == models.UploadStatusFailed {
		evt.Error = job.FailMessage
	}
	p.deps.Bus.Publish(evt)
}

func classifyProcessorErr(err error) models.FailReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailReasonTimeout
	}
	var statusErr *processor.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 429 {
			return models.FailReasonQuota
		}
		return models.FailReasonTransform
	}
	return models.FailReasonNetwork
}

func classifyPublishErr(err error) models.FailReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailReasonTimeout
	}
	var statusErr *publish.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 429 {
			return models.FailReasonQuota
		}
		return models.FailReasonPlatformRejected
	}
	return models.FailReasonNetwork
}
