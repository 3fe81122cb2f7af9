package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
)

// StartRequest is the per-start configuration. Zero or missing fields
// fall back to the configured defaults.
type StartRequest struct {
	IntervalMinutes int
	Categories      []string
	Targets         []string
}

// SessionStats mirrors the cumulative counters on the wire.
type SessionStats struct {
	SessionsRun     int64 `json:"sessionsRun"`
	TotalDownloaded int64 `json:"totalDownloaded"`
	TotalUploaded   int64 `json:"totalUploaded"`
	TotalFailed     int64 `json:"totalFailed"`
}

// StatusView is the autopilot status payload.
type StatusView struct {
	Running         bool         `json:"running"`
	State           string       `json:"state"`
	IntervalMinutes int          `json:"intervalMinutes"`
	Categories      []string     `json:"categories"`
	Targets         []string     `json:"targets"`
	LastRunAt       *time.Time   `json:"lastRunAt"`
	Stats           SessionStats `json:"stats"`
}

// AutopilotService runs the wake loop that pairs ready jobs with
// eligible accounts and hands the claims to pipeline workers. It is a
// three-state machine (stopped, running, paused); the paused state keeps
// the ticker alive but suppresses new claims while in-flight work
// finishes on its own.
type AutopilotService struct {
	config *config.Autopilot
	logger *zap.Logger
	loc    *time.Location

	rotation *RotationService
	health   *HealthService
	pipeline *PipelineService
	intake   *IntakeService
	sessions *SessionStore
	ops      *OpsService
	bus      *EventBus

	mu      sync.Mutex
	state   models.SessionState
	session *models.AutopilotSession
	ticker  *time.Ticker
	stopCh  chan struct{}

	paused   atomic.Bool
	stopping atomic.Bool
	wakeMu   sync.Mutex
	wg       sync.WaitGroup
	slots    chan struct{}
}

func NewAutopilotService(
	cfg *config.Autopilot,
	logger *zap.Logger,
	loc *time.Location,
	rotation *RotationService,
	health *HealthService,
	pipeline *PipelineService,
	intake *IntakeService,
	sessions *SessionStore,
	ops *OpsService,
	bus *EventBus,
	session *models.AutopilotSession,
) *AutopilotService {
	slots := cfg.WorkerSlots
	if slots <= 0 {
		slots = 1
	}
	return &AutopilotService{
		config:   cfg,
		logger:   logger,
		loc:      loc,
		rotation: rotation,
		health:   health,
		pipeline: pipeline,
		intake:   intake,
		sessions: sessions,
		ops:      ops,
		bus:      bus,
		state:    models.SessionStateStopped,
		session:  session,
		slots:    make(chan struct{}, slots),
	}
}

// Restore relaunches the loop when the persisted session says the engine
// was running or paused before the process died. Called once at startup.
func (a *AutopilotService) Restore() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.session.State {
	case models.SessionStateRunning, models.SessionStatePaused:
	default:
		return nil
	}

	a.state = a.session.State
	a.paused.Store(a.session.State == models.SessionStatePaused)
	a.launch(a.interval())

	a.logger.Info("Restored autopilot session",
		zap.String("state", string(a.state)),
		zap.Int("interval_minutes", a.session.IntervalMinutes),
		zap.Strings("targets", a.session.Targets))
	return nil
}

// Start brings the engine from stopped to running with the given
// configuration. Starting while already running is a no-op; starting
// while paused is rejected, resume is the way back from there.
func (a *AutopilotService) Start(req StartRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case models.SessionStateRunning:
		a.logger.Info("Autopilot already running, start ignored")
		return nil
	case models.SessionStatePaused:
		return fmt.Errorf("%w: cannot start while paused, resume instead", ErrInvalidTransition)
	}

	interval := req.IntervalMinutes
	if interval <= 0 {
		interval = a.config.IntervalMinutes
	}

	a.session.IntervalMinutes = interval
	a.session.Categories = models.StringArray(req.Categories)
	a.session.Targets = models.StringArray(req.Targets)
	a.session.MaxItems = a.config.MaxItemsPerWake
	if err := a.sessions.SaveConfig(a.session.ID, interval, req.Categories, req.Targets, a.session.MaxItems); err != nil {
		return fmt.Errorf("failed to persist session config: %w", err)
	}

	a.paused.Store(false)
	a.stopping.Store(false)
	a.setStateLocked(models.SessionStateRunning)
	a.launch(time.Duration(interval) * time.Minute)

	a.logger.Info("Autopilot started",
		zap.Int("interval_minutes", interval),
		zap.Strings("categories", req.Categories),
		zap.Strings("targets", req.Targets))
	if a.ops != nil {
		a.ops.Record("INFO", "autopilot", "Autopilot started",
			fmt.Sprintf("interval=%dm targets=%v", interval, req.Targets))
	}
	return nil
}

// Pause keeps the ticker alive but stops new claims. Only valid while
// running.
func (a *AutopilotService) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != models.SessionStateRunning {
		return fmt.Errorf("%w: pause requires running, current state is %s", ErrInvalidTransition, a.state)
	}

	a.paused.Store(true)
	a.setStateLocked(models.SessionStatePaused)
	a.logger.Info("Autopilot paused")
	return nil
}

// Resume lifts a pause. Only valid while paused.
func (a *AutopilotService) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != models.SessionStatePaused {
		return fmt.Errorf("%w: resume requires paused, current state is %s", ErrInvalidTransition, a.state)
	}

	a.paused.Store(false)
	a.setStateLocked(models.SessionStateRunning)
	a.logger.Info("Autopilot resumed")
	return nil
}

// Stop halts the loop and drains in-flight workers. Stopping an already
// stopped engine is a no-op.
func (a *AutopilotService) Stop() error {
	a.mu.Lock()
	if a.state == models.SessionStateStopped {
		a.mu.Unlock()
		return nil
	}

	a.stopping.Store(true)
	a.halt()
	a.paused.Store(false)
	a.setStateLocked(models.SessionStateStopped)
	a.mu.Unlock()

	a.wg.Wait()

	a.logger.Info("Autopilot stopped")
	if a.ops != nil {
		a.ops.Record("INFO", "autopilot", "Autopilot stopped", "")
	}
	return nil
}

// Shutdown is the process-exit path: halt the loop without touching the
// persisted state, so a restart can restore it, and wait for workers at
// most until ctx expires.
func (a *AutopilotService) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.stopping.Store(true)
	a.halt()
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("Autopilot drained")
	case <-ctx.Done():
		a.logger.Warn("Shutdown deadline reached with workers still in flight")
	}
}

// Status reports the live state plus the persisted counters.
func (a *AutopilotService) Status() (*StatusView, error) {
	session, err := a.sessions.Load()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	return &StatusView{
		Running:         state == models.SessionStateRunning,
		State:           string(state),
		IntervalMinutes: session.IntervalMinutes,
		Categories:      session.Categories,
		Targets:         session.Targets,
		LastRunAt:       session.LastRunAt,
		Stats: SessionStats{
			SessionsRun:     session.SessionsRun,
			TotalDownloaded: session.TotalDownloaded,
			TotalUploaded:   session.TotalUploaded,
			TotalFailed:     session.TotalFailed,
		},
	}, nil
}

// launch spins the ticker loop plus an immediate first wake. Caller holds mu.
func (a *AutopilotService) launch(interval time.Duration) {
	a.ticker = time.NewTicker(interval)
	a.stopCh = make(chan struct{})

	go func() {
		a.wake()
	}()

	go func(ticker *time.Ticker, stopCh chan struct{}) {
		for {
			select {
			case <-ticker.C:
				a.wake()
			case <-stopCh:
				return
			}
		}
	}(a.ticker, a.stopCh)
}

// halt tears the loop down. Caller holds mu.
func (a *AutopilotService) halt() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
}

func (a *AutopilotService) setStateLocked(state models.SessionState) {
	a.state = state
	a.session.State = state
	if err := a.sessions.SaveState(a.session.ID, state); err != nil {
		a.logger.Error("Failed to persist autopilot state", zap.Error(err))
	}
	if a.bus != nil {
		a.bus.Publish(Event{Type: EventAutopilotState, State: string(state)})
	}
}

func (a *AutopilotService) interval() time.Duration {
	minutes := a.session.IntervalMinutes
	if minutes <= 0 {
		minutes = a.config.IntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// wake is one pass of the loop: sync the catalog if configured, pull
// ready jobs, pair each with the most rested eligible account, claim, and
// hand the pair to a worker. A wake still running when the next tick
// fires makes the new tick a no-op.
func (a *AutopilotService) wake() {
	if !a.wakeMu.TryLock() {
		a.logger.Debug("Previous wake still running, skipping tick")
		return
	}
	defer a.wakeMu.Unlock()

	if a.paused.Load() || a.stopping.Load() {
		return
	}

	start := time.Now()
	now := start.In(a.loc)

	a.mu.Lock()
	categories := []string(a.session.Categories)
	targets := []string(a.session.Targets)
	maxItems := a.session.MaxItems
	sessionID := a.session.ID
	a.mu.Unlock()
	if maxItems <= 0 {
		maxItems = a.config.MaxItemsPerWake
	}

	a.syncCatalog(categories)

	jobs, err := a.pipeline.PullReady(categories, maxItems, now)
	if err != nil {
		a.logger.Error("Failed to pull ready jobs", zap.Error(err))
		return
	}

	// Per-account dispatch book for this wake. Workers run async, so the
	// stored counters move underneath the loop; the quota budget is frozen
	// at each account's first encounter and claims are counted against it.
	taken := make(map[uint]int)
	budget := make(map[uint]int)

	dispatched := 0
	for i := range jobs {
		if a.paused.Load() || a.stopping.Load() {
			break
		}

		job := jobs[i]
		account := a.pickAccount(&job, targets, taken, budget, now)
		if account == nil {
			continue
		}

		claimed, err := a.pipeline.Claim(job.ID, account, now)
		if err != nil {
			if !errors.Is(err, ErrClaimConflict) {
				a.logger.Error("Failed to claim job", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		taken[account.ID]++

		a.wg.Add(1)
		a.slots <- struct{}{}
		go func(j *models.UploadJob, acc *models.Account) {
			defer a.wg.Done()
			defer func() { <-a.slots }()
			a.pipeline.Process(context.Background(), j, acc)
		}(claimed, account)
		dispatched++
	}

	if err := a.sessions.MarkRun(sessionID, start); err != nil {
		a.logger.Error("Failed to mark wake", zap.Error(err))
	}

	a.logger.Info("Wake completed",
		zap.Int("candidates", len(jobs)),
		zap.Int("dispatched", dispatched),
		zap.Duration("duration", time.Since(start)))
}

func (a *AutopilotService) syncCatalog(categories []string) {
	if !a.intakeEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := a.intake.Sync(ctx, categories); err != nil {
		a.logger.Error("Catalog sync failed", zap.Error(err))
		if a.ops != nil {
			a.ops.Record("ERROR", "autopilot", "Catalog sync failed", err.Error())
		}
	}
}

func (a *AutopilotService) intakeEnabled() bool {
	return a.intake != nil && a.intake.config.SyncOnWake && a.intake.config.BaseURL != ""
}

// pickAccount returns the most rested schedulable account able to take
// the job on one of the requested target platforms, or nil when nobody
// is eligible right now. Dispatches already made this wake are charged
// against a quota budget frozen at the account's first encounter, and an
// account with a cooldown is never booked twice in one wake.
func (a *AutopilotService) pickAccount(job *models.UploadJob, targets []string, taken, budget map[uint]int, now time.Time) *models.Account {
	for _, platform := range job.Platforms {
		if len(targets) > 0 && !contains(targets, platform) {
			continue
		}

		accounts, err := a.rotation.EligibleForTarget(platform, job.Category, now)
		if err != nil {
			a.logger.Error("Failed to list eligible accounts",
				zap.String("platform", platform), zap.Error(err))
			continue
		}
		for i := range accounts {
			account := &accounts[i]
			if !a.health.Schedulable(account.ID) {
				continue
			}

			n := taken[account.ID]
			if n > 0 && account.Assignment != nil && account.Assignment.CooldownMinutes > 0 {
				continue
			}
			remaining, seen := budget[account.ID]
			if !seen {
				remaining = a.rotation.RemainingQuota(account, now)
				budget[account.ID] = remaining
			}
			if remaining >= 0 && n >= remaining {
				continue
			}
			return account
		}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
