// Package worker runs the scheduled maintenance jobs of the progress engine:
// difficulty recalibration for recently reviewed item sets and the sweep that
// closes study sessions abandoned without an end. It runs independently of HTTP
// request handling and talks to the progress store directly.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/observability"
	"studyprogress/internal/serviceinterfaces"
	contextutils "studyprogress/internal/utils"

	"github.com/go-co-op/gocron"
	"go.opentelemetry.io/otel/attribute"
)

// Job tags
const (
	JobRecalibrate = "recalibrate"
	JobSweep       = "session_sweep"

	maxHistory = 50
)

// Store is the part of the progress store the worker reads and sweeps
type Store interface {
	ListRecentlyReviewedSets(ctx context.Context, since time.Time) ([]int, error)
	CloseStaleSessions(ctx context.Context, updatedBefore time.Time) (int64, error)
}

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool                 `json:"is_running"`
	CurrentActivity string               `json:"current_activity,omitempty"`
	LastRunStart    time.Time            `json:"last_run_start"`
	LastRunFinish   time.Time            `json:"last_run_finish"`
	LastRunError    string               `json:"last_run_error,omitempty"`
	NextRuns        map[string]time.Time `json:"next_runs,omitempty"`
}

// RunRecord tracks individual job runs
type RunRecord struct {
	Job       string        `json:"job"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
}

// RecalibrationSummary is the outcome of one recalibration pass
type RecalibrationSummary struct {
	Sets      int `json:"sets"`
	Evaluated int `json:"evaluated"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
	SetErrors int `json:"set_errors"`
}

// Worker schedules the maintenance jobs on a gocron scheduler
type Worker struct {
	store      Store
	difficulty serviceinterfaces.DifficultyService
	cfg        config.WorkerConfig
	stale      time.Duration
	clock      contextutils.Clock
	logger     *observability.Logger
	instance   string

	scheduler *gocron.Scheduler
	jobs      map[string]*gocron.Job

	mu      sync.RWMutex
	status  Status
	history []RunRecord

	// lastRecalibration is the lower bound of the next "reviewed since" query
	lastRecalibration time.Time
}

var _ serviceinterfaces.Lifecycle = (*Worker)(nil)

// NewWorker creates a worker. A nil clock uses the system clock.
func NewWorker(store Store, difficulty serviceinterfaces.DifficultyService, cfg *config.Config, clock contextutils.Clock, instance string, logger *observability.Logger) *Worker {
	if clock == nil {
		clock = contextutils.SystemClock{}
	}
	return &Worker{
		store:             store,
		difficulty:        difficulty,
		cfg:               cfg.Worker,
		stale:             cfg.Engine.Session.StaleThreshold,
		clock:             clock,
		logger:            logger,
		instance:          instance,
		jobs:              make(map[string]*gocron.Job),
		lastRecalibration: clock.Now().Add(-cfg.Worker.RecalibrateLookback),
	}
}

// Startup schedules both jobs and starts the scheduler. Each job runs once immediately.
func (w *Worker) Startup(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status.IsRunning {
		return nil
	}
	if w.cfg.RecalibrateInterval <= 0 || w.cfg.SessionSweepInterval <= 0 {
		return contextutils.InvalidInputf("worker intervals must be positive")
	}

	w.scheduler = gocron.NewScheduler(time.UTC)
	w.scheduler.SingletonModeAll()

	recalibrate, err := w.scheduler.Every(w.cfg.RecalibrateInterval).Tag(JobRecalibrate).Do(func() {
		_, _ = w.RecalibrateReviewedSets(context.Background())
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to schedule recalibration")
	}
	sweep, err := w.scheduler.Every(w.cfg.SessionSweepInterval).Tag(JobSweep).Do(func() {
		_, _ = w.SweepStaleSessions(context.Background())
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to schedule session sweep")
	}
	w.jobs[JobRecalibrate] = recalibrate
	w.jobs[JobSweep] = sweep

	w.scheduler.StartAsync()
	w.status.IsRunning = true

	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"instance":               w.instance,
		"recalibrate_interval":   w.cfg.RecalibrateInterval.String(),
		"session_sweep_interval": w.cfg.SessionSweepInterval.String(),
	})
	return nil
}

// Shutdown stops the scheduler
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	scheduler := w.scheduler
	w.scheduler = nil
	w.jobs = make(map[string]*gocron.Job)
	w.status.IsRunning = false
	w.mu.Unlock()

	// Stop waits for running jobs, which take the lock themselves
	if scheduler != nil {
		scheduler.Stop()
	}

	w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{
		"instance": w.instance,
	})
	return nil
}

// IsReady reports whether the scheduler is running
func (w *Worker) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status.IsRunning
}

// RecalibrateReviewedSets recalibrates every item set reviewed since the previous pass.
// One failing set does not stop the others; the watermark only advances when the set listing succeeds.
func (w *Worker) RecalibrateReviewedSets(ctx context.Context) (result *RecalibrationSummary, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "RecalibrateReviewedSets",
		attribute.String("worker.instance", w.instance))
	defer observability.FinishSpan(span, &err)

	start := w.clock.Now()
	w.beginRun(JobRecalibrate, start)

	w.mu.RLock()
	since := w.lastRecalibration
	w.mu.RUnlock()

	setIDs, err := w.store.ListRecentlyReviewedSets(ctx, since)
	if err != nil {
		w.finishRun(JobRecalibrate, start, err, "failed to list reviewed sets")
		return nil, contextutils.WrapError(err, "failed to list recently reviewed item sets")
	}

	summary := &RecalibrationSummary{Sets: len(setIDs)}
	for _, setID := range setIDs {
		if ctx.Err() != nil {
			break
		}
		report, setErr := w.difficulty.AdjustItemSetDifficulty(ctx, setID)
		if setErr != nil {
			summary.SetErrors++
			w.logger.Error(ctx, "Item set recalibration failed", setErr, map[string]interface{}{
				"item_set_id": setID,
			})
			continue
		}
		summary.Evaluated += report.Evaluated
		summary.Changed += len(report.Changes)
		summary.Failed += len(report.Failures)
	}
	span.SetAttributes(
		attribute.Int("worker.sets", summary.Sets),
		attribute.Int("worker.changed", summary.Changed),
	)

	w.mu.Lock()
	w.lastRecalibration = start
	w.mu.Unlock()

	details := fmt.Sprintf("sets=%d evaluated=%d changed=%d failed=%d set_errors=%d",
		summary.Sets, summary.Evaluated, summary.Changed, summary.Failed, summary.SetErrors)
	var runErr error
	if summary.SetErrors > 0 {
		runErr = contextutils.ErrorWithContextf("%d item sets failed to recalibrate", summary.SetErrors)
	}
	w.finishRun(JobRecalibrate, start, runErr, details)

	w.logger.Info(ctx, "Recalibration pass finished", map[string]interface{}{
		"since":      since,
		"sets":       summary.Sets,
		"evaluated":  summary.Evaluated,
		"changed":    summary.Changed,
		"failed":     summary.Failed,
		"set_errors": summary.SetErrors,
	})
	return summary, nil
}

// SweepStaleSessions closes store sessions that have not been checkpointed within the stale threshold
func (w *Worker) SweepStaleSessions(ctx context.Context) (result int64, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "SweepStaleSessions",
		attribute.String("worker.instance", w.instance))
	defer observability.FinishSpan(span, &err)

	start := w.clock.Now()
	w.beginRun(JobSweep, start)

	cutoff := start.Add(-w.stale)
	closed, err := w.store.CloseStaleSessions(ctx, cutoff)
	if err != nil {
		w.finishRun(JobSweep, start, err, "failed to close stale sessions")
		return 0, contextutils.WrapError(err, "failed to close stale sessions")
	}

	span.SetAttributes(attribute.Int64("worker.sessions_closed", closed))
	w.finishRun(JobSweep, start, nil, fmt.Sprintf("closed=%d", closed))
	if closed > 0 {
		w.logger.Info(ctx, "Closed stale study sessions", map[string]interface{}{
			"closed": closed,
			"cutoff": cutoff,
		})
	}
	return closed, nil
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := w.status
	if len(w.jobs) > 0 {
		status.NextRuns = make(map[string]time.Time, len(w.jobs))
		for tag, job := range w.jobs {
			status.NextRuns[tag] = job.NextRun()
		}
	}
	return status
}

// GetHistory returns the most recent job runs, oldest first
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}

func (w *Worker) beginRun(job string, start time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.CurrentActivity = job
	w.status.LastRunStart = start
}

func (w *Worker) finishRun(job string, start time.Time, err error, details string) {
	end := w.clock.Now()
	record := RunRecord{
		Job:       job,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Status:    "Success",
		Details:   details,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.CurrentActivity = ""
	w.status.LastRunFinish = end
	w.status.LastRunError = ""
	if err != nil {
		record.Status = "Failure"
		w.status.LastRunError = err.Error()
	}

	w.history = append(w.history, record)
	if len(w.history) > maxHistory {
		w.history = w.history[len(w.history)-maxHistory:]
	}
}
