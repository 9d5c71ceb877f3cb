package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	"github.com/cenkalti/backoff/v5"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var errStale = errors.New("session no longer live")

// job is a checkpoint to write, or a flush marker when flushed is set
type job struct {
	cp      models.Checkpoint
	flushed chan struct{}
}

// SessionWriter persists the checkpointed fields of a live session row
type SessionWriter interface {
	UpdateSession(ctx context.Context, session *models.StudySession) error
}

// LivenessFunc reports whether a session is still live. Writes for sessions that
// are no longer live are dropped.
type LivenessFunc func(userID int, sessionID string) bool

// WriterOptions tunes a Writer
type WriterOptions struct {
	QueueSize       int
	Attempts        uint
	InitialInterval time.Duration
	Meter           otelmetric.Meter
}

// Writer drains checkpoint jobs in the background so a session tick never waits on storage.
// Each job saves the snapshot and the session row, retrying with exponential backoff.
type Writer struct {
	store    Store
	sessions SessionWriter
	logger   *observability.Logger

	queue           chan job
	attempts        uint
	initialInterval time.Duration

	mu     sync.RWMutex
	closed bool
	live   LivenessFunc

	done chan struct{}

	writes   otelmetric.Int64Counter
	failures otelmetric.Int64Counter
	dropped  otelmetric.Int64Counter
}

// NewWriter creates a writer; call Start to begin draining
func NewWriter(store Store, sessions SessionWriter, logger *observability.Logger, opts WriterOptions) (*Writer, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	meter := opts.Meter
	if meter == nil {
		meter = observability.Meter()
	}

	w := &Writer{
		store:           store,
		sessions:        sessions,
		logger:          logger,
		queue:           make(chan job, opts.QueueSize),
		attempts:        opts.Attempts,
		initialInterval: opts.InitialInterval,
		done:            make(chan struct{}),
	}

	var err error
	if w.writes, err = meter.Int64Counter("checkpoint.writes", otelmetric.WithDescription("Checkpoints persisted")); err != nil {
		return nil, err
	}
	if w.failures, err = meter.Int64Counter("checkpoint.failures", otelmetric.WithDescription("Checkpoints abandoned after retries")); err != nil {
		return nil, err
	}
	if w.dropped, err = meter.Int64Counter("checkpoint.dropped", otelmetric.WithDescription("Checkpoints dropped by a full queue or an ended session")); err != nil {
		return nil, err
	}
	return w, nil
}

// SetLiveness installs the stale-write guard
func (w *Writer) SetLiveness(fn LivenessFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.live = fn
}

func (w *Writer) isLive(userID int, sessionID string) bool {
	w.mu.RLock()
	fn := w.live
	w.mu.RUnlock()
	return fn == nil || fn(userID, sessionID)
}

// Start launches the drain goroutine
func (w *Writer) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for j := range w.queue {
			if j.flushed != nil {
				close(j.flushed)
				continue
			}
			w.write(ctx, j.cp)
		}
	}()
}

// Enqueue schedules a checkpoint without blocking. It returns false when the job was dropped.
func (w *Writer) Enqueue(ctx context.Context, cp models.Checkpoint) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}

	select {
	case w.queue <- job{cp: cp}:
		return true
	default:
		observability.Add(ctx, w.dropped, 1)
		w.logger.Warn(ctx, "Checkpoint queue full, dropping checkpoint", map[string]interface{}{
			"user_id":    cp.UserID,
			"session_id": cp.SessionID,
		})
		return false
	}
}

// Flush waits until every checkpoint queued before the call has been handled
func (w *Writer) Flush(ctx context.Context) error {
	marker := job{flushed: make(chan struct{})}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	select {
	case w.queue <- marker:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return contextutils.WrapError(contextutils.ErrTimeout, "checkpoint flush interrupted")
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(contextutils.ErrTimeout, "checkpoint flush interrupted")
	}
}

// Close stops accepting jobs and waits for the queue to drain
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(contextutils.ErrTimeout, "checkpoint writer did not drain")
	}
}

func (w *Writer) write(ctx context.Context, cp models.Checkpoint) {
	ctx, span := observability.TraceCheckpointFunction(ctx, "Write",
		observability.AttributeUserID(cp.UserID), observability.AttributeSessionID(cp.SessionID))
	var err error
	defer observability.FinishSpan(span, &err)

	session := &models.StudySession{
		SessionID:      cp.SessionID,
		UserID:         cp.UserID,
		StartTime:      cp.StartTime,
		ElapsedSeconds: cp.ElapsedSeconds,
		ActivityType:   cp.ActivityType,
		IsActive:       true,
		IsPaused:       cp.IsPaused,
	}

	op := func() (struct{}, error) {
		if !w.isLive(cp.UserID, cp.SessionID) {
			return struct{}{}, backoff.Permanent(errStale)
		}
		if err := w.store.Save(ctx, cp); err != nil {
			return struct{}{}, err
		}
		if err := w.sessions.UpdateSession(ctx, session); err != nil {
			if errors.Is(err, contextutils.ErrNoActiveSession) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	_, err = backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(w.attempts))

	switch {
	case err == nil:
		observability.Add(ctx, w.writes, 1)
	case errors.Is(err, errStale), errors.Is(err, contextutils.ErrNoActiveSession):
		err = nil
		observability.Add(ctx, w.dropped, 1)
		w.logger.Debug(ctx, "Dropping checkpoint for ended session", map[string]interface{}{
			"user_id":    cp.UserID,
			"session_id": cp.SessionID,
		})
	default:
		observability.Add(ctx, w.failures, 1)
		w.logger.Error(ctx, "Failed to write checkpoint", err, map[string]interface{}{
			"user_id":    cp.UserID,
			"session_id": cp.SessionID,
			"attempts":   w.attempts,
		})
	}
}
