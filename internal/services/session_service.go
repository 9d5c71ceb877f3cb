package services

import (
	"context"
	"sync"
	"time"

	"studyprogress/internal/checkpoint"
	"studyprogress/internal/config"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/serviceinterfaces"
	"studyprogress/internal/store"
	contextutils "studyprogress/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// SessionServiceInterface defines the interface for the study session manager
type SessionServiceInterface = serviceinterfaces.SessionService

// CheckpointQueue accepts checkpoints for asynchronous persistence
type CheckpointQueue interface {
	Enqueue(ctx context.Context, cp models.Checkpoint) bool
	Flush(ctx context.Context) error
	SetLiveness(fn checkpoint.LivenessFunc)
}

// liveSession is the in-memory state of one user's running session.
// While running, elapsed time is now - reference; while paused it is frozen in elapsed.
type liveSession struct {
	session        models.StudySession
	reference      time.Time
	elapsed        time.Duration
	lastCheckpoint time.Duration
	lastSavedAt    time.Time
	cancel         context.CancelFunc
}

func (l *liveSession) elapsedAt(now time.Time) time.Duration {
	if l.session.IsPaused {
		return l.elapsed
	}
	d := now.Sub(l.reference)
	if d < l.elapsed {
		// Wall clock stepped backwards; elapsed never decreases.
		return l.elapsed
	}
	return d
}

func (l *liveSession) snapshot(now time.Time) models.StudySession {
	s := l.session
	s.ElapsedSeconds = int(l.elapsedAt(now) / time.Second)
	return s
}

// SessionService owns the single live study session of each user
type SessionService struct {
	store       store.ProgressStore
	checkpoints checkpoint.Store
	queue       CheckpointQueue
	cfg         config.SessionConfig
	clock       contextutils.Clock
	metrics     *observability.EngineMetrics
	logger      *observability.Logger

	mu       sync.Mutex
	locks    map[int]*sync.Mutex
	sessions map[int]*liveSession
	closed   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

var _ SessionServiceInterface = (*SessionService)(nil)

// NewSessionServiceWithLogger creates a SessionService and installs its stale-write guard on the queue
func NewSessionServiceWithLogger(progress store.ProgressStore, checkpoints checkpoint.Store, queue CheckpointQueue, cfg config.SessionConfig, clock contextutils.Clock, metrics *observability.EngineMetrics, logger *observability.Logger) *SessionService {
	if clock == nil {
		clock = contextutils.SystemClock{}
	}
	if metrics == nil {
		metrics = &observability.EngineMetrics{}
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	s := &SessionService{
		store:       progress,
		checkpoints: checkpoints,
		queue:       queue,
		cfg:         cfg,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
		locks:       make(map[int]*sync.Mutex),
		sessions:    make(map[int]*liveSession),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
	}
	queue.SetLiveness(s.isLive)
	return s
}

func (s *SessionService) userLock(userID int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *SessionService) live(userID int) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

func (s *SessionService) isLive(userID int, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[userID]
	return ok && ls.session.SessionID == sessionID
}

// register adds a live session and starts its ticker. Caller holds the user lock.
func (s *SessionService) register(ls *liveSession) {
	ctx, cancel := context.WithCancel(s.rootCtx)
	ls.cancel = cancel

	s.mu.Lock()
	s.sessions[ls.session.UserID] = ls
	s.mu.Unlock()

	if s.cfg.TickInterval > 0 {
		go s.runTicker(ctx, ls.session.UserID)
	}
}

// unregister removes a live session and stops its ticker. Caller holds the user lock.
func (s *SessionService) unregister(ls *liveSession) {
	s.mu.Lock()
	delete(s.sessions, ls.session.UserID)
	s.mu.Unlock()
	ls.cancel()
}

func (s *SessionService) runTicker(ctx context.Context, userID int) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, userID)
		}
	}
}

func (s *SessionService) checkpointOf(ls *liveSession, now time.Time) models.Checkpoint {
	elapsed := ls.elapsedAt(now)
	return models.Checkpoint{
		SessionID:      ls.session.SessionID,
		UserID:         ls.session.UserID,
		StartTime:      ls.session.StartTime,
		ReferenceTime:  now.Add(-elapsed),
		ElapsedSeconds: int(elapsed / time.Second),
		ActivityType:   ls.session.ActivityType,
		IsPaused:       ls.session.IsPaused,
		SavedAt:        now,
	}
}

func (s *SessionService) enqueue(ctx context.Context, ls *liveSession, now time.Time) {
	ls.lastCheckpoint = ls.elapsedAt(now)
	ls.lastSavedAt = now
	s.queue.Enqueue(ctx, s.checkpointOf(ls, now))
}

// StartSession begins a session for the user. It fails with ErrSessionAlreadyActive when
// the user already has a live session here or in the store.
func (s *SessionService) StartSession(ctx context.Context, userID int, activity models.ActivityType) (result string, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "StartSession",
		observability.AttributeUserID(userID), observability.AttributeActivityType(activity))
	defer observability.FinishSpan(span, &err)

	if activity == "" {
		activity = models.ActivityGeneral
	}
	if !activity.Valid() {
		return "", contextutils.InvalidInputf("unknown activity type %q", activity)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", contextutils.WrapError(contextutils.ErrServiceUnavailable, "session manager is shutting down")
	}

	if existing := s.live(userID); existing != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrSessionAlreadyActive, "session %s is already active", existing.session.SessionID)
	}

	now := s.clock.Now()
	session := models.StudySession{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		StartTime:    now,
		ActivityType: activity,
		IsActive:     true,
	}
	if err := s.store.CreateSession(ctx, &session); err != nil {
		return "", err
	}

	ls := &liveSession{session: session, reference: now}
	s.register(ls)
	s.enqueue(ctx, ls, now)

	observability.Add(ctx, s.metrics.SessionsStarted, 1)
	span.SetAttributes(observability.AttributeSessionID(session.SessionID))
	s.logger.Info(ctx, "Study session started", map[string]interface{}{
		"user_id":       userID,
		"session_id":    session.SessionID,
		"activity_type": string(activity),
	})
	return session.SessionID, nil
}

// Tick advances the elapsed counter of a running session and enqueues a checkpoint
// each time another checkpoint interval of unpaused time has passed. A paused session
// is re-checkpointed once per checkpoint interval of wall time so the stale sweep
// still sees it as owned.
func (s *SessionService) Tick(ctx context.Context, userID int) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ls := s.live(userID)
	if ls == nil {
		return
	}
	now := s.clock.Now()
	if ls.session.IsPaused {
		if now.Sub(ls.lastSavedAt) >= s.cfg.CheckpointInterval {
			s.enqueue(ctx, ls, now)
		}
		return
	}
	ls.elapsed = ls.elapsedAt(now)
	ls.session.ElapsedSeconds = int(ls.elapsed / time.Second)

	if ls.elapsed-ls.lastCheckpoint >= s.cfg.CheckpointInterval {
		s.enqueue(ctx, ls, now)
	}
}

// TogglePause pauses a running session or resumes a paused one. It is a no-op without a live session.
func (s *SessionService) TogglePause(ctx context.Context, userID int) (result *models.StudySession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "TogglePause", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ls := s.live(userID)
	if ls == nil {
		return nil, nil
	}

	now := s.clock.Now()
	if ls.session.IsPaused {
		ls.reference = now.Add(-ls.elapsed)
		ls.session.IsPaused = false
	} else {
		ls.elapsed = ls.elapsedAt(now)
		ls.session.IsPaused = true
	}
	ls.session.ElapsedSeconds = int(ls.elapsed / time.Second)
	s.enqueue(ctx, ls, now)

	span.SetAttributes(attribute.Bool("session.paused", ls.session.IsPaused))
	snap := ls.snapshot(now)
	return &snap, nil
}

// EndSession closes the live session with its unpaused duration, at least one second.
// It is a no-op without a live session.
func (s *SessionService) EndSession(ctx context.Context, userID int) (result *models.StudySession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "EndSession", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ls := s.live(userID)
	if ls == nil {
		return nil, nil
	}
	s.unregister(ls)

	now := s.clock.Now()
	ended := ls.snapshot(now)
	if ended.ElapsedSeconds < 1 {
		ended.ElapsedSeconds = 1
	}
	ended.IsActive = false
	ended.IsPaused = false
	ended.EndTime = &now

	if err := s.store.FinalizeSession(ctx, ended.SessionID, ended.ElapsedSeconds, now); err != nil {
		s.logger.Error(ctx, "Failed to finalize study session", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": ended.SessionID,
		})
	}
	if err := s.checkpoints.Clear(ctx, userID); err != nil {
		s.logger.Warn(ctx, "Failed to clear session checkpoint", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	observability.Add(ctx, s.metrics.SessionsEnded, 1)
	s.logger.Info(ctx, "Study session ended", map[string]interface{}{
		"user_id":          userID,
		"session_id":       ended.SessionID,
		"duration_seconds": ended.ElapsedSeconds,
	})
	return &ended, nil
}

// RestoreOnStartup resumes the user's live session after a restart. The checkpoint is
// preferred; without a usable one the store's active row is resumed instead. A session
// that started more than the stale threshold ago is finalized rather than resumed.
// A nil result means the user is idle.
func (s *SessionService) RestoreOnStartup(ctx context.Context, userID int) (result *models.StudySession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "RestoreOnStartup", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()
	if ls := s.live(userID); ls != nil {
		snap := ls.snapshot(now)
		return &snap, nil
	}

	cp, err := s.checkpoints.Load(ctx, userID)
	switch {
	case contextutils.GetErrorCode(err) == contextutils.ErrorCodeRecordNotFound:
		cp = nil
	case err != nil:
		return nil, err
	}

	if cp != nil && now.Sub(cp.StartTime) > s.cfg.StaleThreshold {
		s.finalizeAbandoned(ctx, sessionOfCheckpoint(cp))
		s.clearCheckpoint(ctx, userID)
		cp = nil
	}

	active, err := s.store.GetActiveSession(ctx, userID)
	switch {
	case contextutils.GetErrorCode(err) == contextutils.ErrorCodeRecordNotFound:
		if cp != nil {
			// The checkpoint outlived its session.
			s.clearCheckpoint(ctx, userID)
		}
		return nil, nil
	case err != nil && cp == nil:
		return nil, err
	case err != nil:
		s.logger.Warn(ctx, "Could not confirm checkpointed session, restoring from checkpoint", map[string]interface{}{
			"user_id":    userID,
			"session_id": cp.SessionID,
			"error":      err.Error(),
		})
		return s.resumeCheckpoint(ctx, cp, now), nil
	case cp != nil && active.SessionID == cp.SessionID:
		return s.resumeCheckpoint(ctx, cp, now), nil
	}

	if cp != nil {
		// The checkpoint belongs to an earlier session; the store row wins.
		s.clearCheckpoint(ctx, userID)
	}
	active.UserID = userID
	if now.Sub(active.StartTime) > s.cfg.StaleThreshold {
		s.finalizeAbandoned(ctx, *active)
		return nil, nil
	}
	return s.resumeRow(ctx, active, now), nil
}

// resumeCheckpoint registers the checkpointed session. Caller holds the user lock.
func (s *SessionService) resumeCheckpoint(ctx context.Context, cp *models.Checkpoint, now time.Time) *models.StudySession {
	ls := &liveSession{session: sessionOfCheckpoint(cp), lastSavedAt: now}
	if cp.IsPaused {
		ls.elapsed = time.Duration(cp.ElapsedSeconds) * time.Second
	} else {
		ls.reference = cp.ReferenceTime
		ls.elapsed = ls.elapsedAt(now)
	}
	ls.session.ElapsedSeconds = int(ls.elapsed / time.Second)
	ls.lastCheckpoint = ls.elapsed
	s.register(ls)

	s.logger.Info(ctx, "Study session restored", map[string]interface{}{
		"user_id":         cp.UserID,
		"session_id":      cp.SessionID,
		"elapsed_seconds": ls.session.ElapsedSeconds,
		"source":          "checkpoint",
	})
	snap := ls.snapshot(now)
	return &snap
}

// resumeRow registers a session known only from its store row. Time between the last
// store write and the restart is not counted. Caller holds the user lock.
func (s *SessionService) resumeRow(ctx context.Context, row *models.StudySession, now time.Time) *models.StudySession {
	ls := &liveSession{session: *row}
	ls.session.IsActive = true
	ls.session.EndTime = nil
	ls.elapsed = time.Duration(row.ElapsedSeconds) * time.Second
	if !row.IsPaused {
		ls.reference = now.Add(-ls.elapsed)
	}
	s.register(ls)
	s.enqueue(ctx, ls, now)

	s.logger.Info(ctx, "Study session restored", map[string]interface{}{
		"user_id":         row.UserID,
		"session_id":      row.SessionID,
		"elapsed_seconds": ls.session.ElapsedSeconds,
		"source":          "store",
	})
	snap := ls.snapshot(now)
	return &snap
}

func sessionOfCheckpoint(cp *models.Checkpoint) models.StudySession {
	return models.StudySession{
		SessionID:      cp.SessionID,
		UserID:         cp.UserID,
		StartTime:      cp.StartTime,
		ElapsedSeconds: cp.ElapsedSeconds,
		ActivityType:   cp.ActivityType,
		IsActive:       true,
		IsPaused:       cp.IsPaused,
	}
}

// finalizeAbandoned closes a session nobody resumed, ending it at start plus its recorded elapsed time
func (s *SessionService) finalizeAbandoned(ctx context.Context, sess models.StudySession) {
	elapsed := sess.ElapsedSeconds
	if elapsed < 1 {
		elapsed = 1
	}
	end := sess.StartTime.Add(time.Duration(elapsed) * time.Second)
	if err := s.store.FinalizeSession(ctx, sess.SessionID, elapsed, end); err != nil {
		s.logger.Error(ctx, "Failed to finalize stale session", err, map[string]interface{}{
			"user_id":    sess.UserID,
			"session_id": sess.SessionID,
		})
		return
	}
	s.logger.Info(ctx, "Finalized stale study session", map[string]interface{}{
		"user_id":    sess.UserID,
		"session_id": sess.SessionID,
		"start_time": sess.StartTime,
	})
}

func (s *SessionService) clearCheckpoint(ctx context.Context, userID int) {
	if err := s.checkpoints.Clear(ctx, userID); err != nil {
		s.logger.Warn(ctx, "Failed to clear session checkpoint", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// SetActivityType changes what the live session is recording without touching its timing.
// The row update goes through the checkpoint queue, so storage failures never reach the caller.
func (s *SessionService) SetActivityType(ctx context.Context, userID int, activity models.ActivityType) (result *models.StudySession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "SetActivityType",
		observability.AttributeUserID(userID), observability.AttributeActivityType(activity))
	defer observability.FinishSpan(span, &err)

	if !activity.Valid() {
		return nil, contextutils.InvalidInputf("unknown activity type %q", activity)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ls := s.live(userID)
	if ls == nil {
		return nil, nil
	}
	now := s.clock.Now()
	if ls.session.ActivityType != activity {
		ls.session.ActivityType = activity
		s.queue.Enqueue(ctx, s.checkpointOf(ls, now))
	}
	snap := ls.snapshot(now)
	return &snap, nil
}

// GetState returns the user's live session with elapsed time as of now
func (s *SessionService) GetState(userID int) (*models.StudySession, bool) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ls := s.live(userID)
	if ls == nil {
		return nil, false
	}
	snap := ls.snapshot(s.clock.Now())
	return &snap, true
}

// RecordReview stores one item review: the mastery record moves one step and the
// review is appended to the item's history, tagged with the live session if any.
func (s *SessionService) RecordReview(ctx context.Context, userID int, review models.ReviewSubmission) (result *models.MasteryRecord, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "RecordReview",
		observability.AttributeUserID(userID), observability.AttributeItemID(review.ItemID))
	defer observability.FinishSpan(span, &err)

	if err := contextutils.ValidateStruct(review); err != nil {
		return nil, err
	}
	score := review.Outcome.DefaultScore()
	if review.Score != nil {
		score = *review.Score
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var sessionID string
	if ls := s.live(userID); ls != nil {
		sessionID = ls.session.SessionID
	}

	current, err := s.store.GetMastery(ctx, userID, review.ItemID)
	if err != nil {
		if contextutils.GetErrorCode(err) != contextutils.ErrorCodeRecordNotFound {
			return nil, err
		}
		current = &models.MasteryRecord{UserID: userID, ItemID: review.ItemID}
	}

	now := s.clock.Now()
	next := current.Apply(review.Outcome, now)
	if err := s.store.UpsertMastery(ctx, next); err != nil {
		return nil, err
	}
	if err := s.store.AppendReview(ctx, models.ReviewEvent{
		UserID:              userID,
		ItemID:              review.ItemID,
		SessionID:           sessionID,
		Outcome:             review.Outcome,
		Score:               score,
		ResponseTimeSeconds: review.ResponseTimeSeconds,
		ReviewedAt:          now,
	}); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "Recorded item review", map[string]interface{}{
		"user_id":       userID,
		"item_id":       review.ItemID,
		"outcome":       string(review.Outcome),
		"mastery_level": next.MasteryLevel,
	})
	return &next, nil
}

// Shutdown stops every ticker and flushes a final checkpoint per live session so
// RestoreOnStartup can resume them.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	live := make([]*liveSession, 0, len(s.sessions))
	for _, ls := range s.sessions {
		live = append(live, ls)
	}
	s.mu.Unlock()

	s.rootCancel()

	for _, ls := range live {
		lock := s.userLock(ls.session.UserID)
		lock.Lock()
		s.enqueue(ctx, ls, s.clock.Now())
		lock.Unlock()
	}

	s.logger.Info(ctx, "Flushing session checkpoints", map[string]interface{}{
		"live_sessions": len(live),
	})
	return s.queue.Flush(ctx)
}
