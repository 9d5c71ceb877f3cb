package services

import (
	"context"
	"math"
	"sync"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/serviceinterfaces"
	"studyprogress/internal/store"
	contextutils "studyprogress/internal/utils"

	"github.com/google/uuid"
)

// QuizServiceInterface defines the interface for timed quiz runs
type QuizServiceInterface = serviceinterfaces.QuizService

// StudyActivity is the part of the session manager a quiz drives
type StudyActivity interface {
	RecordReview(ctx context.Context, userID int, review models.ReviewSubmission) (*models.MasteryRecord, error)
	SetActivityType(ctx context.Context, userID int, activity models.ActivityType) (*models.StudySession, error)
}

// Timer is a cancellable countdown
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type activeQuiz struct {
	mu sync.Mutex

	quiz        models.QuizSession
	items       []int
	index       int
	itemStarted time.Time
	timer       Timer
	responses   []models.QuizResponse
	finalized   bool
}

// QuizService runs timed quizzes over an item set, one per user
type QuizService struct {
	store     store.ProgressStore
	activity  StudyActivity
	cfg       config.QuizConfig
	clock     contextutils.Clock
	afterFunc AfterFunc
	metrics   *observability.EngineMetrics
	logger    *observability.Logger

	mu       sync.Mutex
	active   map[int]*activeQuiz
	finished map[int]*models.QuizState
}

var _ QuizServiceInterface = (*QuizService)(nil)

// NewQuizServiceWithLogger creates a QuizService. A nil afterFunc uses time.AfterFunc.
func NewQuizServiceWithLogger(progress store.ProgressStore, activity StudyActivity, cfg config.QuizConfig, clock contextutils.Clock, afterFunc AfterFunc, metrics *observability.EngineMetrics, logger *observability.Logger) *QuizService {
	if clock == nil {
		clock = contextutils.SystemClock{}
	}
	if afterFunc == nil {
		afterFunc = systemAfterFunc
	}
	if metrics == nil {
		metrics = &observability.EngineMetrics{}
	}
	return &QuizService{
		store:     progress,
		activity:  activity,
		cfg:       cfg,
		clock:     clock,
		afterFunc: afterFunc,
		metrics:   metrics,
		logger:    logger,
		active:    make(map[int]*activeQuiz),
		finished:  make(map[int]*models.QuizState),
	}
}

func (s *QuizService) windowSeconds() float64 {
	return s.cfg.AnswerWindow.Seconds()
}

// StartQuiz begins a quiz over the set's items in order and starts the first countdown
func (s *QuizService) StartQuiz(ctx context.Context, userID, itemSetID int) (result string, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "StartQuiz",
		observability.AttributeUserID(userID), observability.AttributeItemSetID(itemSetID))
	defer observability.FinishSpan(span, &err)

	items, err := s.store.ListSetItems(ctx, itemSetID)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", contextutils.InvalidInputf("item set %d has no items", itemSetID)
	}

	now := s.clock.Now()
	aq := &activeQuiz{
		quiz: models.QuizSession{
			SessionID:  uuid.NewString(),
			UserID:     userID,
			ItemSetID:  itemSetID,
			TotalItems: len(items),
			StartedAt:  now,
		},
		items:       items,
		itemStarted: now,
	}
	aq.mu.Lock()
	defer aq.mu.Unlock()

	s.mu.Lock()
	if existing, ok := s.active[userID]; ok {
		s.mu.Unlock()
		return "", contextutils.WrapErrorf(contextutils.ErrQuizAlreadyActive, "quiz %s is in progress", existing.quiz.SessionID)
	}
	s.active[userID] = aq
	delete(s.finished, userID)
	s.mu.Unlock()

	if err := s.store.CreateQuizSession(ctx, &aq.quiz); err != nil {
		s.mu.Lock()
		delete(s.active, userID)
		s.mu.Unlock()
		return "", err
	}

	s.startCountdown(aq, 0)

	if _, err := s.activity.SetActivityType(ctx, userID, models.ActivityQuizTaking); err != nil {
		s.logger.Warn(ctx, "Failed to switch study session to quiz", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	span.SetAttributes(observability.AttributeSessionID(aq.quiz.SessionID))
	s.logger.Info(ctx, "Quiz started", map[string]interface{}{
		"user_id":     userID,
		"quiz_id":     aq.quiz.SessionID,
		"item_set_id": itemSetID,
		"total_items": len(items),
	})
	return aq.quiz.SessionID, nil
}

// startCountdown arms the expiry of the item at index. Caller holds aq.mu.
func (s *QuizService) startCountdown(aq *activeQuiz, index int) {
	aq.timer = s.afterFunc(s.cfg.AnswerWindow, func() { s.expire(aq, index) })
}

// expire auto-submits an unanswered item. The index guard ignores a countdown that
// fired after its item was answered.
func (s *QuizService) expire(aq *activeQuiz, index int) {
	ctx, span := observability.TraceQuizFunction(context.Background(), "ExpireItem",
		observability.AttributeUserID(aq.quiz.UserID), observability.AttributeSessionID(aq.quiz.SessionID))
	defer span.End()

	aq.mu.Lock()
	defer aq.mu.Unlock()
	if aq.finalized || aq.index != index {
		return
	}
	s.answer(ctx, aq, models.OutcomeNeedsPractice, true)
}

// SubmitAnswer records the learner's self-assessment for the current item
func (s *QuizService) SubmitAnswer(ctx context.Context, userID int, choice models.ReviewOutcome) (result *models.QuizState, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "SubmitAnswer", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if !choice.Valid() {
		return nil, contextutils.InvalidInputf("unknown answer %q", choice)
	}

	s.mu.Lock()
	aq, ok := s.active[userID]
	s.mu.Unlock()
	if !ok {
		return nil, contextutils.WrapError(contextutils.ErrNoActiveQuiz, "no quiz in progress")
	}

	aq.mu.Lock()
	defer aq.mu.Unlock()
	if aq.finalized {
		return nil, contextutils.WrapError(contextutils.ErrNoActiveQuiz, "quiz already finished")
	}
	s.answer(ctx, aq, choice, false)
	return s.stateOf(aq), nil
}

// answer scores the current item, then advances or finalizes. Caller holds aq.mu.
// Storage failures are logged; the quiz always moves on.
func (s *QuizService) answer(ctx context.Context, aq *activeQuiz, choice models.ReviewOutcome, timedOut bool) {
	if aq.timer != nil {
		aq.timer.Stop()
	}

	now := s.clock.Now()
	responseTime := now.Sub(aq.itemStarted).Seconds()
	if timedOut {
		responseTime = s.windowSeconds()
	}
	if responseTime < 0 {
		responseTime = 0
	}
	correct := choice.IsCorrect()
	points, bonus := ScoreResponse(responseTime, correct, s.windowSeconds())

	response := models.QuizResponse{
		QuizSessionID:       aq.quiz.SessionID,
		ItemID:              aq.items[aq.index],
		UserAnswer:          choice,
		IsCorrect:           correct,
		ResponseTimeSeconds: responseTime,
		PointsEarned:        points,
		TimeBonus:           bonus,
		TimedOut:            timedOut,
	}
	if err := s.store.AppendQuizResponse(ctx, response); err != nil {
		s.logger.Error(ctx, "Failed to persist quiz response", err, map[string]interface{}{
			"quiz_id": aq.quiz.SessionID,
			"item_id": response.ItemID,
		})
	}
	if _, err := s.activity.RecordReview(ctx, aq.quiz.UserID, models.ReviewSubmission{
		ItemID:              response.ItemID,
		Outcome:             choice,
		ResponseTimeSeconds: responseTime,
	}); err != nil {
		s.logger.Error(ctx, "Failed to record quiz review", err, map[string]interface{}{
			"quiz_id": aq.quiz.SessionID,
			"item_id": response.ItemID,
		})
	}

	aq.responses = append(aq.responses, response)
	if correct {
		aq.quiz.CorrectAnswers++
	}
	aq.quiz.TotalScore += points

	if aq.index+1 < len(aq.items) {
		aq.index++
		aq.itemStarted = now
		s.startCountdown(aq, aq.index)
		return
	}
	s.finalize(ctx, aq, now)
}

// finalize grades the quiz exactly once. Caller holds aq.mu.
func (s *QuizService) finalize(ctx context.Context, aq *activeQuiz, now time.Time) {
	if aq.finalized {
		return
	}
	aq.finalized = true
	aq.timer = nil

	var totalTime float64
	for _, r := range aq.responses {
		totalTime += r.ResponseTimeSeconds
	}
	if len(aq.responses) > 0 {
		aq.quiz.AverageResponseTime = totalTime / float64(len(aq.responses))
	}
	aq.quiz.Grade = GradeFor(aq.quiz.CorrectAnswers, aq.quiz.TotalItems)
	aq.quiz.DurationSeconds = int(now.Sub(aq.quiz.StartedAt) / time.Second)
	completed := now
	aq.quiz.CompletedAt = &completed

	if err := s.store.FinalizeQuizSession(ctx, &aq.quiz); err != nil {
		s.logger.Error(ctx, "Failed to finalize quiz", err, map[string]interface{}{
			"quiz_id": aq.quiz.SessionID,
		})
	}

	state := s.stateOf(aq)
	s.mu.Lock()
	if s.active[aq.quiz.UserID] == aq {
		delete(s.active, aq.quiz.UserID)
	}
	s.finished[aq.quiz.UserID] = state
	s.mu.Unlock()

	observability.Add(ctx, s.metrics.QuizzesCompleted, 1)
	s.logger.Info(ctx, "Quiz completed", map[string]interface{}{
		"user_id":         aq.quiz.UserID,
		"quiz_id":         aq.quiz.SessionID,
		"grade":           string(aq.quiz.Grade),
		"correct_answers": aq.quiz.CorrectAnswers,
		"total_items":     aq.quiz.TotalItems,
		"total_score":     aq.quiz.TotalScore,
	})
}

// stateOf snapshots a quiz. Caller holds aq.mu.
func (s *QuizService) stateOf(aq *activeQuiz) *models.QuizState {
	state := &models.QuizState{
		QuizSessionID:  aq.quiz.SessionID,
		ItemSetID:      aq.quiz.ItemSetID,
		CurrentIndex:   aq.index,
		TotalItems:     aq.quiz.TotalItems,
		CorrectAnswers: aq.quiz.CorrectAnswers,
		TotalScore:     aq.quiz.TotalScore,
		Completed:      aq.finalized,
		Responses:      append([]models.QuizResponse(nil), aq.responses...),
	}
	if n := len(aq.responses); n > 0 {
		last := aq.responses[n-1]
		state.LastResponse = &last
	}
	if aq.finalized {
		result := aq.quiz
		state.Result = &result
		return state
	}

	state.CurrentItemID = aq.items[aq.index]
	remaining := s.cfg.AnswerWindow - s.clock.Now().Sub(aq.itemStarted)
	state.RemainingSeconds = int(math.Ceil(math.Max(0, remaining.Seconds())))
	return state
}

// GetQuizState returns the running quiz, or the last finished one
func (s *QuizService) GetQuizState(userID int) (*models.QuizState, bool) {
	s.mu.Lock()
	aq, ok := s.active[userID]
	finished := s.finished[userID]
	s.mu.Unlock()

	if ok {
		aq.mu.Lock()
		defer aq.mu.Unlock()
		return s.stateOf(aq), true
	}
	if finished != nil {
		return finished, true
	}
	return nil, false
}

// Shutdown stops every countdown. Unfinished quizzes are abandoned.
func (s *QuizService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	quizzes := make([]*activeQuiz, 0, len(s.active))
	for _, aq := range s.active {
		quizzes = append(quizzes, aq)
	}
	s.active = make(map[int]*activeQuiz)
	s.mu.Unlock()

	for _, aq := range quizzes {
		aq.mu.Lock()
		if aq.timer != nil {
			aq.timer.Stop()
		}
		aq.finalized = true
		aq.mu.Unlock()
	}
	s.logger.Info(ctx, "Abandoned unfinished quizzes", map[string]interface{}{
		"count": len(quizzes),
	})
	return nil
}
