package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"studyprogress/internal/checkpoint"
	"studyprogress/internal/config"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeQueue records checkpoints synchronously
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []models.Checkpoint
	live     checkpoint.LivenessFunc
	flushes  int
}

func (q *fakeQueue) Enqueue(_ context.Context, cp models.Checkpoint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, cp)
	return true
}

func (q *fakeQueue) Flush(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushes++
	return nil
}

func (q *fakeQueue) SetLiveness(fn checkpoint.LivenessFunc) { q.live = fn }

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func (q *fakeQueue) last() models.Checkpoint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued[len(q.enqueued)-1]
}

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeTimers captures countdowns so tests can fire them by hand
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
	funcs  []func()
}

func (f *fakeTimers) AfterFunc(_ time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{}
	f.timers = append(f.timers, t)
	f.funcs = append(f.funcs, fn)
	return t
}

// fire runs the i-th countdown even if it was stopped, like a timer racing its Stop
func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.funcs[i]
	f.mu.Unlock()
	fn()
}

func (f *fakeTimers) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.funcs)
}

type memStore struct {
	mu sync.Mutex

	mastery      map[[2]int]models.MasteryRecord
	reviews      []models.ReviewEvent
	difficulty   map[int]float64
	sets         map[int][]int
	goals        map[int]models.Goal
	sessions     map[string]models.StudySession
	quizzes      map[string]models.QuizSession
	responses    map[[2]interface{}]models.QuizResponse
	finalizeHits map[string]int

	// touched mirrors the updated_at column of study_sessions
	touched map[string]time.Time
	now     func() time.Time

	failSetDifficulty map[int]error
	failGetDifficulty map[int]error
	failAppendQuiz    error
	failCreateSession error
	failUpsert        error
}

func newMemStore() *memStore {
	return &memStore{
		mastery:           make(map[[2]int]models.MasteryRecord),
		difficulty:        make(map[int]float64),
		sets:              make(map[int][]int),
		goals:             make(map[int]models.Goal),
		sessions:          make(map[string]models.StudySession),
		quizzes:           make(map[string]models.QuizSession),
		responses:         make(map[[2]interface{}]models.QuizResponse),
		finalizeHits:      make(map[string]int),
		touched:           make(map[string]time.Time),
		now:               time.Now,
		failSetDifficulty: make(map[int]error),
		failGetDifficulty: make(map[int]error),
	}
}

func notFound(what string) error {
	return contextutils.WrapError(contextutils.ErrRecordNotFound, what+" not found")
}

func (m *memStore) GetMastery(_ context.Context, userID, itemID int) (*models.MasteryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.mastery[[2]int{userID, itemID}]
	if !ok {
		return nil, notFound("mastery")
	}
	return &rec, nil
}

func (m *memStore) UpsertMastery(_ context.Context, rec models.MasteryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	if rec.MasteryLevel < models.MinMastery || rec.MasteryLevel > models.MaxMastery {
		return contextutils.InvalidInputf("mastery out of range")
	}
	m.mastery[[2]int{rec.UserID, rec.ItemID}] = rec
	return nil
}

func (m *memStore) AppendReview(_ context.Context, ev models.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.reviews) + 1)
	m.reviews = append(m.reviews, ev)
	return nil
}

func (m *memStore) GetRecentResponses(_ context.Context, itemID, limit int) ([]models.ReviewEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReviewEvent
	for _, r := range m.reviews {
		if r.ItemID == itemID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) GetItemDifficulty(_ context.Context, itemID int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failGetDifficulty[itemID]; err != nil {
		return 0, err
	}
	d, ok := m.difficulty[itemID]
	if !ok {
		return 0, notFound("item")
	}
	return d, nil
}

func (m *memStore) SetItemDifficulty(_ context.Context, itemID int, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSetDifficulty[itemID]; err != nil {
		return err
	}
	if value < models.MinDifficulty || value > models.MaxDifficulty {
		return contextutils.InvalidInputf("difficulty out of range")
	}
	m.difficulty[itemID] = value
	return nil
}

func (m *memStore) ListSetItems(_ context.Context, itemSetID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.sets[itemSetID]...), nil
}

func (m *memStore) ListRecentlyReviewedSets(_ context.Context, since time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int]bool)
	for setID, items := range m.sets {
		for _, r := range m.reviews {
			if !r.ReviewedAt.Before(since) && containsInt(items, r.ItemID) {
				seen[setID] = true
			}
		}
	}
	var out []int
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func (m *memStore) CreateGoal(_ context.Context, g *models.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == 0 {
		g.ID = len(m.goals) + 1
	}
	if g.Status == "" {
		g.Status = models.GoalStatusActive
	}
	m.goals[g.ID] = *g
	return nil
}

func (m *memStore) GetGoal(_ context.Context, id int) (*models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, notFound("goal")
	}
	return &g, nil
}

func (m *memStore) ListGoals(_ context.Context, userID int, filter models.GoalFilter) ([]models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Goal
	for _, g := range m.goals {
		if g.UserID != userID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				match = match || g.Status == st
			}
			if !match {
				continue
			}
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateGoal(_ context.Context, id int, patch models.GoalPatch) (*models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, notFound("goal")
	}
	if patch.EndDate != nil {
		g.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		g.Status = *patch.Status
	}
	if patch.ArchiveReason != nil {
		g.ArchiveReason = patch.ArchiveReason
	}
	m.goals[id] = g
	return &g, nil
}

func (m *memStore) DeleteGoal(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.goals[id]; !ok {
		return notFound("goal")
	}
	delete(m.goals, id)
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateSession != nil {
		return m.failCreateSession
	}
	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.IsActive {
			return contextutils.WrapError(contextutils.ErrSessionAlreadyActive, "user already has an active session")
		}
	}
	row := *s
	row.IsActive = true
	m.sessions[s.SessionID] = row
	m.touched[s.SessionID] = m.now()
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.sessions[s.SessionID]
	if !ok || !row.IsActive {
		return contextutils.WrapError(contextutils.ErrNoActiveSession, "session is not active")
	}
	row.ElapsedSeconds = s.ElapsedSeconds
	row.IsPaused = s.IsPaused
	row.ActivityType = s.ActivityType
	m.sessions[s.SessionID] = row
	m.touched[s.SessionID] = m.now()
	return nil
}

func (m *memStore) FinalizeSession(_ context.Context, id string, elapsed int, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.sessions[id]
	if !ok || !row.IsActive {
		return nil
	}
	row.IsActive = false
	row.ElapsedSeconds = elapsed
	row.EndTime = &end
	m.sessions[id] = row
	m.touched[id] = m.now()
	return nil
}

func (m *memStore) GetActiveSession(_ context.Context, userID int) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			return &s, nil
		}
	}
	return nil, notFound("active session")
}

func (m *memStore) CloseStaleSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsActive && m.touched[id].Before(before) {
			s.IsActive = false
			m.sessions[id] = s
			m.touched[id] = m.now()
			n++
		}
	}
	return n, nil
}

func (m *memStore) session(id string) models.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) CreateQuizSession(_ context.Context, q *models.QuizSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.SessionID] = *q
	return nil
}

func (m *memStore) AppendQuizResponse(_ context.Context, r models.QuizResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppendQuiz != nil {
		return m.failAppendQuiz
	}
	key := [2]interface{}{r.QuizSessionID, r.ItemID}
	if _, ok := m.responses[key]; ok {
		return contextutils.WrapError(contextutils.ErrRecordExists, "item already answered")
	}
	m.responses[key] = r
	return nil
}

func (m *memStore) FinalizeQuizSession(_ context.Context, q *models.QuizSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeHits[q.SessionID]++
	m.quizzes[q.SessionID] = *q
	return nil
}

func (m *memStore) responseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}
