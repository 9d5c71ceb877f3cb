package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const uniqueViolation = "23505"

// PostgresStore implements ProgressStore over database/sql and lib/pq
type PostgresStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPostgresStore creates a store on an open pool
func NewPostgresStore(db *sql.DB, logger *observability.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

var _ ProgressStore = (*PostgresStore)(nil)

func queryError(err error, format string, args ...interface{}) error {
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeDatabaseQuery, contextutils.SeverityError,
		fmt.Sprintf(format, args...), err.Error(), err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetMastery returns the learner's record for an item
func (s *PostgresStore) GetMastery(ctx context.Context, userID, itemID int) (result *models.MasteryRecord, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "GetMastery",
		observability.AttributeUserID(userID), observability.AttributeItemID(itemID))
	defer observability.FinishSpan(span, &err)

	rec := models.MasteryRecord{UserID: userID, ItemID: itemID}
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT mastery_level, times_seen, times_correct, last_reviewed_at
		FROM mastery_records
		WHERE user_id = $1 AND item_id = $2`, userID, itemID).
		Scan(&rec.MasteryLevel, &rec.TimesSeen, &rec.TimesCorrect, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "mastery record not found")
	}
	if err != nil {
		return nil, queryError(err, "failed to get mastery for item %d", itemID)
	}
	if last.Valid {
		rec.LastReviewedAt = &last.Time
	}
	return &rec, nil
}

// UpsertMastery inserts or replaces the record keyed by (user, item)
func (s *PostgresStore) UpsertMastery(ctx context.Context, record models.MasteryRecord) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "UpsertMastery",
		observability.AttributeUserID(record.UserID), observability.AttributeItemID(record.ItemID))
	defer observability.FinishSpan(span, &err)

	if record.MasteryLevel < models.MinMastery || record.MasteryLevel > models.MaxMastery {
		return contextutils.InvalidInputf("mastery level %d outside [%d,%d]", record.MasteryLevel, models.MinMastery, models.MaxMastery)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mastery_records (user_id, item_id, mastery_level, times_seen, times_correct, last_reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET mastery_level = EXCLUDED.mastery_level,
		    times_seen = EXCLUDED.times_seen,
		    times_correct = EXCLUDED.times_correct,
		    last_reviewed_at = EXCLUDED.last_reviewed_at`,
		record.UserID, record.ItemID, record.MasteryLevel, record.TimesSeen, record.TimesCorrect, record.LastReviewedAt)
	if err != nil {
		return queryError(err, "failed to upsert mastery for item %d", record.ItemID)
	}
	return nil
}

// AppendReview adds one entry to the review history
func (s *PostgresStore) AppendReview(ctx context.Context, event models.ReviewEvent) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "AppendReview",
		observability.AttributeUserID(event.UserID), observability.AttributeItemID(event.ItemID))
	defer observability.FinishSpan(span, &err)

	var sessionID sql.NullString
	if event.SessionID != "" {
		sessionID = sql.NullString{String: event.SessionID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_events (user_id, item_id, session_id, outcome, score, response_time_seconds, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.UserID, event.ItemID, sessionID, string(event.Outcome), event.Score, event.ResponseTimeSeconds, event.ReviewedAt)
	if err != nil {
		return queryError(err, "failed to append review for item %d", event.ItemID)
	}
	return nil
}

// GetRecentResponses returns the latest reviews of an item across all learners, oldest first
func (s *PostgresStore) GetRecentResponses(ctx context.Context, itemID, limit int) (result []models.ReviewEvent, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "GetRecentResponses",
		observability.AttributeItemID(itemID), observability.AttributeLimit(limit))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item_id, COALESCE(session_id, ''), outcome, score, response_time_seconds, reviewed_at
		FROM (
			SELECT * FROM review_events
			WHERE item_id = $1
			ORDER BY reviewed_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY reviewed_at ASC, id ASC`, itemID, limit)
	if err != nil {
		return nil, queryError(err, "failed to load reviews for item %d", itemID)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ev models.ReviewEvent
		var outcome string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ItemID, &ev.SessionID, &outcome, &ev.Score, &ev.ResponseTimeSeconds, &ev.ReviewedAt); err != nil {
			return nil, queryError(err, "failed to scan review")
		}
		ev.Outcome = models.ReviewOutcome(outcome)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate reviews")
	}
	span.SetAttributes(attribute.Int("reviews.count", len(result)))
	return result, nil
}

// GetItemDifficulty returns the stored difficulty of an item
func (s *PostgresStore) GetItemDifficulty(ctx context.Context, itemID int) (result float64, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "GetItemDifficulty", observability.AttributeItemID(itemID))
	defer observability.FinishSpan(span, &err)

	err = s.db.QueryRowContext(ctx, `SELECT difficulty FROM study_items WHERE id = $1`, itemID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, contextutils.WrapError(contextutils.ErrRecordNotFound, "item not found")
	}
	if err != nil {
		return 0, queryError(err, "failed to get difficulty of item %d", itemID)
	}
	return result, nil
}

// SetItemDifficulty stores a difficulty, rounded to the integer scale of the items table
func (s *PostgresStore) SetItemDifficulty(ctx context.Context, itemID int, value float64) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "SetItemDifficulty",
		observability.AttributeItemID(itemID), attribute.Float64("difficulty", value))
	defer observability.FinishSpan(span, &err)

	if math.IsNaN(value) || value < models.MinDifficulty || value > models.MaxDifficulty {
		return contextutils.InvalidInputf("difficulty %v outside [%v,%v]", value, models.MinDifficulty, models.MaxDifficulty)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE study_items SET difficulty = $1, updated_at = NOW() WHERE id = $2`,
		int(math.Round(value)), itemID)
	if err != nil {
		return queryError(err, "failed to set difficulty of item %d", itemID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "item not found")
	}
	return nil
}

// ListSetItems returns the item ids of a set in study order
func (s *PostgresStore) ListSetItems(ctx context.Context, itemSetID int) (result []int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "ListSetItems", observability.AttributeItemSetID(itemSetID))
	defer observability.FinishSpan(span, &err)

	return s.queryIDs(ctx, `SELECT id FROM study_items WHERE item_set_id = $1 ORDER BY position, id`, itemSetID)
}

// ListRecentlyReviewedSets returns the sets with at least one review since the given time
func (s *PostgresStore) ListRecentlyReviewedSets(ctx context.Context, since time.Time) (result []int, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "ListRecentlyReviewedSets")
	defer observability.FinishSpan(span, &err)

	return s.queryIDs(ctx, `
		SELECT DISTINCT i.item_set_id
		FROM review_events r
		JOIN study_items i ON i.id = r.item_id
		WHERE r.reviewed_at >= $1
		ORDER BY i.item_set_id`, since)
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(err, "failed to list ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, queryError(err, "failed to scan id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate ids")
	}
	return ids, nil
}

const goalColumns = `id, user_id, title, start_date, end_date, grace_period_days, status, progress, archive_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	var g models.Goal
	var status string
	var reason sql.NullString
	if err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.StartDate, &g.EndDate, &g.GracePeriodDays,
		&status, &g.Progress, &reason, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Status = models.GoalStatus(status)
	if reason.Valid {
		g.ArchiveReason = &reason.String
	}
	return &g, nil
}

// CreateGoal inserts a goal and fills its id and timestamps
func (s *PostgresStore) CreateGoal(ctx context.Context, goal *models.Goal) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "CreateGoal", observability.AttributeUserID(goal.UserID))
	defer observability.FinishSpan(span, &err)

	if goal.Status == "" {
		goal.Status = models.GoalStatusActive
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO goals (user_id, title, start_date, end_date, grace_period_days, status, progress, archive_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		goal.UserID, goal.Title, goal.StartDate, goal.EndDate, goal.GracePeriodDays, string(goal.Status), goal.Progress, goal.ArchiveReason).
		Scan(&goal.ID, &goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		return queryError(err, "failed to create goal")
	}
	return nil
}

// GetGoal returns one goal by id
func (s *PostgresStore) GetGoal(ctx context.Context, goalID int) (result *models.Goal, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "GetGoal", observability.AttributeGoalID(goalID))
	defer observability.FinishSpan(span, &err)

	result, err = scanGoal(s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "goal not found")
	}
	if err != nil {
		return nil, queryError(err, "failed to get goal %d", goalID)
	}
	return result, nil
}

// ListGoals returns the user's goals ordered by id
func (s *PostgresStore) ListGoals(ctx context.Context, userID int, filter models.GoalFilter) (result []models.Goal, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "ListGoals", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + goalColumns + ` FROM goals WHERE user_id = $1`
	args := []interface{}{userID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statuses))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(err, "failed to list goals")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, queryError(err, "failed to scan goal")
		}
		result = append(result, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate goals")
	}
	return result, nil
}

// UpdateGoal applies the non-nil fields of patch
func (s *PostgresStore) UpdateGoal(ctx context.Context, goalID int, patch models.GoalPatch) (result *models.Goal, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "UpdateGoal", observability.AttributeGoalID(goalID))
	defer observability.FinishSpan(span, &err)

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.EndDate != nil {
		add("end_date", *patch.EndDate)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, contextutils.InvalidInputf("unknown goal status %q", *patch.Status)
		}
		add("status", string(*patch.Status))
	}
	if patch.ArchiveReason != nil {
		add("archive_reason", *patch.ArchiveReason)
	}
	if len(sets) == 0 {
		return s.GetGoal(ctx, goalID)
	}

	args = append(args, goalID)
	query := fmt.Sprintf(`UPDATE goals SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), goalColumns)

	result, err = scanGoal(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "goal not found")
	}
	if err != nil {
		return nil, queryError(err, "failed to update goal %d", goalID)
	}
	return result, nil
}

// DeleteGoal removes a goal
func (s *PostgresStore) DeleteGoal(ctx context.Context, goalID int) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "DeleteGoal", observability.AttributeGoalID(goalID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1`, goalID)
	if err != nil {
		return queryError(err, "failed to delete goal %d", goalID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "goal not found")
	}
	return nil
}

// CreateSession inserts a live session unless the user already has one
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.StudySession) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "CreateSession",
		observability.AttributeUserID(session.UserID), observability.AttributeSessionID(session.SessionID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO study_sessions (session_id, user_id, start_time, elapsed_seconds, activity_type, is_active, is_paused)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT DO NOTHING`,
		session.SessionID, session.UserID, session.StartTime, session.ElapsedSeconds, string(session.ActivityType), session.IsPaused)
	if err != nil {
		return queryError(err, "failed to create session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrSessionAlreadyActive, "user already has an active session")
	}
	return nil
}

// UpdateSession checkpoints elapsed time, pause state and activity of a live session
func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.StudySession) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "UpdateSession", observability.AttributeSessionID(session.SessionID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE study_sessions
		SET elapsed_seconds = GREATEST(elapsed_seconds, $2), is_paused = $3, activity_type = $4, updated_at = NOW()
		WHERE session_id = $1 AND is_active`,
		session.SessionID, session.ElapsedSeconds, session.IsPaused, string(session.ActivityType))
	if err != nil {
		return queryError(err, "failed to update session %s", session.SessionID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrNoActiveSession, "session is not active")
	}
	return nil
}

// FinalizeSession closes a session. Closing an already closed session is a no-op.
func (s *PostgresStore) FinalizeSession(ctx context.Context, sessionID string, elapsedSeconds int, endTime time.Time) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "FinalizeSession", observability.AttributeSessionID(sessionID))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		UPDATE study_sessions
		SET elapsed_seconds = $2, is_active = FALSE, is_paused = FALSE, end_time = $3, updated_at = NOW()
		WHERE session_id = $1 AND is_active`,
		sessionID, elapsedSeconds, endTime)
	if err != nil {
		return queryError(err, "failed to finalize session %s", sessionID)
	}
	return nil
}

// GetActiveSession returns the user's live session
func (s *PostgresStore) GetActiveSession(ctx context.Context, userID int) (result *models.StudySession, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "GetActiveSession", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	sess := models.StudySession{UserID: userID, IsActive: true}
	var activity string
	err = s.db.QueryRowContext(ctx, `
		SELECT session_id, start_time, elapsed_seconds, activity_type, is_paused
		FROM study_sessions
		WHERE user_id = $1 AND is_active`, userID).
		Scan(&sess.SessionID, &sess.StartTime, &sess.ElapsedSeconds, &activity, &sess.IsPaused)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "no active session")
	}
	if err != nil {
		return nil, queryError(err, "failed to get active session")
	}
	sess.ActivityType = models.ActivityType(activity)
	return &sess, nil
}

// CloseStaleSessions finalizes live sessions whose last checkpoint is older than the cutoff,
// keeping their checkpointed elapsed time. Sessions still being checkpointed are left alone
// however long ago they started.
func (s *PostgresStore) CloseStaleSessions(ctx context.Context, updatedBefore time.Time) (result int64, err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "CloseStaleSessions")
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE study_sessions
		SET is_active = FALSE, is_paused = FALSE,
		    end_time = start_time + make_interval(secs => GREATEST(elapsed_seconds, 1)),
		    updated_at = NOW()
		WHERE is_active AND updated_at < $1`, updatedBefore)
	if err != nil {
		return 0, queryError(err, "failed to close stale sessions")
	}
	result, _ = res.RowsAffected()
	span.SetAttributes(attribute.Int64("sessions.closed", result))
	return result, nil
}

// CreateQuizSession inserts the quiz header row
func (s *PostgresStore) CreateQuizSession(ctx context.Context, quiz *models.QuizSession) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "CreateQuizSession",
		observability.AttributeUserID(quiz.UserID), observability.AttributeSessionID(quiz.SessionID))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quiz_sessions (session_id, user_id, item_set_id, total_items, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		quiz.SessionID, quiz.UserID, quiz.ItemSetID, quiz.TotalItems, quiz.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return contextutils.WrapError(contextutils.ErrRecordExists, "quiz session already exists")
		}
		return queryError(err, "failed to create quiz session")
	}
	return nil
}

// AppendQuizResponse records the single answer for an item of a quiz
func (s *PostgresStore) AppendQuizResponse(ctx context.Context, response models.QuizResponse) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "AppendQuizResponse",
		observability.AttributeSessionID(response.QuizSessionID), observability.AttributeItemID(response.ItemID))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quiz_responses (quiz_session_id, item_id, user_answer, is_correct, response_time_seconds, points_earned, time_bonus, timed_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		response.QuizSessionID, response.ItemID, string(response.UserAnswer), response.IsCorrect,
		response.ResponseTimeSeconds, response.PointsEarned, response.TimeBonus, response.TimedOut)
	if err != nil {
		if isUniqueViolation(err) {
			return contextutils.WrapError(contextutils.ErrRecordExists, "item already answered in this quiz")
		}
		return queryError(err, "failed to append quiz response")
	}
	return nil
}

// FinalizeQuizSession writes the graded summary. Only the first call takes effect.
func (s *PostgresStore) FinalizeQuizSession(ctx context.Context, quiz *models.QuizSession) (err error) {
	ctx, span := observability.TraceStoreFunction(ctx, "FinalizeQuizSession", observability.AttributeSessionID(quiz.SessionID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE quiz_sessions
		SET correct_answers = $2, total_score = $3, duration_seconds = $4, average_response_time = $5,
		    grade = $6, completed_at = $7
		WHERE session_id = $1 AND completed_at IS NULL`,
		quiz.SessionID, quiz.CorrectAnswers, quiz.TotalScore, quiz.DurationSeconds, quiz.AverageResponseTime,
		string(quiz.Grade), quiz.CompletedAt)
	if err != nil {
		return queryError(err, "failed to finalize quiz %s", quiz.SessionID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.WrapError(contextutils.ErrConflict, "quiz already finalized or missing")
	}
	return nil
}
