// Package store provides typed access to the progress engine's persisted records.
package store

import (
	"context"
	"time"

	"studyprogress/internal/models"
)

// ProgressStore is the persistence boundary of the engine.
//
// Not-found lookups return contextutils.ErrRecordNotFound. CreateSession returns
// contextutils.ErrSessionAlreadyActive when the user already has a live row, and
// AppendQuizResponse returns contextutils.ErrRecordExists for a second answer to the
// same item.
type ProgressStore interface {
	GetMastery(ctx context.Context, userID, itemID int) (*models.MasteryRecord, error)
	UpsertMastery(ctx context.Context, record models.MasteryRecord) error
	AppendReview(ctx context.Context, event models.ReviewEvent) error
	// GetRecentResponses returns at most limit reviews of the item, oldest first.
	GetRecentResponses(ctx context.Context, itemID, limit int) ([]models.ReviewEvent, error)

	GetItemDifficulty(ctx context.Context, itemID int) (float64, error)
	SetItemDifficulty(ctx context.Context, itemID int, value float64) error
	ListSetItems(ctx context.Context, itemSetID int) ([]int, error)
	ListRecentlyReviewedSets(ctx context.Context, since time.Time) ([]int, error)

	CreateGoal(ctx context.Context, goal *models.Goal) error
	GetGoal(ctx context.Context, goalID int) (*models.Goal, error)
	ListGoals(ctx context.Context, userID int, filter models.GoalFilter) ([]models.Goal, error)
	UpdateGoal(ctx context.Context, goalID int, patch models.GoalPatch) (*models.Goal, error)
	DeleteGoal(ctx context.Context, goalID int) error

	CreateSession(ctx context.Context, session *models.StudySession) error
	UpdateSession(ctx context.Context, session *models.StudySession) error
	FinalizeSession(ctx context.Context, sessionID string, elapsedSeconds int, endTime time.Time) error
	GetActiveSession(ctx context.Context, userID int) (*models.StudySession, error)
	CloseStaleSessions(ctx context.Context, updatedBefore time.Time) (int64, error)

	CreateQuizSession(ctx context.Context, quiz *models.QuizSession) error
	AppendQuizResponse(ctx context.Context, response models.QuizResponse) error
	FinalizeQuizSession(ctx context.Context, quiz *models.QuizSession) error
}
