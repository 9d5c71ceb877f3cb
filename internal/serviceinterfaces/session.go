// Package serviceinterfaces defines service interfaces for dependency injection and testing.
package serviceinterfaces

import (
	"context"

	"studyprogress/internal/models"
)

// SessionService defines the interface for the study session manager
type SessionService interface {
	// StartSession begins a session; a second live session for the user is a conflict
	StartSession(ctx context.Context, userID int, activity models.ActivityType) (string, error)

	// Tick advances elapsed time and throttles checkpoints
	Tick(ctx context.Context, userID int)

	// TogglePause flips the pause state; nil result means no live session
	TogglePause(ctx context.Context, userID int) (*models.StudySession, error)

	// EndSession closes the live session; nil result means there was none
	EndSession(ctx context.Context, userID int) (*models.StudySession, error)

	// RestoreOnStartup resumes a checkpointed session unless it is stale
	RestoreOnStartup(ctx context.Context, userID int) (*models.StudySession, error)

	// SetActivityType changes the live session's activity in place
	SetActivityType(ctx context.Context, userID int, activity models.ActivityType) (*models.StudySession, error)

	// GetState returns the live session, if any
	GetState(userID int) (*models.StudySession, bool)

	// RecordReview applies one item review to mastery and history
	RecordReview(ctx context.Context, userID int, review models.ReviewSubmission) (*models.MasteryRecord, error)

	Shutdown(ctx context.Context) error
}
