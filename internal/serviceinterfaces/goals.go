package serviceinterfaces

import (
	"context"

	"studyprogress/internal/models"
)

// GoalService defines the interface for the goal deadline monitor
type GoalService interface {
	// GetNotifications classifies the user's active goals against the clock
	GetNotifications(ctx context.Context, userID int) ([]models.GoalNotification, error)

	// ApplyBulkAction applies one action to many goals, best effort
	ApplyBulkAction(ctx context.Context, userID int, goalIDs []int, action models.BulkAction, params models.BulkActionParams) (*models.BulkActionResult, error)
}
