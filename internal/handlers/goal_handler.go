package handlers

import (
	"net/http"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	contextutils "studyprogress/internal/utils"

	"github.com/gin-gonic/gin"
)

// BulkGoalActionRequest is the body of POST /v1/goals/bulk
type BulkGoalActionRequest struct {
	GoalIDs []int             `json:"goal_ids"`
	Action  models.BulkAction `json:"action"`
	Days    int               `json:"days"`
	Reason  string            `json:"reason"`
}

// GoalHandler handles goal deadline requests
type GoalHandler struct {
	goalService services.GoalServiceInterface
	logger      *observability.Logger
}

// NewGoalHandler creates a new GoalHandler
func NewGoalHandler(goalService services.GoalServiceInterface, logger *observability.Logger) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
		logger:      logger,
	}
}

// GetNotifications returns the caller's deadline and milestone notifications
func (h *GoalHandler) GetNotifications(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_goal_notifications")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	notifications, err := h.goalService.GetNotifications(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// BulkAction applies one action to several of the caller's goals
func (h *GoalHandler) BulkAction(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "bulk_goal_action")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req BulkGoalActionRequest
	if !bindJSON(c, &req) {
		return
	}
	span.SetAttributes(observability.AttributeAction(string(req.Action)))

	result, err := h.goalService.ApplyBulkAction(ctx, userID, req.GoalIDs, req.Action, models.BulkActionParams{
		Days:   req.Days,
		Reason: req.Reason,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if len(result.Failures) > 0 {
		h.logger.Warn(ctx, "Bulk goal action partially failed", map[string]interface{}{
			"user_id":       userID,
			"action":        string(req.Action),
			"success_count": result.SuccessCount,
			"total":         result.Total,
		})
	}
	c.JSON(http.StatusOK, result)
}
