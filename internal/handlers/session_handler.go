package handlers

import (
	"net/http"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	contextutils "studyprogress/internal/utils"

	"github.com/gin-gonic/gin"
)

// StartSessionRequest is the body of POST /v1/sessions
type StartSessionRequest struct {
	ActivityType models.ActivityType `json:"activity_type"`
}

// SetActivityRequest is the body of PUT /v1/sessions/current/activity
type SetActivityRequest struct {
	ActivityType models.ActivityType `json:"activity_type"`
}

// SessionHandler handles study session and review requests
type SessionHandler struct {
	sessionService services.SessionServiceInterface
	logger         *observability.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessionService services.SessionServiceInterface, logger *observability.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// StartSession begins a study session for the caller
func (h *SessionHandler) StartSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req StartSessionRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}

	sessionID, err := h.sessionService.StartSession(ctx, userID, req.ActivityType)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Study session started", map[string]interface{}{
		"user_id":    userID,
		"session_id": sessionID,
	})

	state, ok := h.sessionService.GetState(userID)
	if !ok {
		c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
		return
	}
	c.JSON(http.StatusCreated, state)
}

// GetCurrentSession returns the caller's live session
func (h *SessionHandler) GetCurrentSession(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_current_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	state, ok := h.sessionService.GetState(userID)
	if !ok {
		HandleAppError(c, contextutils.ErrNoActiveSession)
		return
	}
	c.JSON(http.StatusOK, state)
}

// TogglePause pauses or resumes the caller's session
func (h *SessionHandler) TogglePause(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "toggle_pause")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	state, err := h.sessionService.TogglePause(ctx, userID)
	h.respondWithSession(c, state, err)
}

// EndSession closes the caller's session and returns the final row
func (h *SessionHandler) EndSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "end_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	state, err := h.sessionService.EndSession(ctx, userID)
	h.respondWithSession(c, state, err)
}

// SetActivity changes the activity of the caller's session
func (h *SessionHandler) SetActivity(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_activity")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req SetActivityRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.ActivityType.Valid() {
		HandleValidationError(c, "activity_type", req.ActivityType, "unknown activity type")
		return
	}

	state, err := h.sessionService.SetActivityType(ctx, userID, req.ActivityType)
	h.respondWithSession(c, state, err)
}

// Restore resumes a checkpointed session. 204 means there was nothing to resume.
func (h *SessionHandler) Restore(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "restore_session")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	state, err := h.sessionService.RestoreOnStartup(ctx, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if state == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, state)
}

// RecordReview applies one item review and returns the updated mastery
func (h *SessionHandler) RecordReview(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "record_review")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req models.ReviewSubmission
	if !bindJSON(c, &req) {
		return
	}

	mastery, err := h.sessionService.RecordReview(ctx, userID, req)
	if err != nil {
		h.logger.Warn(ctx, "Failed to record review", map[string]interface{}{
			"user_id": userID,
			"item_id": req.ItemID,
			"error":   err.Error(),
		})
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, mastery)
}

// respondWithSession maps a nil session to 404, since the service treats a missing session as a no-op
func (h *SessionHandler) respondWithSession(c *gin.Context, state *models.StudySession, err error) {
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if state == nil {
		HandleAppError(c, contextutils.ErrNoActiveSession)
		return
	}
	c.JSON(http.StatusOK, state)
}
