package handlers

import (
	"net/http"

	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	contextutils "studyprogress/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// StartQuizRequest is the body of POST /v1/quizzes
type StartQuizRequest struct {
	ItemSetID int `json:"item_set_id"`
}

// AnswerRequest is the body of POST /v1/quizzes/current/answers
type AnswerRequest struct {
	Answer models.ReviewOutcome `json:"answer"`
}

// QuizHandler handles timed quiz requests
type QuizHandler struct {
	quizService services.QuizServiceInterface
	logger      *observability.Logger
}

// NewQuizHandler creates a new QuizHandler
func NewQuizHandler(quizService services.QuizServiceInterface, logger *observability.Logger) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
		logger:      logger,
	}
}

// StartQuiz starts a quiz over an item set
func (h *QuizHandler) StartQuiz(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_quiz")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req StartQuizRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ItemSetID <= 0 {
		HandleValidationError(c, "item_set_id", req.ItemSetID, "must be positive")
		return
	}
	span.SetAttributes(observability.AttributeItemSetID(req.ItemSetID))

	quizID, err := h.quizService.StartQuiz(ctx, userID, req.ItemSetID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	state, ok := h.quizService.GetQuizState(userID)
	if !ok {
		c.JSON(http.StatusCreated, gin.H{"quiz_session_id": quizID})
		return
	}
	c.JSON(http.StatusCreated, state)
}

// GetCurrentQuiz returns the running or just-finished quiz
func (h *QuizHandler) GetCurrentQuiz(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_current_quiz")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	state, ok := h.quizService.GetQuizState(userID)
	if !ok {
		HandleAppError(c, contextutils.ErrNoActiveQuiz)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SubmitAnswer answers the current quiz item
func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_quiz_answer")
	defer observability.FinishSpan(span, nil)

	userID, exists := GetUserIDFromSession(c)
	if !exists {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req AnswerRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Answer.Valid() {
		HandleValidationError(c, "answer", req.Answer, "must be mastered or needs_practice")
		return
	}

	state, err := h.quizService.SubmitAnswer(ctx, userID, req.Answer)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("quiz.completed", state.Completed))
	if state.Completed && state.Result != nil {
		h.logger.Info(ctx, "Quiz completed", map[string]interface{}{
			"user_id":     userID,
			"item_set_id": state.ItemSetID,
			"grade":       state.Result.Grade,
			"total_score": state.Result.TotalScore,
		})
	}
	c.JSON(http.StatusOK, state)
}
