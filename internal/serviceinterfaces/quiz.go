package serviceinterfaces

import (
	"context"

	"studyprogress/internal/models"
)

// QuizService defines the interface for timed quiz runs
type QuizService interface {
	StartQuiz(ctx context.Context, userID, itemSetID int) (string, error)
	SubmitAnswer(ctx context.Context, userID int, choice models.ReviewOutcome) (*models.QuizState, error)
	GetQuizState(userID int) (*models.QuizState, bool)
	Shutdown(ctx context.Context) error
}
