package handlers

import (
	"net/http"
	"testing"

	"studyprogress/internal/models"
	contextutils "studyprogress/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestStartQuiz(t *testing.T) {
	f := newAPIFixture(t)
	f.quizzes.On("StartQuiz", mock.Anything, testUserID, 7).Return("quiz-1", nil)
	f.quizzes.On("GetQuizState", testUserID).Return(&models.QuizState{
		QuizSessionID:    "quiz-1",
		ItemSetID:        7,
		CurrentItemID:    70,
		TotalItems:       3,
		RemainingSeconds: 30,
	}, true)

	w := f.do("POST", "/v1/quizzes", `{"item_set_id":7}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "quiz-1", body["quiz_session_id"])
	assert.Equal(t, float64(30), body["remaining_seconds"])
}

func TestStartQuiz_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"already running", contextutils.ErrQuizAlreadyActive, http.StatusConflict},
		{"empty set", contextutils.InvalidInputf("item set %d has no items", 7), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.quizzes.On("StartQuiz", mock.Anything, testUserID, 7).Return("", tt.err)

			w := f.do("POST", "/v1/quizzes", `{"item_set_id":7}`)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestStartQuiz_SchemaRequiresItemSet(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do("POST", "/v1/quizzes", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCurrentQuiz_None(t *testing.T) {
	f := newAPIFixture(t)
	f.quizzes.On("GetQuizState", testUserID).Return(nil, false)

	w := f.do("GET", "/v1/quizzes/current", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ACTIVE_QUIZ", decodeBody(t, w)["code"])
}

func TestSubmitAnswer_Completes(t *testing.T) {
	f := newAPIFixture(t)
	f.quizzes.On("SubmitAnswer", mock.Anything, testUserID, models.OutcomeMastered).Return(&models.QuizState{
		QuizSessionID:  "quiz-1",
		ItemSetID:      7,
		CurrentIndex:   1,
		TotalItems:     1,
		CorrectAnswers: 1,
		TotalScore:     140,
		Completed:      true,
		LastResponse:   &models.QuizResponse{ItemID: 70, IsCorrect: true, PointsEarned: 140, TimeBonus: 40},
		Result:         &models.QuizSession{SessionID: "quiz-1", TotalItems: 1, CorrectAnswers: 1, TotalScore: 140, Grade: models.GradeA},
	}, nil)

	w := f.do("POST", "/v1/quizzes/current/answers", `{"answer":"mastered"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["completed"])
	assert.Equal(t, "A", body["result"].(map[string]interface{})["grade"])
}

func TestSubmitAnswer_NoQuiz(t *testing.T) {
	f := newAPIFixture(t)
	f.quizzes.On("SubmitAnswer", mock.Anything, testUserID, models.OutcomeNeedsPractice).Return(nil, contextutils.ErrNoActiveQuiz)

	w := f.do("POST", "/v1/quizzes/current/answers", `{"answer":"needs_practice"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitAnswer_RejectsUnknownAnswer(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do("POST", "/v1/quizzes/current/answers", `{"answer":"maybe"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
