package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studyprogress/internal/config"
	"studyprogress/internal/middleware"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSessionService struct {
	mock.Mock
}

var _ services.SessionServiceInterface = (*mockSessionService)(nil)

func (m *mockSessionService) StartSession(ctx context.Context, userID int, activity models.ActivityType) (string, error) {
	args := m.Called(ctx, userID, activity)
	return args.String(0), args.Error(1)
}

func (m *mockSessionService) Tick(ctx context.Context, userID int) {
	m.Called(ctx, userID)
}

func (m *mockSessionService) TogglePause(ctx context.Context, userID int) (*models.StudySession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudySession), args.Error(1)
}

func (m *mockSessionService) EndSession(ctx context.Context, userID int) (*models.StudySession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudySession), args.Error(1)
}

func (m *mockSessionService) RestoreOnStartup(ctx context.Context, userID int) (*models.StudySession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudySession), args.Error(1)
}

func (m *mockSessionService) SetActivityType(ctx context.Context, userID int, activity models.ActivityType) (*models.StudySession, error) {
	args := m.Called(ctx, userID, activity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudySession), args.Error(1)
}

func (m *mockSessionService) GetState(userID int) (*models.StudySession, bool) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*models.StudySession), args.Bool(1)
}

func (m *mockSessionService) RecordReview(ctx context.Context, userID int, review models.ReviewSubmission) (*models.MasteryRecord, error) {
	args := m.Called(ctx, userID, review)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MasteryRecord), args.Error(1)
}

func (m *mockSessionService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockQuizService struct {
	mock.Mock
}

var _ services.QuizServiceInterface = (*mockQuizService)(nil)

func (m *mockQuizService) StartQuiz(ctx context.Context, userID, itemSetID int) (string, error) {
	args := m.Called(ctx, userID, itemSetID)
	return args.String(0), args.Error(1)
}

func (m *mockQuizService) SubmitAnswer(ctx context.Context, userID int, choice models.ReviewOutcome) (*models.QuizState, error) {
	args := m.Called(ctx, userID, choice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizState), args.Error(1)
}

func (m *mockQuizService) GetQuizState(userID int) (*models.QuizState, bool) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*models.QuizState), args.Bool(1)
}

func (m *mockQuizService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockDifficultyService struct {
	mock.Mock
}

var _ services.DifficultyServiceInterface = (*mockDifficultyService)(nil)

func (m *mockDifficultyService) CalculateOptimalDifficulty(window models.PerformanceWindow, current float64, settings models.DifficultySettings) (*models.DifficultyProfile, error) {
	args := m.Called(window, current, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DifficultyProfile), args.Error(1)
}

func (m *mockDifficultyService) AdjustItemSetDifficulty(ctx context.Context, itemSetID int) (*models.RecalibrationReport, error) {
	args := m.Called(ctx, itemSetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecalibrationReport), args.Error(1)
}

func (m *mockDifficultyService) AdjustItemsDifficulty(ctx context.Context, itemIDs []int) (*models.RecalibrationReport, error) {
	args := m.Called(ctx, itemIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecalibrationReport), args.Error(1)
}

type mockGoalService struct {
	mock.Mock
}

var _ services.GoalServiceInterface = (*mockGoalService)(nil)

func (m *mockGoalService) GetNotifications(ctx context.Context, userID int) ([]models.GoalNotification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GoalNotification), args.Error(1)
}

func (m *mockGoalService) ApplyBulkAction(ctx context.Context, userID int, goalIDs []int, action models.BulkAction, params models.BulkActionParams) (*models.BulkActionResult, error) {
	args := m.Called(ctx, userID, goalIDs, action, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkActionResult), args.Error(1)
}

const testUserID = 42

// apiFixture is the full router wired to mocks, plus a login route that writes the session cookie
type apiFixture struct {
	router     *gin.Engine
	sessions   *mockSessionService
	quizzes    *mockQuizService
	difficulty *mockDifficultyService
	goals      *mockGoalService
	cookie     *http.Cookie
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.SessionSecret = "test-secret"
	cfg.Engine.Difficulty = config.DifficultyConfig{
		Aggressiveness:       "moderate",
		AdaptationSpeed:      1.0,
		MinimumDataPoints:    3,
		WindowSize:           20,
		MaterialityThreshold: 0.1,
		Concurrency:          4,
	}
	return cfg
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	schemas, err := middleware.DefaultSchemaLoader()
	require.NoError(t, err)

	f := &apiFixture{
		sessions:   &mockSessionService{},
		quizzes:    &mockQuizService{},
		difficulty: &mockDifficultyService{},
		goals:      &mockGoalService{},
	}
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	f.router = NewRouter(testConfig(), f.sessions, f.quizzes, f.difficulty, f.goals, schemas, logger)

	f.router.GET("/test-login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(middleware.UserIDKey, testUserID)
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest("GET", "/test-login", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	f.cookie = cookies[0]

	t.Cleanup(func() {
		f.sessions.AssertExpectations(t)
		f.quizzes.AssertExpectations(t)
		f.difficulty.AssertExpectations(t)
		f.goals.AssertExpectations(t)
	})
	return f
}

// do sends an authenticated request; an empty body sends none
func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(f.cookie)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}
