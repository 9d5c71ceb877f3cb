// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"studyprogress/internal/checkpoint"
	"studyprogress/internal/config"
	"studyprogress/internal/database"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	"studyprogress/internal/store"
	contextutils "studyprogress/internal/utils"

	goredis "github.com/redis/go-redis/v9"
)

// Service names
const (
	ServiceProgressStore = "progress_store"
	ServiceCheckpoints   = "checkpoints"
	ServiceCheckpointQ   = "checkpoint_writer"
	ServiceSession       = "session"
	ServiceQuiz          = "quiz"
	ServiceDifficulty    = "difficulty"
	ServiceGoal          = "goal"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetProgressStore() (store.ProgressStore, error)
	GetSessionService() (services.SessionServiceInterface, error)
	GetQuizService() (services.QuizServiceInterface, error)
	GetDifficultyService() (services.DifficultyServiceInterface, error)
	GetGoalService() (services.GoalServiceInterface, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	InitializeStorage(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg       *config.Config
	logger    *observability.Logger
	dbManager *database.Manager
	db        *sql.DB
	rdb       *goredis.Client
	metrics   *observability.EngineMetrics
	services  map[string]interface{}
	mu        sync.RWMutex

	// shutdownFuncs run in reverse registration order
	shutdownFuncs []func(context.Context) error
}

var _ ServiceContainerInterface = (*ServiceContainer)(nil)

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up storage, the checkpoint pipeline and every engine service.
// Used by the API server, which owns live sessions and quizzes.
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.initializeStorage(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}
	if err := sc.initializeLiveServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}
	return nil
}

// InitializeStorage sets up the database and the stateless services only.
// Used by the worker and the admin CLI, which never hold live sessions.
func (sc *ServiceContainer) InitializeStorage(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.initializeStorage(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}
	return nil
}

func (sc *ServiceContainer) initializeStorage(ctx context.Context) error {
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDB(ctx, sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	metrics, err := observability.NewEngineMetrics(nil)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to register engine metrics")
	}
	sc.metrics = metrics

	progress := store.NewPostgresStore(db, sc.logger)
	sc.services[ServiceProgressStore] = progress

	sc.services[ServiceDifficulty] = services.NewDifficultyServiceWithLogger(progress, nil, sc.cfg.Engine.Difficulty, metrics, sc.logger)
	sc.services[ServiceGoal] = services.NewGoalServiceWithLogger(progress, services.GoalPolicyFromConfig(sc.cfg.Engine.Goals), nil, metrics, sc.logger)
	return nil
}

// initializeLiveServices wires the checkpoint pipeline, the session manager and the quiz engine
func (sc *ServiceContainer) initializeLiveServices(ctx context.Context) error {
	progress := sc.services[ServiceProgressStore].(store.ProgressStore)
	sessionCfg := sc.cfg.Engine.Session

	var checkpoints checkpoint.Store
	if sc.cfg.Redis.Addr == "" {
		sc.logger.Warn(ctx, "No redis address configured, checkpoints are kept in memory and lost on restart")
		checkpoints = checkpoint.NewMemoryStore()
	} else {
		rdb, err := checkpoint.NewRedisClient(ctx, sc.cfg.Redis)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to connect to redis at %s", sc.cfg.Redis.Addr)
		}
		sc.rdb = rdb
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return rdb.Close()
		})
		checkpoints = checkpoint.NewRedisStore(rdb, sc.cfg.Redis.KeyPrefix, sessionCfg.StaleThreshold+config.CheckpointTTLMargin)
	}
	sc.services[ServiceCheckpoints] = checkpoints

	writer, err := checkpoint.NewWriter(checkpoints, progress, sc.logger, checkpoint.WriterOptions{
		QueueSize: sessionCfg.CheckpointQueue,
		Attempts:  sessionCfg.CheckpointAttempts,
	})
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to create checkpoint writer")
	}
	writer.Start(context.WithoutCancel(ctx))
	sc.services[ServiceCheckpointQ] = writer
	sc.shutdownFuncs = append(sc.shutdownFuncs, writer.Close)

	sessionService := services.NewSessionServiceWithLogger(progress, checkpoints, writer, sessionCfg, nil, sc.metrics, sc.logger)
	sc.services[ServiceSession] = sessionService
	sc.shutdownFuncs = append(sc.shutdownFuncs, sessionService.Shutdown)

	// Quiz answers feed mastery and switch the study session's activity
	quizService := services.NewQuizServiceWithLogger(progress, sessionService, sc.cfg.Engine.Quiz, nil, nil, sc.metrics, sc.logger)
	sc.services[ServiceQuiz] = quizService
	sc.shutdownFuncs = append(sc.shutdownFuncs, quizService.Shutdown)

	sc.logger.Info(ctx, "Engine services started", map[string]interface{}{
		"checkpoint_store": checkpointStoreName(checkpoints),
		"tick_interval":    sessionCfg.TickInterval.String(),
		"answer_window":    sc.cfg.Engine.Quiz.AnswerWindow.String(),
	})
	return nil
}

func checkpointStoreName(s checkpoint.Store) string {
	if _, ok := s.(*checkpoint.RedisStore); ok {
		return "redis"
	}
	return "memory"
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetProgressStore returns the progress store
func (sc *ServiceContainer) GetProgressStore() (store.ProgressStore, error) {
	return GetServiceAs[store.ProgressStore](sc, ServiceProgressStore)
}

// GetSessionService returns the session service
func (sc *ServiceContainer) GetSessionService() (services.SessionServiceInterface, error) {
	return GetServiceAs[services.SessionServiceInterface](sc, ServiceSession)
}

// GetQuizService returns the quiz service
func (sc *ServiceContainer) GetQuizService() (services.QuizServiceInterface, error) {
	return GetServiceAs[services.QuizServiceInterface](sc, ServiceQuiz)
}

// GetDifficultyService returns the difficulty service
func (sc *ServiceContainer) GetDifficultyService() (services.DifficultyServiceInterface, error) {
	return GetServiceAs[services.DifficultyServiceInterface](sc, ServiceDifficulty)
}

// GetGoalService returns the goal service
func (sc *ServiceContainer) GetGoalService() (services.GoalServiceInterface, error) {
	return GetServiceAs[services.GoalServiceInterface](sc, ServiceGoal)
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown stops the quiz timers and session tickers, flushes checkpoints, then closes redis and the database
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup runs the shutdown functions in reverse order of registration
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err, map[string]interface{}{"step": i})
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}
