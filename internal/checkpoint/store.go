// Package checkpoint keeps crash-recovery snapshots of live study sessions.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	contextutils "studyprogress/internal/utils"

	goredis "github.com/redis/go-redis/v9"
)

// Store holds at most one checkpoint per user.
// Load returns contextutils.ErrRecordNotFound when the user has none.
type Store interface {
	Save(ctx context.Context, cp models.Checkpoint) error
	Load(ctx context.Context, userID int) (*models.Checkpoint, error)
	Clear(ctx context.Context, userID int) error
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"redis ping failed", err.Error(), err)
	}
	return rdb, nil
}

// RedisStore keeps checkpoints as JSON values that expire once they could no longer be restored
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a checkpoint store. ttl should exceed the stale threshold.
func NewRedisStore(rdb *goredis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = config.DefaultCheckpointKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(userID int) string {
	return fmt.Sprintf("%s:%d", r.prefix, userID)
}

// Save overwrites the user's checkpoint
func (r *RedisStore) Save(ctx context.Context, cp models.Checkpoint) (err error) {
	ctx, span := observability.TraceCheckpointFunction(ctx, "Save",
		observability.AttributeUserID(cp.UserID), observability.AttributeSessionID(cp.SessionID))
	defer observability.FinishSpan(span, &err)

	raw, err := json.Marshal(cp)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode checkpoint")
	}
	if err := r.rdb.Set(ctx, r.key(cp.UserID), raw, r.ttl).Err(); err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"failed to save checkpoint", err.Error(), err)
	}
	return nil
}

// Load returns the user's checkpoint
func (r *RedisStore) Load(ctx context.Context, userID int) (result *models.Checkpoint, err error) {
	ctx, span := observability.TraceCheckpointFunction(ctx, "Load", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	raw, err := r.rdb.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "no checkpoint")
	}
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"failed to load checkpoint", err.Error(), err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode checkpoint")
	}
	return &cp, nil
}

// Clear removes the user's checkpoint
func (r *RedisStore) Clear(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceCheckpointFunction(ctx, "Clear", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"failed to clear checkpoint", err.Error(), err)
	}
	return nil
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu   sync.Mutex
	data map[int]models.Checkpoint
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int]models.Checkpoint)}
}

// Save overwrites the user's checkpoint
func (m *MemoryStore) Save(_ context.Context, cp models.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cp.UserID] = cp
	return nil
}

// Load returns the user's checkpoint
func (m *MemoryStore) Load(_ context.Context, userID int) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.data[userID]
	if !ok {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "no checkpoint")
	}
	return &cp, nil
}

// Clear removes the user's checkpoint
func (m *MemoryStore) Clear(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}
