package di

import (
	"context"
	"errors"
	"testing"

	"studyprogress/internal/checkpoint"
	"studyprogress/internal/config"
	"studyprogress/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContainer() *ServiceContainer {
	return NewServiceContainer(&config.Config{}, observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
}

func TestGetServiceAs(t *testing.T) {
	sc := newTestContainer()
	sc.services["memory"] = checkpoint.NewMemoryStore()

	s, err := GetServiceAs[checkpoint.Store](sc, "memory")
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = GetServiceAs[*checkpoint.RedisStore](sc, "memory")
	assert.Error(t, err)

	_, err = GetServiceAs[checkpoint.Store](sc, "missing")
	assert.Error(t, err)
}

func TestGetters_BeforeInitialize(t *testing.T) {
	sc := newTestContainer()

	_, err := sc.GetSessionService()
	assert.Error(t, err)
	_, err = sc.GetProgressStore()
	assert.Error(t, err)
	assert.Nil(t, sc.GetDatabase())
}

func TestShutdown_RunsInReverseOrder(t *testing.T) {
	sc := newTestContainer()

	var order []string
	step := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}
	sc.shutdownFuncs = append(sc.shutdownFuncs,
		step("db", nil),
		step("redis", errors.New("already closed")),
		step("writer", nil),
		step("sessions", nil),
	)

	err := sc.Shutdown(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"sessions", "writer", "redis", "db"}, order)

	// A second shutdown is a no-op
	order = nil
	assert.NoError(t, sc.Shutdown(context.Background()))
	assert.Empty(t, order)
}

func TestCheckpointStoreName(t *testing.T) {
	assert.Equal(t, "memory", checkpointStoreName(checkpoint.NewMemoryStore()))
	assert.Equal(t, "redis", checkpointStoreName(checkpoint.NewRedisStore(nil, "", 0)))
}

func TestInitialize_RequiresDatabaseURL(t *testing.T) {
	sc := newTestContainer()

	err := sc.Initialize(context.Background())

	assert.Error(t, err)
	assert.Empty(t, sc.shutdownFuncs)
}
