package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"studyprogress/internal/config"
	"studyprogress/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDatabaseName(t *testing.T) {
	assert.Equal(t, "study_db", extractDatabaseName("postgres://u:p@localhost:5432/study_db?sslmode=disable"))
	assert.Equal(t, "studyprogress", extractDatabaseName("postgres://u:p@localhost:5432"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrationFiles, "migrations/000001_progress_engine.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "uq_study_sessions_one_active")
}

func TestInitDBWithoutMigrations_RequiresURL(t *testing.T) {
	dm := NewManager(observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	_, err := dm.InitDBWithoutMigrations(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)
}
