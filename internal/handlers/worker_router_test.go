package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studyprogress/internal/config"
	"studyprogress/internal/observability"
	"studyprogress/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	ready   bool
	status  worker.Status
	history []worker.RunRecord
}

func (s *stubWorker) IsReady() bool                  { return s.ready }
func (s *stubWorker) GetInstance() string            { return "worker-1" }
func (s *stubWorker) GetStatus() worker.Status       { return s.status }
func (s *stubWorker) GetHistory() []worker.RunRecord { return s.history }

func serveWorker(t *testing.T, w *stubWorker, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	router := NewWorkerRouter(testConfig(), w, logger)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestWorkerRouter_Health(t *testing.T) {
	rec := serveWorker(t, &stubWorker{ready: true}, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "worker-1")

	rec = serveWorker(t, &stubWorker{ready: false}, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWorkerRouter_StatusAndHistory(t *testing.T) {
	finished := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	w := &stubWorker{
		ready:  true,
		status: worker.Status{IsRunning: true, LastRunFinish: finished},
		history: []worker.RunRecord{
			{Job: worker.JobSweep, Status: "Success", Details: "closed=2"},
		},
	}

	rec := serveWorker(t, w, "/v1/worker/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Instance string        `json:"instance"`
		Status   worker.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "worker-1", status.Instance)
	assert.True(t, status.Status.IsRunning)
	assert.True(t, finished.Equal(status.Status.LastRunFinish))

	rec = serveWorker(t, w, "/v1/worker/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "closed=2")
}

func TestWorkerRouter_RouteListing(t *testing.T) {
	rec := serveWorker(t, &stubWorker{ready: true}, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), WorkerServiceName)
	assert.Contains(t, rec.Body.String(), "/v1/worker/status")
}
