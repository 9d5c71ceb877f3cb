package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"studyprogress/internal/version"

	"github.com/stretchr/testify/assert"
)

func TestRouter_HealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestRouter_Version(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, version.Version, body["version"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestRouter_RouteListing(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	routes := body["routes"].([]interface{})

	paths := make(map[string]bool)
	for _, r := range routes {
		route := r.(map[string]interface{})
		paths[route["method"].(string)+" "+route["path"].(string)] = true
	}
	for _, want := range []string{
		"POST /v1/sessions",
		"GET /v1/sessions/current",
		"POST /v1/sessions/current/toggle-pause",
		"POST /v1/sessions/current/end",
		"PUT /v1/sessions/current/activity",
		"POST /v1/sessions/restore",
		"POST /v1/reviews",
		"POST /v1/quizzes",
		"GET /v1/quizzes/current",
		"POST /v1/quizzes/current/answers",
		"POST /v1/difficulty/profile",
		"POST /v1/item-sets/:id/recalibrate",
		"GET /v1/goals/notifications",
		"POST /v1/goals/bulk",
	} {
		assert.True(t, paths[want], want)
	}
	assert.False(t, paths["GET /test-login"], "listing is collected before test routes are added")
}

func TestRouter_SecureHeaders(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/version", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}
