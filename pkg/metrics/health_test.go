package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetComponents(t *testing.T) {
	t.Helper()
	health.mu.Lock()
	health.components = make(map[string]ComponentReport)
	health.mu.Unlock()
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name        string
		components  map[string]bool
		wantStatus  string
		wantMessage string
	}{
		{name: "no components", wantStatus: StatusHealthy},
		{name: "all healthy", components: map[string]bool{"storage": true, "backup": true}, wantStatus: StatusHealthy},
		{name: "backup failing", components: map[string]bool{"storage": true, "backup": false}, wantStatus: StatusDegraded, wantMessage: "backup: disk full"},
		{name: "storage failing", components: map[string]bool{"storage": false, "keystore": true}, wantStatus: StatusUnhealthy, wantMessage: "storage: disk full"},
		{name: "critical outranks degraded", components: map[string]bool{"keystore": false, "backup": false}, wantStatus: StatusUnhealthy, wantMessage: "keystore: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetComponents(t)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "disk full")
			}
			report := GetHealth()
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantMessage, report.Message)
			assert.Len(t, report.Components, len(tt.components))
		})
	}
}

func TestComponentCriticality(t *testing.T) {
	resetComponents(t)
	RegisterComponent("storage", true, "")
	RegisterComponent("backup", true, "")

	report := GetHealth()
	assert.True(t, report.Components["storage"].Critical)
	assert.False(t, report.Components["backup"].Critical)
}

func TestGetReadiness(t *testing.T) {
	resetComponents(t)
	RegisterComponent("storage", true, "")

	readiness := GetReadiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "keystore not opened", readiness.Message)

	RegisterComponent("keystore", false, "credential store unavailable")
	readiness = GetReadiness()
	assert.Equal(t, StatusNotReady, readiness.Status)
	assert.Equal(t, "keystore: credential store unavailable", readiness.Message)

	RegisterComponent("keystore", true, "")
	RegisterComponent("backup", false, "disk full")
	readiness = GetReadiness()
	assert.Equal(t, StatusReady, readiness.Status, "backup does not gate readiness")
	assert.NotContains(t, readiness.Components, "backup")
}

func TestUnregisterComponent(t *testing.T) {
	resetComponents(t)
	RegisterComponent("storage", false, "closed")
	assert.Equal(t, StatusUnhealthy, GetHealth().Status)

	UnregisterComponent("storage")
	assert.Equal(t, StatusHealthy, GetHealth().Status)
}

func TestHealthHandlers(t *testing.T) {
	resetComponents(t)
	RegisterComponent("storage", true, "")
	RegisterComponent("keystore", true, "")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{name: "health", handler: HealthHandler(), want: StatusHealthy},
		{name: "ready", handler: ReadyHandler(), want: StatusReady},
		{name: "live", handler: LivenessHandler(), want: "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/"+tt.name, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.want, body["status"])
		})
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		failing  string
		wantCode int
	}{
		{name: "degraded stays up", failing: "backup", wantCode: http.StatusOK},
		{name: "unhealthy", failing: "storage", wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetComponents(t)
			RegisterComponent(tt.failing, false, "broken")

			w := httptest.NewRecorder()
			HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestReadyHandlerNotReady(t *testing.T) {
	resetComponents(t)
	RegisterComponent("storage", false, "open failed")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
