package metrics

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Overall states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// CriticalComponents gate readiness. A failing critical component makes the
// store unhealthy; any other failing component (backup) only degrades it.
var CriticalComponents = []string{"storage", "keystore"}

// ComponentReport is one component's entry in a Report
type ComponentReport struct {
	Healthy  bool      `json:"healthy"`
	Critical bool      `json:"critical"`
	Message  string    `json:"message,omitempty"`
	Updated  time.Time `json:"updated"`
}

// Report is the body served by /health and /ready
type Report struct {
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	Components map[string]ComponentReport `json:"components,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentReport
	started    time.Time
	version    string
}

var health = &registry{
	components: make(map[string]ComponentReport),
	started:    time.Now(),
}

// SetVersion sets the version string included in reports
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// RegisterComponent records the current state of name, replacing any
// earlier report for it
func RegisterComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()

	health.components[name] = ComponentReport{
		Healthy:  healthy,
		Critical: slices.Contains(CriticalComponents, name),
		Message:  message,
		Updated:  time.Now(),
	}
}

// UnregisterComponent removes name, e.g. after its engine is closed
func UnregisterComponent(name string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	delete(health.components, name)
}

// GetHealth summarizes every registered component
func GetHealth() Report {
	health.mu.RLock()
	defer health.mu.RUnlock()

	r := health.report(StatusHealthy)
	for name, c := range health.components {
		r.Components[name] = c
		switch {
		case c.Healthy:
		case c.Critical:
			r.Status = StatusUnhealthy
			r.Message = name + ": " + c.Message
		case r.Status == StatusHealthy:
			r.Status = StatusDegraded
			r.Message = name + ": " + c.Message
		}
	}
	return r
}

// GetReadiness reports ready once every critical component has registered
// as healthy
func GetReadiness() Report {
	health.mu.RLock()
	defer health.mu.RUnlock()

	r := health.report(StatusReady)
	for _, name := range CriticalComponents {
		c, ok := health.components[name]
		if !ok {
			r.Status = StatusNotReady
			r.Message = name + " not opened"
			continue
		}
		r.Components[name] = c
		if !c.Healthy {
			r.Status = StatusNotReady
			r.Message = name + ": " + c.Message
		}
	}
	return r
}

// must hold mu
func (h *registry) report(status string) Report {
	return Report{
		Status:     status,
		Components: make(map[string]ComponentReport, len(h.components)),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC(),
	}
}

// HealthHandler serves GetHealth. Degraded still answers 200 so a failing
// backup does not take the store out of rotation.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetHealth()
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// ReadyHandler serves GetReadiness
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := GetReadiness()
		code := http.StatusOK
		if report.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// LivenessHandler answers 200 while the process is running
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health.mu.RLock()
		started := health.started
		health.mu.RUnlock()

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
