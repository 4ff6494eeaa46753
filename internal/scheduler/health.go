package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy     bool      `json:"healthy"`
	LastCheck   time.Time `json:"last_check"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   error     `json:"-"`
	Message     string    `json:"message,omitempty"`
}

// Health tracks the health of various components.
type Health struct {
	mu         sync.RWMutex
	components map[string]HealthStatus
	now        func() time.Time
}

// NewHealth creates a new health tracker.
func NewHealth() *Health {
	return &Health{
		components: make(map[string]HealthStatus),
		now:        time.Now,
	}
}

// SetHealthy marks a component as healthy.
func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.components[component] = HealthStatus{
		Healthy:     true,
		LastCheck:   now,
		LastSuccess: now,
		Message:     message,
	}
}

// SetUnhealthy marks a component as unhealthy. A nil err is recorded as an
// unknown failure.
func (h *Health) SetUnhealthy(component string, err error) {
	if err == nil {
		err = errors.New("unknown failure")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.components[component]
	st.Healthy = false
	st.LastCheck = h.now()
	st.LastError = err
	st.Message = err.Error()
	h.components[component] = st
}

// GetStatus returns the status of a component, or nil if it never reported.
func (h *Health) GetStatus(component string) *HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.components[component]
	if !ok {
		return nil
	}
	return &st
}

// GetAllStatuses returns a copy of every component status.
func (h *Health) GetAllStatuses() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]HealthStatus, len(h.components))
	for name, st := range h.components {
		out[name] = st
	}
	return out
}

// IsOverallHealthy returns true if all components are healthy.
func (h *Health) IsOverallHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, st := range h.components {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// ServeHTTP reports every component as JSON, with 503 when any is
// unhealthy.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	healthy := h.IsOverallHealthy()
	body := struct {
		Healthy    bool                    `json:"healthy"`
		Components map[string]HealthStatus `json:"components"`
	}{healthy, h.GetAllStatuses()}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
