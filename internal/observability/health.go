package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker tracks the ledger's boot progress and serves /healthz
// (liveness) and /readyz (readiness). Readiness flips on only after recovery
// completes: snapshot restored, op log replayed, NATS subscribed. Until then
// /readyz names the stage the service is stuck in, which is what an operator
// wants to see when a replica sits in a crash loop mid-replay.
type HealthChecker struct {
	ready     atomic.Bool
	stage     atomic.Value // string
	startTime time.Time
}

// Boot stages reported by /readyz while the service recovers.
const (
	StageRestoringSnapshot = "restoring_snapshot"
	StageReplayingOpLog    = "replaying_op_log"
	StageConnectingNATS    = "connecting_nats"
	StageServing           = "serving"
)

func NewHealthChecker() *HealthChecker {
	h := &HealthChecker{startTime: time.Now()}
	h.stage.Store(StageRestoringSnapshot)
	return h
}

// SetStage records the current boot stage.
func (h *HealthChecker) SetStage(stage string) {
	h.stage.Store(stage)
}

// SetReady marks the ledger as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
	if ready {
		h.stage.Store(StageServing)
	}
}

// IsReady reports whether recovery has completed.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler answers OK whenever the process is running, even during a
// long op log replay.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns 200 once the ledger serves traffic, 503 with the
// current recovery stage otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stage, _ := h.stage.Load().(string)
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
			"stage":  stage,
		})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "not_ready",
		"stage":  stage,
	})
}
