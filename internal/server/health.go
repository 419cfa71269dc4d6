package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/mcp-hive/internal/k8s"
)

// Health endpoint paths.
const (
	LivenessPath       = "/healthz"
	ReadinessPath      = "/readyz"
	DetailedHealthPath = "/healthz/detailed"
)

const (
	statusOK           = "ok"
	statusNotReady     = "not ready"
	statusShuttingDown = "shutting down"
)

// HealthChecker serves the liveness, readiness and detailed health
// endpoints of the HTTP transports.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker returns a checker that starts ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness; the transports clear it when shutdown begins.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed. Contexts lists
// only the kube contexts connected so far.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Transport       string                      `json:"transport,omitempty"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	DefaultContext  string                      `json:"default_context,omitempty"`
	Contexts        []k8s.ContextStatus         `json:"contexts"`
	StaleContexts   int                         `json:"stale_contexts"`
	Sessions        *SessionHealthStatus        `json:"sessions,omitempty"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
}

// SessionHealthStatus counts open sessions and their in-flight calls.
type SessionHealthStatus struct {
	Active   int `json:"active"`
	InFlight int `json:"in_flight_calls"`
}

// InstrumentationHealthCheck reports which exporters are active.
type InstrumentationHealthCheck struct {
	Enabled         bool   `json:"enabled"`
	MetricsExporter string `json:"metrics_exporter,omitempty"`
	TracingExporter string `json:"tracing_exporter,omitempty"`
}

// RegisterHealthEndpoints mounts the three endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle(LivenessPath, h.LivenessHandler())
	mux.Handle(ReadinessPath, h.ReadinessHandler())
	mux.Handle(DetailedHealthPath, h.DetailedHealthHandler())
}

// LivenessHandler answers 200 while the process runs.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{Status: statusOK}
		if h.sc != nil {
			response.Version = h.sc.Config().Version
		}
		writeJSON(w, http.StatusOK, response)
	})
}

// ReadinessHandler answers 503 once shutdown has begun. Credential failures
// on a kube context do not make the server unready; tool calls report them.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"ready": statusOK, "shutdown": statusOK}
		if !h.ready.Load() {
			checks["ready"] = statusNotReady
		}
		if h.shuttingDown() {
			checks["shutdown"] = statusShuttingDown
		}

		code := http.StatusOK
		status := statusOK
		if checks["ready"] != statusOK || checks["shutdown"] != statusOK {
			code, status = http.StatusServiceUnavailable, statusNotReady
		}
		writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler reports credential freshness per connected kube
// context, session counts and instrumentation state.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status:   statusOK,
			Uptime:   time.Since(h.started).Truncate(time.Second).String(),
			Contexts: []k8s.ContextStatus{},
		}

		if sc := h.sc; sc != nil {
			response.Version = sc.Config().Version
			response.Transport = sc.Config().Transport
			if client := sc.K8sClient(); client != nil {
				response.DefaultContext = client.DefaultContext()
				if statuses := client.ContextStatuses(); len(statuses) > 0 {
					response.Contexts = statuses
				}
			}
			response.Sessions = h.getSessionStatus()
			response.Instrumentation = h.getInstrumentationStatus()
		}
		for _, c := range response.Contexts {
			if c.Connected && !c.Fresh {
				response.StaleContexts++
			}
		}

		code := http.StatusOK
		switch {
		case !h.ready.Load():
			code, response.Status = http.StatusServiceUnavailable, statusNotReady
		case h.shuttingDown():
			code, response.Status = http.StatusServiceUnavailable, statusShuttingDown
		}
		writeJSON(w, code, response)
	})
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) getSessionStatus() *SessionHealthStatus {
	tracker := h.sc.Sessions()
	if tracker == nil {
		return nil
	}
	status := &SessionHealthStatus{}
	for _, s := range tracker.Sessions() {
		status.Active++
		status.InFlight += s.InFlight
	}
	return status
}

func (h *HealthChecker) getInstrumentationStatus() *InstrumentationHealthCheck {
	provider := h.sc.InstrumentationProvider()
	if provider == nil {
		return &InstrumentationHealthCheck{}
	}
	metrics, tracing := provider.Exporters()
	return &InstrumentationHealthCheck{
		Enabled:         provider.Enabled(),
		MetricsExporter: metrics,
		TracingExporter: tracing,
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
