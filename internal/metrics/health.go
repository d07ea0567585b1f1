package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe checks one dependency. Nil error means healthy.
type Probe func(ctx context.Context) error

type probeResult struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus tracks dependency liveness for /healthz.
type HealthStatus struct {
	mu          sync.RWMutex
	probes      map[string]Probe
	results     map[string]probeResult
	lastFrameAt time.Time
	lastCheckAt time.Time
	startedAt   time.Time
}

// NewHealthStatus returns an empty health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		probes:    make(map[string]Probe),
		results:   make(map[string]probeResult),
		startedAt: time.Now(),
	}
}

// AddProbe registers a named dependency check.
func (h *HealthStatus) AddProbe(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// SetLastFrameTime records when a frame was last rendered.
func (h *HealthStatus) SetLastFrameTime(t time.Time) {
	h.mu.Lock()
	h.lastFrameAt = t
	h.mu.Unlock()
}

// Check runs every probe once and records latency and result.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	probes := make(map[string]Probe, len(h.probes))
	for k, v := range h.probes {
		probes[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]probeResult, len(probes))
	for name, p := range probes {
		start := time.Now()
		err := p(ctx)
		r := probeResult{OK: err == nil, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
		if err != nil {
			r.Error = err.Error()
		}
		results[name] = r
	}

	h.mu.Lock()
	h.results = results
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs Check every interval until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		h.Check(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Any failing probe makes the
// service degraded (503); all probes failing makes it unhealthy.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failing := 0
	names := make([]string, 0, len(h.results))
	for name, res := range h.results {
		names = append(names, name)
		if !res.OK {
			failing++
		}
	}
	sort.Strings(names)

	overall, code := "healthy", http.StatusOK
	if failing > 0 {
		overall, code = "degraded", http.StatusServiceUnavailable
		if failing == len(h.results) {
			overall = "unhealthy"
		}
	}

	frameAge := ""
	if !h.lastFrameAt.IsZero() {
		frameAge = time.Since(h.lastFrameAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status      string                 `json:"status"`
		Uptime      string                 `json:"uptime"`
		FrameAge    string                 `json:"frame_age"`
		Deps        map[string]probeResult `json:"deps"`
		Checked     []string               `json:"checked"`
		LastCheckAt string                 `json:"last_check_at"`
	}{
		Status:      overall,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		FrameAge:    frameAge,
		Deps:        h.results,
		Checked:     names,
		LastCheckAt: h.lastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer nil uses the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
