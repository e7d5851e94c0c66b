// Package statshttp exposes a read-only JSON stats surface and a Prometheus
// scrape endpoint for a running utpd process. It composes
// internal/control/auth (bearer-token authentication), internal/connection
// (per-connection samples), and internal/observability/metrics (the
// Prometheus registry).
//
// Every route is JWT-guarded except /metrics, which Prometheus itself
// scrapes and cannot carry a bearer token without extra scrape_config
// plumbing the operator may not have set up; it is expected to sit behind
// the same network boundary as the rest of the control surface.
package statshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/packetloom/utp/internal/connection"
	"github.com/packetloom/utp/internal/control/auth"
)

// Registry is the minimal view of live connections the stats handler needs.
// internal/connection does not itself track every Connection it creates, so
// cmd/utpd's wiring registers/unregisters each one here as it is dialed,
// accepted, and closed.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection.Connection
}

// NewRegistry creates an empty connection Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection.Connection)}
}

// Register adds c to the registry, keyed by its GUUID.
func (r *Registry) Register(c *connection.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID().String()] = c
}

// Unregister removes a connection, e.g. once it has closed.
func (r *Registry) Unregister(c *connection.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID().String())
}

// Get returns the connection with the given GUUID string, if tracked.
func (r *Registry) Get(id string) (*connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Snapshot returns every tracked connection.
func (r *Registry) Snapshot() []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Config configures the stats HTTP server.
type Config struct {
	Addr        string
	MetricsPath string
	StatsPath   string
}

// DefaultConfig returns sane defaults for the stats HTTP server.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:9980",
		MetricsPath: "/metrics",
		StatsPath:   "/stats",
	}
}

// Server serves the JSON stats surface and the Prometheus scrape endpoint.
type Server struct {
	config   *Config
	registry *Registry
	manager  *auth.Manager
	logger   *zap.Logger

	httpServer *http.Server
}

// New creates a Server. manager authenticates bearer tokens presented to
// /stats and /stats/{id}; it may be nil to disable auth entirely (only
// appropriate when the stats port is already firewalled to localhost).
func New(cfg *Config, registry *Registry, manager *auth.Manager, logger *zap.Logger) *Server {
	return &Server{config: cfg, registry: registry, manager: manager, logger: logger}
}

// connSummary is the JSON shape returned for one connection.
type connSummary struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	AdvertisedWindow uint32 `json:"advertised_window"`
	InflightBytes    uint32 `json:"inflight_bytes"`
	RetransmitQueue  int    `json:"retransmit_queue"`
	ReorderBuffer    int    `json:"reorder_buffer"`
	RTTMicros        int64  `json:"rtt_micros"`
	BandwidthBps     uint64 `json:"bandwidth_bps"`
	PacingRateBps    uint64 `json:"pacing_rate_bps"`
	CongestionState  int    `json:"congestion_state"`
	Retransmissions  uint64 `json:"retransmissions"`
	FECRecovered     uint64 `json:"fec_recovered"`
	FECFailed        uint64 `json:"fec_failed"`
}

func summarize(c *connection.Connection) connSummary {
	sample := c.Sample()
	return connSummary{
		ID:               c.ID().String(),
		State:            c.State().String(),
		AdvertisedWindow: sample.AdvertisedWindow,
		InflightBytes:    sample.InflightBytes,
		RetransmitQueue:  sample.RetransmitQueue,
		ReorderBuffer:    sample.ReorderBuffer,
		RTTMicros:        sample.RTT.Microseconds(),
		BandwidthBps:     sample.BandwidthBps,
		PacingRateBps:    sample.PacingRateBps,
		CongestionState:  sample.CongestionState,
		Retransmissions:  sample.Retransmissions,
		FECRecovered:     sample.FECRecovered,
		FECFailed:        sample.FECFailed,
	}
}

// Start begins serving in the background. It does not block.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle(s.config.MetricsPath, promhttp.Handler())
	mux.HandleFunc(s.config.StatsPath, s.requireScope("stats:read", s.handleListConns))
	mux.HandleFunc(s.config.StatsPath+"/", s.requireScope("stats:read", s.handleGetConn))

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}

	go func() {
		s.logger.Info("stats server started", zap.String("address", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("stats server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the stats server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListConns(w http.ResponseWriter, r *http.Request) {
	conns := s.registry.Snapshot()
	out := make([]connSummary, 0, len(conns))
	for _, c := range conns {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConn(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, s.config.StatsPath+"/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing connection id"})
		return
	}
	c, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "connection not found"})
		return
	}
	writeJSON(w, http.StatusOK, summarize(c))
}

// requireScope wraps next with bearer-token authentication, rejecting
// requests that lack a valid token carrying scope. When the Server was
// constructed with a nil auth.Manager, the wrapped handler is unguarded.
func (s *Server) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	if s.manager == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		claims, err := s.manager.VerifyToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		if !claims.HasScope(scope) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient scope"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
