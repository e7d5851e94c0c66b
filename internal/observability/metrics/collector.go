package metrics

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnSample is a cumulative, point-in-time read of one connection's
// engine/socket/congestion state — the shape internal/connection.Connection
// reports through the sampler interface. Counters here are running totals
// since the connection was established, not deltas.
type ConnSample struct {
	AdvertisedWindow uint32
	InflightBytes    uint32
	RetransmitQueue  int
	ReorderBuffer    int

	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	SocketErrors    uint64
	Retransmissions uint64
	FECRecovered    uint64
	FECFailed       uint64

	RTT             time.Duration
	BandwidthBps    uint64
	PacingRateBps   uint64
	CongestionState int
}

// sampler is the minimal surface Collector needs from a tracked connection
// — satisfied by internal/connection.Connection. Defined here rather than
// importing internal/connection to avoid a dependency cycle.
type sampler interface {
	Sample() ConnSample
}

// Collector periodically samples every registered connection into the
// Prometheus gauges/counters in Metrics, plus process-wide runtime stats.
type Collector struct {
	metrics *Metrics
	logger  *zap.Logger
	stopCh  chan struct{}

	mu    sync.Mutex
	conns map[string]sampler
	prev  map[string]ConnSample
}

// NewCollector creates a Collector bound to metrics.
func NewCollector(metrics *Metrics, logger *zap.Logger) *Collector {
	return &Collector{
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
		conns:   make(map[string]sampler),
		prev:    make(map[string]ConnSample),
	}
}

// Track registers a connection for periodic sampling.
func (c *Collector) Track(connID string, s sampler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = s
}

// Untrack stops sampling a connection, e.g. once it has closed.
func (c *Collector) Untrack(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, connID)
	delete(c.prev, connID)
}

// Start begins the sampling loop.
func (c *Collector) Start() {
	go c.collectLoop()
	c.logger.Info("metrics collector started")
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.logger.Info("metrics collector stopped")
}

func (c *Collector) collectLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collectConnections()
			c.collectRuntime()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collectConnections() {
	c.mu.Lock()
	snapshot := make(map[string]sampler, len(c.conns))
	for id, s := range c.conns {
		snapshot[id] = s
	}
	c.mu.Unlock()

	for id, s := range snapshot {
		cur := s.Sample()

		c.mu.Lock()
		prev := c.prev[id]
		c.prev[id] = cur
		c.mu.Unlock()

		c.metrics.Record(Sample{
			ConnID:           id,
			AdvertisedWindow: cur.AdvertisedWindow,
			InflightBytes:    cur.InflightBytes,
			RetransmitQueue:  cur.RetransmitQueue,
			ReorderBuffer:    cur.ReorderBuffer,

			PacketsSentDelta:     cur.PacketsSent - prev.PacketsSent,
			PacketsReceivedDelta: cur.PacketsReceived - prev.PacketsReceived,
			BytesSentDelta:       cur.BytesSent - prev.BytesSent,
			BytesReceivedDelta:   cur.BytesReceived - prev.BytesReceived,
			SocketErrorsDelta:    cur.SocketErrors - prev.SocketErrors,
			RetransmissionsDelta: cur.Retransmissions - prev.Retransmissions,
			FECRecoveredDelta:    cur.FECRecovered - prev.FECRecovered,
			FECFailedDelta:       cur.FECFailed - prev.FECFailed,

			RTT:             cur.RTT,
			BandwidthBps:    cur.BandwidthBps,
			PacingRateBps:   cur.PacingRateBps,
			CongestionState: cur.CongestionState,
		})
	}
}

func (c *Collector) collectRuntime() {
	numGoroutines := runtime.NumGoroutine()
	c.metrics.GoRoutines.Set(float64(numGoroutines))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.logger.Debug("runtime metrics collected",
		zap.Int("goroutines", numGoroutines),
		zap.Uint64("heap_alloc", m.HeapAlloc),
		zap.Uint32("num_gc", m.NumGC),
	)
}
