// Package bbr implements the BBR congestion control algorithm as the
// concrete provider of the buffer engine's max_window_send/handle_window_size
// hooks (the engine consumes a send window; it never computes one itself).
// Based on Google's BBR algorithm: https://queue.acm.org/detail.cfm?id=3022184
package bbr

import (
	"sync"
	"time"
)

// State is the current phase of the BBR state machine.
type State int

const (
	// StateStartup is the initial state where BBR aggressively probes for bandwidth.
	StateStartup State = iota

	// StateDrain reduces the sending rate to drain the queue built up during startup.
	StateDrain

	// StateProbeBW is the steady state where BBR probes for more bandwidth.
	StateProbeBW

	// StateProbeRTT reduces inflight data to probe for minimum RTT.
	StateProbeRTT
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateDrain:
		return "DRAIN"
	case StateProbeBW:
		return "PROBE_BW"
	case StateProbeRTT:
		return "PROBE_RTT"
	default:
		return "UNKNOWN"
	}
}

const (
	// StartupGain is the pacing gain used during STARTUP.
	StartupGain = 2.77

	// DrainGain is the pacing gain used during DRAIN.
	DrainGain = 1.0 / StartupGain

	// ProbeBWCycleLen is the length of the PROBE_BW pacing-gain cycle.
	ProbeBWCycleLen = 8

	// ProbeRTTDuration is how long to stay in PROBE_RTT.
	ProbeRTTDuration = 200 * time.Millisecond

	// ProbeRTTInterval is the interval between PROBE_RTT states.
	ProbeRTTInterval = 10 * time.Second

	// MinPipeCwnd is the minimum cwnd value, in packets.
	MinPipeCwnd = 4

	// FullBandwidthThreshold is the growth ratio below which bandwidth is
	// considered to have stopped growing (3 consecutive rounds).
	FullBandwidthThreshold = 1.25

	// assumedMSS approximates pkt_size for cwnd<->packet conversions when
	// the caller hasn't told us the engine's actual pkt_size.
	assumedMSS = 1400
)

// ProbeBW gain cycle: alternate between probing higher and lower to find equilibrium.
var probeBWGainCycle = []float64{1.25, 0.75, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}

// BBR is a per-connection congestion controller. It implements the
// engine.Network collaborator's MaxWindowSend/HandleWindowSize pair; send
// and wire I/O live in internal/net/udpconn, which embeds one of these.
type BBR struct {
	mu sync.RWMutex

	state        State
	stateEntryAt time.Time

	btlBw       uint64
	rtProp      time.Duration
	rtPropStamp time.Time

	pacingRate uint64
	sendWindow uint32
	pacingGain float64
	cwndGain   float64

	cycleIndex int
	cycleStamp time.Time
	priorCwnd  uint32

	bandwidthSamples []bandwidthSample
	lastSampleTime   time.Time

	fullBandwidthReached bool
	fullBandwidthCount   int
	lastBandwidthReached uint64

	deliveredBytes uint64

	minRTT       time.Duration
	maxBandwidth uint64
}

type bandwidthSample struct {
	bandwidth uint64
	rtt       time.Duration
	timestamp time.Time
}

// Config configures a new BBR controller.
type Config struct {
	InitialCwnd  uint32        // initial congestion window, in packets
	MinRTT       time.Duration // minimum RTT hint
	MaxBandwidth uint64        // maximum bandwidth hint, bytes/sec

	// OptSendBufBytes overrides the initial send window in bytes, reported
	// by MaxWindowSend before any bandwidth samples exist. Zero defers to
	// InitialCwnd*assumedMSS.
	OptSendBufBytes uint32
}

// DefaultConfig returns the default BBR configuration.
func DefaultConfig() *Config {
	return &Config{
		InitialCwnd:  10,
		MinRTT:       10 * time.Millisecond,
		MaxBandwidth: 100 * 1024 * 1024,
	}
}

// New creates a BBR controller seeded with cfg (or DefaultConfig if nil).
func New(cfg *Config) *BBR {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	now := time.Now()
	b := &BBR{
		state:            StateStartup,
		stateEntryAt:     now,
		rtProp:           cfg.MinRTT,
		rtPropStamp:      now,
		pacingGain:       StartupGain,
		cwndGain:         StartupGain,
		cycleStamp:       now,
		bandwidthSamples: make([]bandwidthSample, 0, 10),
		lastSampleTime:   now,
		minRTT:           cfg.MinRTT,
		maxBandwidth:     cfg.MaxBandwidth,
	}

	if cfg.OptSendBufBytes > 0 {
		b.sendWindow = cfg.OptSendBufBytes
	} else {
		b.sendWindow = cfg.InitialCwnd * assumedMSS
	}
	b.pacingRate = uint64(float64(b.sendWindow) / b.rtProp.Seconds())
	return b
}

// MaxWindowSend implements engine.Network's max_window_send().
func (b *BBR) MaxWindowSend() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sendWindow
}

// HandleWindowSize implements engine.Network's handle_window_size(): the
// engine's own send window is already congestion-controlled, but it must
// never exceed what the peer has advertised room for.
func (b *BBR) HandleWindowSize(pktWindow uint32, peerWndSize uint32) uint32 {
	if peerWndSize < pktWindow {
		return peerWndSize
	}
	return pktWindow
}

// OnPacketSent records bytes handed to the network.
func (b *BBR) OnPacketSent(size uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveredBytes += uint64(size)
}

// OnAcked feeds one engine.Event's worth of newly-ACKed bytes and RTT
// samples into the controller. rtts excludes retransmitted packets
// (Karn's algorithm is the engine's job via extract_rtt; this just
// consumes what it's handed).
func (b *BBR) OnAcked(ackedBytes int, rtts []time.Duration, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rtt := range rtts {
		b.updateRTTLocked(rtt, now)
	}
	if ackedBytes > 0 {
		b.updateBandwidthLocked(uint32(ackedBytes), now)
	}
	b.updateStateLocked(now)
	b.updatePacingAndWindowLocked()
}

func (b *BBR) updateRTTLocked(rtt time.Duration, now time.Time) {
	if rtt < b.rtProp || now.Sub(b.rtPropStamp) > ProbeRTTInterval {
		b.rtProp = rtt
		b.rtPropStamp = now
	}
}

func (b *BBR) updateBandwidthLocked(size uint32, now time.Time) {
	delta := now.Sub(b.lastSampleTime)
	if delta <= 0 {
		return
	}

	bandwidth := uint64(float64(size) / delta.Seconds())
	b.bandwidthSamples = append(b.bandwidthSamples, bandwidthSample{
		bandwidth: bandwidth,
		timestamp: now,
	})
	if len(b.bandwidthSamples) > 10 {
		b.bandwidthSamples = b.bandwidthSamples[1:]
	}

	var maxBw uint64
	for _, s := range b.bandwidthSamples {
		if s.bandwidth > maxBw {
			maxBw = s.bandwidth
		}
	}
	b.btlBw = maxBw
	b.lastSampleTime = now

	if b.state == StateStartup {
		b.checkFullBandwidthLocked()
	}
}

func (b *BBR) checkFullBandwidthLocked() {
	if b.btlBw >= b.lastBandwidthReached*uint64(FullBandwidthThreshold*100)/100 {
		b.lastBandwidthReached = b.btlBw
		b.fullBandwidthCount = 0
		return
	}
	b.fullBandwidthCount++
	if b.fullBandwidthCount >= 3 {
		b.fullBandwidthReached = true
	}
}

func (b *BBR) updateStateLocked(now time.Time) {
	switch b.state {
	case StateStartup:
		if b.fullBandwidthReached {
			b.enterDrainLocked(now)
		}
	case StateDrain:
		if b.sendWindow <= b.calculateBDPLocked() {
			b.enterProbeBWLocked(now)
		}
	case StateProbeBW:
		if now.Sub(b.rtPropStamp) > ProbeRTTInterval {
			b.enterProbeRTTLocked(now)
		} else {
			b.updateProbeBWCycleLocked(now)
		}
	case StateProbeRTT:
		if now.Sub(b.stateEntryAt) >= ProbeRTTDuration {
			b.enterProbeBWLocked(now)
		}
	}
}

func (b *BBR) enterDrainLocked(now time.Time) {
	b.state = StateDrain
	b.stateEntryAt = now
	b.pacingGain = DrainGain
	b.cwndGain = 2.0
}

func (b *BBR) enterProbeBWLocked(now time.Time) {
	b.state = StateProbeBW
	b.stateEntryAt = now
	b.cycleIndex = 0
	b.cycleStamp = now
	b.pacingGain = probeBWGainCycle[0]
	b.cwndGain = 2.0
}

func (b *BBR) enterProbeRTTLocked(now time.Time) {
	b.state = StateProbeRTT
	b.stateEntryAt = now
	b.pacingGain = 1.0
	b.cwndGain = 1.0
	b.priorCwnd = b.sendWindow
}

func (b *BBR) updateProbeBWCycleLocked(now time.Time) {
	if now.Sub(b.cycleStamp) > b.rtProp {
		b.cycleIndex = (b.cycleIndex + 1) % ProbeBWCycleLen
		b.cycleStamp = now
		b.pacingGain = probeBWGainCycle[b.cycleIndex]
	}
}

func (b *BBR) updatePacingAndWindowLocked() {
	if b.btlBw > 0 {
		b.pacingRate = uint64(float64(b.btlBw) * b.pacingGain)
	}

	bdp := b.calculateBDPLocked()
	cwnd := uint32(float64(bdp) * b.cwndGain)
	if min := uint32(MinPipeCwnd * assumedMSS); cwnd < min {
		cwnd = min
	}
	b.sendWindow = cwnd
}

func (b *BBR) calculateBDPLocked() uint32 {
	if b.btlBw == 0 || b.rtProp == 0 {
		return MinPipeCwnd * assumedMSS
	}
	return uint32(float64(b.btlBw) * b.rtProp.Seconds())
}

// PacingDelay returns the delay to impose before sending a packet of the
// given size at the current pacing rate. internal/net/udpconn does not use
// it; it feeds internal/net/pacer from Stats().PacingRate instead.
func (b *BBR) PacingDelay(packetSize uint32) time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.pacingRate == 0 {
		return 0
	}
	return time.Duration(float64(packetSize) / float64(b.pacingRate) * float64(time.Second))
}

// State returns the current BBR phase.
func (b *BBR) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Bandwidth returns the estimated bottleneck bandwidth, bytes/sec.
func (b *BBR) Bandwidth() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.btlBw
}

// RTT returns the current minimum RTT estimate.
func (b *BBR) RTT() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rtProp
}

// Stats returns a snapshot suitable for internal/observability/metrics.
func (b *BBR) Stats() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		State:      b.state.String(),
		BtlBwBps:   b.btlBw,
		RTTMicros:  b.rtProp.Microseconds(),
		PacingRate: b.pacingRate,
		SendWindow: b.sendWindow,
	}
}

// Snapshot is a point-in-time read of BBR's internal estimates.
type Snapshot struct {
	State      string
	BtlBwBps   uint64
	RTTMicros  int64
	PacingRate uint64
	SendWindow uint32
}
