// Package connection is the owning task around internal/engine.Buffer: it
// performs the SYN handshake, owns the actual Connected/Closing/Closed
// state variable (the buffer only knows about the subset relevant to it,
// §4.9), and drives the buffer synchronously from four loops — send,
// receive, reliability (retransmission), and keepalive — the way the
// teacher's connection.go does, just rebuilt around the buffer engine
// instead of direct SendBuffer/ReceiveBuffer field access.
package connection

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/packetloom/utp/internal/congestion/bbr"
	"github.com/packetloom/utp/internal/control/wsdebug"
	"github.com/packetloom/utp/internal/engine"
	"github.com/packetloom/utp/internal/fec"
	"github.com/packetloom/utp/internal/guuid"
	"github.com/packetloom/utp/internal/net/udpconn"
	"github.com/packetloom/utp/internal/observability/metrics"
	"github.com/packetloom/utp/internal/observability/tracing"
	"github.com/packetloom/utp/internal/seqnum"
	"github.com/packetloom/utp/internal/wire"
)

// DebugPublisher streams one DebugEvent per notable connection event to
// attached wsdebug clients. *wsdebug.Hub satisfies this; it is nil when
// wsdebug is disabled, and every publish call is a no-op in that case.
type DebugPublisher interface {
	Publish(ev wsdebug.DebugEvent)
}

const (
	// DefaultKeepaliveInterval is how often an idle connection sends a bare
	// STATE packet to keep the peer's idle timer from firing.
	DefaultKeepaliveInterval = 10 * time.Second

	// DefaultIdleTimeout closes the connection after this long with no
	// inbound packet at all.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultMinRTO and DefaultMaxRTO bound the retransmission timer
	// derived from the congestion controller's RTT estimate (§4.5: "an
	// external timer whose interval the congestion controller sets").
	DefaultMinRTO = 100 * time.Millisecond
	DefaultMaxRTO = 3 * time.Second

	sendTick         = 2 * time.Millisecond
	reliabilityTick  = 20 * time.Millisecond
	recvReadTimeout  = 100 * time.Millisecond
	handshakeTimeout = 5 * time.Second

	sendQueueDepth = 1024

	// fecGroupRetention bounds how many in-flight FEC groups the decoder
	// keeps before evicting the oldest.
	fecGroupRetention = 16
)

// State is the connection's own lifecycle state — a superset of the
// buffer's Connected/FinSent/Closed (§4.9), since a buffer with no way to
// reach Connected in the first place isn't independently operable.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a new Connection.
type Config struct {
	RecvBufBytes      uint32
	PktSize           uint32
	KeepaliveInterval time.Duration
	IdleTimeout       time.Duration
	MinRTO            time.Duration
	MaxRTO            time.Duration

	FECEnabled      bool
	FECDataShards   int
	FECParityShards int

	BBR    *bbr.Config
	Socket *udpconn.Config
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() *Config {
	return &Config{
		RecvBufBytes:      engine.DefaultRecvBufSz,
		PktSize:           engine.DefaultPktSize,
		KeepaliveInterval: DefaultKeepaliveInterval,
		IdleTimeout:       DefaultIdleTimeout,
		MinRTO:            DefaultMinRTO,
		MaxRTO:            DefaultMaxRTO,
		FECEnabled:        false,
		FECDataShards:     fec.DefaultDataShards,
		FECParityShards:   fec.DefaultParityShards,
	}
}

// Statistics holds connection-level counters beyond what udpconn.Conn
// already tracks at the socket level.
type Statistics struct {
	Retransmissions uint64
	FECRecovered    uint64
	FECFailed       uint64
}

// Connection is one uTP connection: a socket, a congestion controller, a
// buffer engine, and the four loops driving them.
type Connection struct {
	mu sync.RWMutex

	id    guuid.GUUID
	state State

	sock    *udpconn.Conn
	network engine.Network
	clock   udpconn.Clock

	// engMu serializes every call into eng: the engine's handle_packet /
	// fill_window / send_fin calls are only safe when strictly serialized
	// ("handle_packet calls are strictly serialized and observed in the
	// order datagrams arrive from the Network"), and here that order spans
	// four independent loops plus the application's own Send/Receive/Close
	// calls.
	engMu sync.Mutex
	eng   *engine.Buffer

	pktWindow uint32

	out *outbox

	closeSignal chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	config *Config

	finSentAcked   bool
	gotFinObserved bool

	fecEnabled bool
	fecEncoder *fec.Encoder
	fecDecoder *fec.Decoder

	lastActivity time.Time

	stats Statistics

	debugPub DebugPublisher

	tracer    *tracing.Tracer
	closeSpan trace.Span
}

// SetDebugPublisher attaches pub as the sink for this connection's debug
// event trace (cmd/utpd wires its wsdebug.Hub here once one is enabled).
// Calling it with nil disables the trace again.
func (c *Connection) SetDebugPublisher(pub DebugPublisher) {
	c.mu.Lock()
	c.debugPub = pub
	c.mu.Unlock()
}

// SetTracer attaches t as the span source for this connection's close
// handshake. The handshake span (SYN/STATE) is rooted by the caller before
// Dial/Accept returns; this is the connection's own copy of t, kept only to
// root the later close span the same way.
func (c *Connection) SetTracer(t *tracing.Tracer) {
	c.mu.Lock()
	c.tracer = t
	c.mu.Unlock()
}

func (c *Connection) publishDebugEvent(kind wsdebug.DebugEventKind, seqNr, ackNr uint16, size int, detail string) {
	c.mu.RLock()
	pub := c.debugPub
	c.mu.RUnlock()
	if pub == nil {
		return
	}
	pub.Publish(wsdebug.DebugEvent{
		ConnID:    c.id.String(),
		Kind:      kind,
		Timestamp: time.Now(),
		SeqNr:     seqNr,
		AckNr:     ackNr,
		Size:      size,
		Detail:    detail,
	})
}

// Dial performs the client side of the handshake — send SYN, wait for the
// STATE reply — then starts the connection's loops.
func Dial(ctx context.Context, address string, cfg *Config) (*Connection, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sock, err := udpconn.Dial(address, socketConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connection: dial: %w", err)
	}

	c, err := newConnection(sock, cfg)
	if err != nil {
		sock.Close()
		return nil, err
	}

	ourSeq, err := randomSeq()
	if err != nil {
		sock.Close()
		return nil, err
	}

	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	synPkt := &wire.Packet{Header: wire.Header{Type: wire.TypeSyn, SeqNr: uint16(ourSeq)}}
	if _, err := c.sock.SendPacket(cfg.RecvBufBytes, synPkt); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connection: send syn: %w", err)
	}

	for {
		pkt, _, err := c.sock.ReceivePacket(hsCtx)
		if err != nil {
			sock.Close()
			return nil, fmt.Errorf("connection: waiting for handshake reply: %w", err)
		}
		if pkt.Header.Type == wire.TypeState && seqnum.Num(pkt.Header.AckNr) == ourSeq {
			c.eng = engine.New(engine.Config{
				InitialSeqNo:        ourSeq.Add(1),
				InitialNextExpected: seqnum.Num(pkt.Header.SeqNr).Add(1),
				OptRecvBufSz:        cfg.RecvBufBytes,
				PktSize:             cfg.PktSize,
			})
			break
		}
	}

	c.markEstablished()
	c.start()
	return c, nil
}

// Accept performs the server side of the handshake on an already-bound
// socket: wait for an inbound SYN, reply with STATE, then start the
// connection's loops.
func Accept(ctx context.Context, sock *udpconn.Conn, cfg *Config) (*Connection, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c, err := newConnection(sock, cfg)
	if err != nil {
		return nil, err
	}

	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	for {
		pkt, addr, err := c.sock.ReceivePacket(hsCtx)
		if err != nil {
			return nil, fmt.Errorf("connection: waiting for syn: %w", err)
		}
		if pkt.Header.Type != wire.TypeSyn {
			continue
		}
		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		c.sock.SetRemoteAddr(udpAddr)

		ourSeq, err := randomSeq()
		if err != nil {
			return nil, err
		}
		statePkt := &wire.Packet{
			Header: wire.Header{
				Type:  wire.TypeState,
				SeqNr: uint16(ourSeq),
				AckNr: pkt.Header.SeqNr,
			},
		}
		if _, err := c.sock.SendPacket(cfg.RecvBufBytes, statePkt); err != nil {
			return nil, fmt.Errorf("connection: send state reply: %w", err)
		}

		c.eng = engine.New(engine.Config{
			InitialSeqNo:        ourSeq.Add(1),
			InitialNextExpected: seqnum.Num(pkt.Header.SeqNr).Add(1),
			OptRecvBufSz:        cfg.RecvBufBytes,
			PktSize:             cfg.PktSize,
		})
		break
	}

	c.markEstablished()
	c.start()
	return c, nil
}

// socketConfig derives the udpconn.Config to dial with, folding in the
// connection-level BBR override if one was given.
func socketConfig(cfg *Config) *udpconn.Config {
	sockCfg := cfg.Socket
	if sockCfg == nil {
		sockCfg = udpconn.DefaultConfig()
	}
	if cfg.BBR != nil {
		cp := *sockCfg
		cp.BBR = cfg.BBR
		sockCfg = &cp
	}
	return sockCfg
}

func newConnection(sock *udpconn.Conn, cfg *Config) (*Connection, error) {
	id, err := guuid.NewOrdered()
	if err != nil {
		return nil, fmt.Errorf("connection: generate identity: %w", err)
	}

	c := &Connection{
		id:           id,
		state:        StateConnecting,
		sock:         sock,
		network:      engine.Network(sock),
		config:       cfg,
		out:          newOutbox(sendQueueDepth),
		closeSignal:  make(chan struct{}),
		lastActivity: time.Now(),
	}

	if cfg.FECEnabled {
		fecCfg := &fec.Config{DataShards: cfg.FECDataShards, ParityShards: cfg.FECParityShards}
		enc, err := fec.NewEncoder(fecCfg)
		if err != nil {
			return nil, fmt.Errorf("connection: fec encoder: %w", err)
		}
		dec, err := fec.NewDecoder(fecCfg)
		if err != nil {
			return nil, fmt.Errorf("connection: fec decoder: %w", err)
		}
		c.fecEnabled = true
		c.fecEncoder = enc
		c.fecDecoder = dec
		c.network = &fecNetwork{sock: sock, enc: enc}
	}

	return c, nil
}

func (c *Connection) markEstablished() {
	c.mu.Lock()
	c.state = StateEstablished
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func randomSeq() (seqnum.Num, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("connection: generate initial sequence number: %w", err)
	}
	return seqnum.Num(binary.BigEndian.Uint16(buf[:])), nil
}

func (c *Connection) start() {
	c.wg.Add(4)
	go c.sendLoop()
	go c.recvLoop()
	go c.reliabilityLoop()
	go c.keepaliveLoop()
}

// sendLoop fills the outbound window from the application write queue.
func (c *Connection) sendLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(sendTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeSignal:
			return
		case <-ticker.C:
			if c.State() != StateEstablished {
				continue
			}
			c.engMu.Lock()
			events, err := c.eng.FillWindow(c.out, c.network, c.clock)
			c.engMu.Unlock()
			if err != nil {
				continue
			}
			if hasSentData(events) {
				c.publishDebugEvent(wsdebug.EventPacketSent, 0, 0, 0, "")
			}
		}
	}
}

// recvLoop reads and applies inbound packets.
func (c *Connection) recvLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeSignal:
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), recvReadTimeout)
			pkt, _, err := c.sock.ReceivePacket(ctx)
			cancel()
			if err != nil {
				continue
			}
			c.handleInbound(pkt)
		}
	}
}

func (c *Connection) handleInbound(pkt *wire.Packet) {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.publishDebugEvent(wsdebug.EventPacketReceived, pkt.Header.SeqNr, pkt.Header.AckNr, len(pkt.Payload), pkt.Header.Type.String())

	if c.fecEnabled {
		if ext, ok := pkt.Header.FindExtension(wire.ExtensionFEC); ok {
			desc, err := fec.DecodeExtension(ext)
			if err == nil {
				c.applyFECShard(desc, pkt.Payload)
				if desc.IsParity {
					// Parity shards are out-of-band redundancy, never part
					// of the ordered stream.
					return
				}
			}
		}
	}

	c.applyInboundPacket(pkt)
}

func (c *Connection) applyInboundPacket(pkt *wire.Packet) {
	c.engMu.Lock()
	events, newPktWindow, err := c.eng.HandlePacket(pkt, c.pktWindow, c.network)
	if err == nil {
		c.pktWindow = newPktWindow
	}
	c.engMu.Unlock()
	if err != nil {
		return
	}
	c.processEvents(events)
}

func (c *Connection) applyFECShard(desc fec.ShardDescriptor, payload []byte) {
	recovered, err := c.fecDecoder.AddShard(desc.GroupID, desc.ShardIndex, payload, desc.IsParity)
	if err != nil {
		c.mu.Lock()
		c.stats.FECFailed++
		c.mu.Unlock()
		c.publishDebugEvent(wsdebug.EventFECFailed, desc.SeqNr, 0, 0, err.Error())
		return
	}
	if recovered == nil {
		return
	}
	c.mu.Lock()
	c.stats.FECRecovered++
	c.mu.Unlock()
	c.publishDebugEvent(wsdebug.EventFECRecovered, desc.SeqNr, 0, len(recovered), "")

	c.engMu.Lock()
	ackNr := uint16(c.eng.NextExpectedSeqNo().Add(-1))
	c.engMu.Unlock()

	for i, shard := range recovered {
		synthetic := &wire.Packet{
			Header: wire.Header{
				Type:  wire.TypeData,
				SeqNr: uint16(desc.SeqNr) + uint16(i),
				AckNr: ackNr,
			},
			Payload: shard,
		}
		c.applyInboundPacket(synthetic)
	}
}

func hasSentData(events []engine.Event) bool {
	for _, ev := range events {
		if ev.Kind == engine.EventSentData {
			return true
		}
	}
	return false
}

func (c *Connection) processEvents(events []engine.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventGotFin:
			c.mu.Lock()
			c.gotFinObserved = true
			c.mu.Unlock()
			c.publishDebugEvent(wsdebug.EventStateChange, 0, 0, 0, "got_fin")
		case engine.EventFinSentAcked:
			c.mu.Lock()
			c.finSentAcked = true
			c.mu.Unlock()
			c.publishDebugEvent(wsdebug.EventStateChange, 0, 0, 0, "fin_sent_acked")
		case engine.EventSendAck:
			c.engMu.Lock()
			_ = c.eng.SendState(c.network, c.clock)
			c.engMu.Unlock()
			c.publishDebugEvent(wsdebug.EventAck, 0, 0, 0, "")
		case engine.EventAcked:
			c.onAcked(ev.Acked)
		}
	}
	c.maybeFinalizeClose()
}

func (c *Connection) onAcked(acked []engine.WrappedPacket) {
	controller := c.congestionController()
	if controller == nil {
		return
	}
	rttSamples := engine.ExtractRTT(acked)
	payloadBytes := engine.ExtractPayloadSize(acked)

	now := time.Now()
	var rtts []time.Duration
	for _, sendTimeMicros := range rttSamples {
		rtt := now.Sub(time.UnixMicro(sendTimeMicros))
		if rtt > 0 {
			rtts = append(rtts, rtt)
		}
	}
	controller.OnAcked(payloadBytes, rtts, now)
}

func (c *Connection) congestionController() *bbr.BBR {
	switch nw := c.network.(type) {
	case *udpconn.Conn:
		return nw.Congestion()
	case *fecNetwork:
		return nw.Congestion()
	default:
		return nil
	}
}

func (c *Connection) maybeFinalizeClose() {
	c.mu.RLock()
	finSentAcked := c.finSentAcked
	gotFinObserved := c.gotFinObserved
	c.mu.RUnlock()

	c.engMu.Lock()
	shouldClose := c.eng.MaybeClose(finSentAcked, gotFinObserved)
	c.engMu.Unlock()
	if shouldClose {
		c.mu.Lock()
		c.state = StateClosed
		span := c.closeSpan
		c.closeSpan = nil
		c.mu.Unlock()
		if span != nil {
			span.End()
		}
		c.publishDebugEvent(wsdebug.EventStateChange, 0, 0, 0, "closed")
		c.triggerClose()
	}
}

// reliabilityLoop drives retransmission off an RTO derived from the
// congestion controller's current RTT estimate (§4.5).
func (c *Connection) reliabilityLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(reliabilityTick)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-c.closeSignal:
			return
		case <-ticker.C:
			ticks++
			if c.State() == StateClosed {
				return
			}
			c.checkRTO()
			c.checkIdleTimeout()
			if c.fecEnabled && ticks%50 == 0 {
				c.fecDecoder.CleanupOldGroups(fecGroupRetention)
			}
		}
	}
}

func (c *Connection) checkRTO() {
	c.engMu.Lock()
	sendTimeMicros, ok := c.eng.OldestUnackedSendTime()
	c.engMu.Unlock()
	if !ok {
		return
	}
	age := time.Since(time.UnixMicro(sendTimeMicros))
	if age < c.currentRTO() {
		return
	}
	c.engMu.Lock()
	err := c.eng.RetransmitOldest(c.network)
	c.engMu.Unlock()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.stats.Retransmissions++
	c.mu.Unlock()
	c.publishDebugEvent(wsdebug.EventRetransmit, 0, 0, 0, "")
}

func (c *Connection) currentRTO() time.Duration {
	rto := c.config.MinRTO
	if controller := c.congestionController(); controller != nil {
		if sample := 2 * controller.RTT(); sample > rto {
			rto = sample
		}
	}
	if rto > c.config.MaxRTO {
		rto = c.config.MaxRTO
	}
	return rto
}

func (c *Connection) checkIdleTimeout() {
	c.mu.RLock()
	idle := time.Since(c.lastActivity)
	c.mu.RUnlock()
	if idle > c.config.IdleTimeout {
		c.triggerClose()
	}
}

// keepaliveLoop sends a bare STATE packet on an otherwise idle connection.
func (c *Connection) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeSignal:
			return
		case <-ticker.C:
			if c.State() == StateEstablished {
				c.engMu.Lock()
				_ = c.eng.SendState(c.network, c.clock)
				c.engMu.Unlock()
			}
		}
	}
}

// Send queues data for transmission. It blocks only if the outbox is at
// capacity.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	if c.State() != StateEstablished {
		return fmt.Errorf("connection: not established")
	}
	return c.out.push(ctx, data)
}

// Receive returns up to len(buf) bytes (draining_receive, §4.8). When
// nothing is buffered it waits up to recvReadTimeout and then returns
// (0, nil), or returns an error if the connection closes in the meantime.
func (c *Connection) Receive(buf []byte) (int, error) {
	c.engMu.Lock()
	outcome, data := c.eng.DrainingReceive(len(buf))
	c.engMu.Unlock()
	if outcome != engine.ReadEmpty {
		copy(buf, data)
		return len(data), nil
	}
	select {
	case <-c.closeSignal:
		return 0, fmt.Errorf("connection: closed")
	case <-time.After(recvReadTimeout):
		return 0, nil
	}
}

// Close sends a FIN and begins the close handshake. It does not block for
// the handshake to complete; see State() to observe StateClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	if c.tracer != nil {
		_, span := c.tracer.StartClose(context.Background(), c.id.String())
		c.mu.Lock()
		c.closeSpan = span
		c.mu.Unlock()
	}

	c.engMu.Lock()
	_, err := c.eng.SendFin(c.network, c.clock)
	c.engMu.Unlock()
	if err != nil {
		return fmt.Errorf("connection: send fin: %w", err)
	}
	return nil
}

// triggerClose signals all four loops to stop. It must never block waiting
// for them: it is routinely called from inside one of those loops (e.g.
// recvLoop observing fin_sent_acked), and waiting on c.wg here would be
// that same loop waiting on its own exit.
func (c *Connection) triggerClose() {
	c.closeOnce.Do(func() {
		close(c.closeSignal)
		go func() {
			c.wg.Wait()
			c.sock.Close()
		}()
	})
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ID returns the connection's tracing/stats identity.
func (c *Connection) ID() guuid.GUUID { return c.id }

// Statistics returns connection-level counters.
func (c *Connection) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Congestion exposes the embedded BBR controller for
// internal/observability/metrics.
func (c *Connection) Congestion() *bbr.BBR {
	return c.congestionController()
}

// Engine exposes the underlying buffer engine for read-only inspection
// (internal/observability/metrics, internal/control/statshttp).
func (c *Connection) Engine() *engine.Buffer {
	return c.eng
}

// Sample implements internal/observability/metrics's sampler interface: a
// cumulative, point-in-time read of this connection's engine, socket, and
// congestion-controller state.
func (c *Connection) Sample() metrics.ConnSample {
	c.engMu.Lock()
	advertisedWindow := c.eng.AdvertisedWindow()
	inflightBytes := c.eng.InflightBytes()
	retransmitQueueLen := c.eng.RetransmissionQueueLen()
	reorderBufferLen := c.eng.ReorderBufferLen()
	c.engMu.Unlock()

	c.mu.RLock()
	stats := c.stats
	c.mu.RUnlock()

	sockStats := c.sock.Statistics()

	sample := metrics.ConnSample{
		AdvertisedWindow: advertisedWindow,
		InflightBytes:    inflightBytes,
		RetransmitQueue:  retransmitQueueLen,
		ReorderBuffer:    reorderBufferLen,
		PacketsSent:      sockStats.PacketsSent,
		PacketsReceived:  sockStats.PacketsReceived,
		BytesSent:        sockStats.BytesSent,
		BytesReceived:    sockStats.BytesReceived,
		SocketErrors:     sockStats.Errors,
		Retransmissions:  stats.Retransmissions,
		FECRecovered:     stats.FECRecovered,
		FECFailed:        stats.FECFailed,
	}

	if controller := c.congestionController(); controller != nil {
		snap := controller.Stats()
		sample.RTT = time.Duration(snap.RTTMicros) * time.Microsecond
		sample.BandwidthBps = snap.BtlBwBps
		sample.PacingRateBps = snap.PacingRate
		sample.CongestionState = bbrStateOrdinal(snap.State)
	}
	return sample
}

// bbrStateOrdinal maps a BBR state's string label back to the small-integer
// encoding internal/observability/metrics.Metrics.CongestionState exports,
// since Snapshot only carries the human-readable name.
func bbrStateOrdinal(state string) int {
	switch state {
	case "STARTUP":
		return 0
	case "DRAIN":
		return 1
	case "PROBE_BW":
		return 2
	case "PROBE_RTT":
		return 3
	default:
		return -1
	}
}
