// Package engine implements the uTP reliable-stream buffer engine: the
// per-connection state machine that turns an unreliable, unordered
// datagram channel into an ordered, reliable, flow-controlled byte stream.
//
// The engine owns no goroutines and performs no I/O. Every exported method
// is a synchronous state transformation driven by the owning connection
// task (see internal/connection), and every method returns the set of
// Events the caller should act on (send an ACK, log an RTT sample, close
// the connection, ...) instead of doing that work itself.
package engine

import (
	"errors"

	"github.com/packetloom/utp/internal/seqnum"
	"github.com/packetloom/utp/internal/wire"
)

// State is the connection state as it is relevant to the buffer (§4.9).
type State int

const (
	StateConnected State = iota
	StateFinSent
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateFinSent:
		return "FIN_SENT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Errors surfaced by the engine (§7).
var (
	ErrInvalidState = errors.New("engine: packet received in a state that cannot accept it")
	ErrFarInFuture  = errors.New("engine: inbound sequence number too far ahead of next_expected")
)

const (
	// DefaultRecvBufSz is the default receive buffer capacity in bytes.
	DefaultRecvBufSz = 8192
	// DefaultPktSize is the default outbound payload cap (MSS-like).
	DefaultPktSize = 1000
)

type finState struct {
	got      bool
	seq      seqnum.Num
	consumed bool
}

// Config configures a new Buffer. Zero values fall back to spec defaults.
type Config struct {
	InitialSeqNo        seqnum.Num
	InitialNextExpected seqnum.Num
	OptRecvBufSz        uint32
	PktSize             uint32
}

// Buffer is the per-connection engine state (§3).
type Buffer struct {
	state State

	nextExpected seqnum.Num
	seqNo        seqnum.Num
	finState     finState

	optRecvBufSz uint32
	pktSize      uint32

	recvBuf      [][]byte
	recvBufBytes uint32

	reorder map[seqnum.Num][]byte

	rtx *retransmissionQueue

	// lastPeerTimestamp is the most recent inbound timestamp_microseconds
	// value, used to stamp outbound timestamp_difference_microseconds.
	lastPeerTimestamp uint32
}

// New creates a Buffer for a freshly established connection.
func New(cfg Config) *Buffer {
	optRecvBufSz := cfg.OptRecvBufSz
	if optRecvBufSz == 0 {
		optRecvBufSz = DefaultRecvBufSz
	}
	pktSize := cfg.PktSize
	if pktSize == 0 {
		pktSize = DefaultPktSize
	}
	return &Buffer{
		state:        StateConnected,
		nextExpected: cfg.InitialNextExpected,
		seqNo:        cfg.InitialSeqNo,
		optRecvBufSz: optRecvBufSz,
		pktSize:      pktSize,
		reorder:      make(map[seqnum.Num][]byte),
		rtx:          newRetransmissionQueue(),
	}
}

// State returns the current connection state as seen by the buffer.
func (b *Buffer) State() State { return b.state }

// NextExpectedSeqNo returns the next inbound sequence number expected.
func (b *Buffer) NextExpectedSeqNo() seqnum.Num { return b.nextExpected }

// SeqNo returns the next outbound sequence number to be assigned.
func (b *Buffer) SeqNo() seqnum.Num { return b.seqNo }

// AdvertisedWindow exposes §4.6 to callers building outbound headers.
func (b *Buffer) AdvertisedWindow() uint32 { return b.advertisedWindow() }

// InflightBytes returns the sum of unacknowledged payload bytes.
func (b *Buffer) InflightBytes() uint32 { return b.rtx.inflightBytes() }

// RetransmissionQueueLen returns the number of packets awaiting ACK.
func (b *Buffer) RetransmissionQueueLen() int { return b.rtx.len() }

// OldestUnackedSendTime returns the send_time (micros) of the packet the
// next RetransmitOldest call would resend, for an RTO timer to compare
// against the current time. ok is false when nothing is awaiting ACK.
func (b *Buffer) OldestUnackedSendTime() (sendTimeMicros int64, ok bool) {
	return b.rtx.oldestSendTime()
}

// ReorderBufferLen returns the number of out-of-order packets buffered.
func (b *Buffer) ReorderBufferLen() int { return len(b.reorder) }

// HandlePacket implements §4.2: the single entry point for inbound
// datagrams. pktWindow is the congestion controller's opaque peer-window
// state, threaded through HandleWindowSize.
func (b *Buffer) HandlePacket(pkt *wire.Packet, pktWindow uint32, net Network) ([]Event, uint32, error) {
	if b.state != StateConnected && b.state != StateFinSent {
		return nil, pktWindow, ErrInvalidState
	}

	b.lastPeerTimestamp = pkt.Header.TimestampMicros

	// 1. Type-specific state capture.
	if pkt.Header.Type == wire.TypeFin && !b.finState.got {
		b.finState = finState{got: true, seq: seqnum.Num(pkt.Header.SeqNr)}
	}

	// 2. Sequence validation.
	seqNo := seqnum.Num(pkt.Header.SeqNr)
	_, isNoData, err := validateSeqNo(seqNo, b.nextExpected)
	if err != nil {
		return nil, pktWindow, err
	}

	var events []Event
	forceAck := false

	// 3. Payload ingest.
	if !isNoData || len(pkt.Payload) > 0 {
		reorderLenBefore := len(b.reorder)
		nextExpectedBefore := b.nextExpected

		switch b.ingestPayload(seqNo, pkt.Payload) {
		case ingestDuplicate:
			forceAck = true
		case ingestEnqueued, ingestBuffered:
			if len(b.reorder) != reorderLenBefore || b.nextExpected != nextExpectedBefore {
				forceAck = true
			}
		}
	}

	// A previously-observed FIN may now be exactly at next_expected, either
	// because this packet was the FIN itself arriving in order, or because
	// this packet's payload just closed the gap in front of it.
	if b.checkFinConsumption() {
		events = append(events, gotFin())
		forceAck = true
	}

	if forceAck {
		events = append(events, sendAck())
	}

	// 4. ACK processing against the retransmission queue.
	ackEvents := b.updateSendBuffer(seqnum.Num(pkt.Header.AckNr))
	events = append(events, ackEvents...)

	// 5. Window-size handshake.
	newPktWindow := net.HandleWindowSize(pktWindow, pkt.Header.WndSize)

	return events, newPktWindow, nil
}

// SendFin transitions Connected -> FinSent and transmits a FIN packet right
// away, entering it into the retransmission queue like any DATA packet.
func (b *Buffer) SendFin(net Network, timing Timing) ([]Event, error) {
	if b.state != StateConnected {
		return nil, ErrInvalidState
	}
	b.state = StateFinSent
	if err := b.sendPacket(wire.TypeFin, nil, net, timing); err != nil {
		return nil, err
	}
	return nil, nil
}

// MaybeClose transitions FinSent -> Closed once both halves of the close
// handshake are observed (§4.9).
func (b *Buffer) MaybeClose(finSentAcked, gotFinObserved bool) bool {
	if b.state == StateFinSent && finSentAcked && gotFinObserved && b.rtx.len() == 0 {
		b.state = StateClosed
		return true
	}
	return false
}
