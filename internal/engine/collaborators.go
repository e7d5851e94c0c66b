package engine

import "github.com/packetloom/utp/internal/wire"

// Network is the engine's only outbound collaborator. Implementations own
// the UDP socket (or a fake, in tests) and the congestion controller; the
// engine never constructs one itself (Design Notes §9).
type Network interface {
	// SendPacket transmits pkt, advertising the given window, and returns
	// the monotonic microsecond timestamp the send happened at.
	SendPacket(advertisedWindow uint32, pkt *wire.Packet) (sendTimeMicros int64, err error)

	// MaxWindowSend returns the current congestion-controlled send window
	// in bytes. Congestion control itself is out of scope for the engine.
	MaxWindowSend() uint32

	// HandleWindowSize lets the congestion controller observe the peer's
	// advertised window and returns the (possibly updated) pktWindow value
	// the caller should carry forward to the next call.
	HandleWindowSize(pktWindow uint32, peerWndSize uint32) uint32
}

// FillOutcome is the result tag of one ProcessQueue.Fill call.
type FillOutcome int

const (
	// FillZero: no data is waiting from the writer.
	FillZero FillOutcome = iota
	// FillFilled: exactly the requested number of bytes were produced.
	FillFilled
	// FillPartial: fewer bytes than requested were produced; the writer is
	// exhausted for now.
	FillPartial
)

// ProcessQueue is the engine's upstream write-side collaborator.
type ProcessQueue interface {
	// Fill asks for up to n bytes of outbound payload.
	Fill(n int) (FillOutcome, []byte)
}

// Timing is the engine's monotonic microsecond clock collaborator (§2):
// read-only, used to stamp the wire header's one-way-delay fields.
type Timing interface {
	NowMicros() int64
}
