package engine

import "github.com/packetloom/utp/internal/wire"

// fakeNetwork is a deterministic Network double: it records every packet
// handed to SendPacket and hands out a caller-controlled send timestamp.
type fakeNetwork struct {
	sent      []*wire.Packet
	clock     int64
	maxWindow uint32
	handleWin func(pktWindow, peerWndSize uint32) uint32
}

func newFakeNetwork(maxWindow uint32) *fakeNetwork {
	return &fakeNetwork{maxWindow: maxWindow}
}

func (n *fakeNetwork) SendPacket(advertisedWindow uint32, pkt *wire.Packet) (int64, error) {
	n.sent = append(n.sent, pkt)
	n.clock++
	return n.clock, nil
}

func (n *fakeNetwork) MaxWindowSend() uint32 { return n.maxWindow }

func (n *fakeNetwork) HandleWindowSize(pktWindow uint32, peerWndSize uint32) uint32 {
	if n.handleWin != nil {
		return n.handleWin(pktWindow, peerWndSize)
	}
	return pktWindow
}

// fakeProcessQueue serves Fill calls from a queue of pre-loaded chunks.
type fakeProcessQueue struct {
	chunks [][]byte
}

func (q *fakeProcessQueue) Fill(n int) (FillOutcome, []byte) {
	if len(q.chunks) == 0 {
		return FillZero, nil
	}
	head := q.chunks[0]
	if len(head) > n {
		q.chunks[0] = head[n:]
		return FillFilled, head[:n]
	}
	q.chunks = q.chunks[1:]
	if len(head) == n {
		return FillFilled, head
	}
	return FillPartial, head
}

// fakeTiming is a manually-advanced microsecond clock.
type fakeTiming struct {
	now int64
}

func (t *fakeTiming) NowMicros() int64 { return t.now }
