package engine

import "github.com/packetloom/utp/internal/seqnum"

// ingestResult tags what happened when a single inbound (seq, payload) was
// applied to the receive side.
type ingestResult int

const (
	ingestNoop ingestResult = iota
	ingestEnqueued
	ingestBuffered
	ingestDuplicate
)

// ReorderBufferMax bounds the reorder buffer (§3) and doubles as the
// "far in future" validate_seq_no gate (§9 open question: one constant).
const ReorderBufferMax = 511

// validateSeqNo implements §4.2's validate_seq_no. isNoData is true when
// the packet is purely an ACK/STATE carrier or a duplicate of the last
// consumed sequence number.
func validateSeqNo(seqNo, nextExpected seqnum.Num) (diff uint16, isNoData bool, err error) {
	dm1 := seqnum.Dist(seqNo, nextExpected.Add(-1))
	if dm1 == 0 {
		return 0, true, nil
	}
	d := seqnum.Dist(seqNo, nextExpected)
	if d >= ReorderBufferMax {
		return 0, false, ErrFarInFuture
	}
	return d, false, nil
}

// ingestPayload applies the receive-buffer update rules (§4.2) for one
// inbound (seqNo, payload) pair. A FIN's own arrival only fixes fin_state
// (done by the caller before validate_seq_no runs); whether got_fin is
// actually surfaced is decided afterwards by checkFinConsumption, since the
// FIN's sequence number may still be ahead of next_expected when it arrives
// (invariant 6: any payload at that sequence number is delivered first), or
// may land exactly at next_expected (the common, loss-free close), in which
// case checkFinConsumption must still be the one to advance next_expected
// and report got_fin, so this leaves that slot untouched for it.
func (b *Buffer) ingestPayload(seqNo seqnum.Num, payload []byte) ingestResult {
	if seqNo == b.nextExpected {
		if len(payload) == 0 && b.finState.got && !b.finState.consumed && b.finState.seq == seqNo {
			return ingestNoop
		}
		if len(payload) > 0 && b.state == StateConnected {
			b.enqueueRecv(payload)
		}
		b.nextExpected = b.nextExpected.Add(1)
		b.drainReorderBuffer()
		return ingestEnqueued
	}

	if len(payload) == 0 {
		return ingestNoop
	}

	if _, exists := b.reorder[seqNo]; exists {
		return ingestDuplicate
	}
	b.reorder[seqNo] = payload
	return ingestBuffered
}

// drainReorderBuffer moves contiguous entries starting at nextExpected
// into recv_buf, maintaining invariant 2 (no entry keyed nextExpected).
func (b *Buffer) drainReorderBuffer() {
	for {
		payload, ok := b.reorder[b.nextExpected]
		if !ok {
			return
		}
		delete(b.reorder, b.nextExpected)
		if b.state == StateConnected {
			b.enqueueRecv(payload)
		}
		b.nextExpected = b.nextExpected.Add(1)
	}
}

// checkFinConsumption fires got_fin once next_expected has caught up to a
// previously-observed FIN's sequence number, consuming that slot exactly
// once. It must run after every ingest, since the catching-up packet is
// ordinary DATA, not the FIN itself (§8 boundary scenario: "FIN delivery
// order").
func (b *Buffer) checkFinConsumption() bool {
	if !b.finState.got || b.finState.consumed {
		return false
	}
	if b.nextExpected != b.finState.seq {
		return false
	}
	b.nextExpected = b.nextExpected.Add(1)
	b.finState.consumed = true
	return true
}

func (b *Buffer) enqueueRecv(payload []byte) {
	b.recvBuf = append(b.recvBuf, payload)
	b.recvBufBytes += uint32(len(payload))
}

// advertisedWindow implements §4.6.
func (b *Buffer) advertisedWindow() uint32 {
	if b.recvBufBytes >= b.optRecvBufSz {
		return 0
	}
	return b.optRecvBufSz - b.recvBufBytes
}

// ViewZeroWindowReopen implements §4.6's silly-window-avoidance trigger.
func ViewZeroWindowReopen(oldWindow, newWindow uint32) bool {
	return oldWindow == 0 && newWindow > 1000
}
