package engine

import (
	"github.com/packetloom/utp/internal/seqnum"
	"github.com/packetloom/utp/internal/wire"
)

// WrappedPacket is a retransmission record: a sent packet plus the
// bookkeeping needed to retransmit and RTT-sample it correctly.
type WrappedPacket struct {
	Packet        *wire.Packet
	Transmissions uint32 // send attempts, starts at 1
	SendTime      int64  // micros, timestamp of latest send
	NeedResend    bool
}

// retransmissionQueue holds WrappedPackets awaiting ACK, keyed by seq_no.
type retransmissionQueue struct {
	packets map[seqnum.Num]*WrappedPacket
}

func newRetransmissionQueue() *retransmissionQueue {
	return &retransmissionQueue{packets: make(map[seqnum.Num]*WrappedPacket)}
}

func (q *retransmissionQueue) add(seq seqnum.Num, wp *WrappedPacket) {
	q.packets[seq] = wp
}

func (q *retransmissionQueue) len() int {
	return len(q.packets)
}

func (q *retransmissionQueue) inflightBytes() uint32 {
	var n uint32
	for _, wp := range q.packets {
		n += uint32(len(wp.Packet.Payload))
	}
	return n
}

// oldest returns the packet with the smallest sequence number under the
// modular "older" ordering (order_packets, §4.5), via a linear scan — the
// spec's own correctness baseline for retransmit_packet.
func (q *retransmissionQueue) oldest() (seqnum.Num, *WrappedPacket, bool) {
	var bestSeq seqnum.Num
	var best *WrappedPacket
	found := false
	for seq, wp := range q.packets {
		if !found || seqnum.Less(seq, bestSeq) {
			bestSeq, best, found = seq, wp, true
		}
	}
	return bestSeq, best, found
}

// prune removes every WrappedPacket ACKed by update_send_buffer's §4.4
// rule and returns them (in no particular order — the caller only needs
// the set for RTT/payload accounting).
func (q *retransmissionQueue) prune(windowStart seqnum.Num, acksAhead uint16) []WrappedPacket {
	var out []WrappedPacket
	for seq, wp := range q.packets {
		if seqnum.Dist(seq, windowStart) <= acksAhead {
			out = append(out, *wp)
			delete(q.packets, seq)
		}
	}
	return out
}

// updateSendBuffer implements §4.4: ack_no against the retransmission
// queue. lastSent is bit16(seq_no - 1), the most recently assigned
// outbound sequence number.
func (b *Buffer) updateSendBuffer(ackNo seqnum.Num) []Event {
	lastSent := b.seqNo.Add(-1)
	windowSize := b.rtx.len()
	windowStart := lastSent.Add(-int32(windowSize))

	acksAhead := seqnum.Dist(ackNo, windowStart)
	if acksAhead > uint16(windowSize) {
		return []Event{oldAck()}
	}

	ackedPkts := b.rtx.prune(windowStart, acksAhead)

	var events []Event
	sawFin := false
	for _, wp := range ackedPkts {
		if wp.Packet.Header.Type == wire.TypeFin {
			sawFin = true
		}
	}
	if len(ackedPkts) > 0 {
		events = append(events, acked(ackedPkts))
	}
	if sawFin {
		events = append(events, finSentAcked())
	}
	if b.rtx.len() > 0 {
		events = append(events, dataInflight())
	} else if len(ackedPkts) > 0 {
		events = append(events, allAcked())
	}
	return events
}

// oldestSendTime reports the send_time (micros) of the packet
// retransmit_packet would pick next, for the owning connection task's
// RTO-driven timer (§4.5: "retransmission is driven by an external timer").
func (q *retransmissionQueue) oldestSendTime() (int64, bool) {
	_, wp, ok := q.oldest()
	if !ok {
		return 0, false
	}
	return wp.SendTime, true
}

// retransmitPacket resends the oldest unacked packet (§4.5).
func (b *Buffer) retransmitPacket(net Network) error {
	seq, wp, ok := b.rtx.oldest()
	if !ok {
		return nil
	}
	sendTime, err := net.SendPacket(b.advertisedWindow(), wp.Packet)
	if err != nil {
		return err
	}
	wp.Transmissions++
	wp.SendTime = sendTime
	wp.NeedResend = false
	b.rtx.add(seq, wp)
	return nil
}

// extractRTT implements §4.7's Karn's-algorithm RTT sampling: only
// first-transmission packets contribute.
func extractRTT(pkts []WrappedPacket) []int64 {
	var out []int64
	for _, p := range pkts {
		if p.Transmissions == 1 {
			out = append(out, p.SendTime)
		}
	}
	return out
}

// extractPayloadSize sums payload bytes across a list of WrappedPacket.
func extractPayloadSize(pkts []WrappedPacket) int {
	var n int
	for _, p := range pkts {
		n += len(p.Packet.Payload)
	}
	return n
}
