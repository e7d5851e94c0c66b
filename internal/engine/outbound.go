package engine

import (
	"github.com/packetloom/utp/internal/wire"
)

// stampTimestamps fills the one-way-delay fields (§6 wire format): the
// sender's own clock reading, and the difference against the last peer
// timestamp this side observed (zero until a packet has been received).
func (b *Buffer) stampTimestamps(timing Timing) (now, diff uint32) {
	now = uint32(timing.NowMicros())
	if b.lastPeerTimestamp == 0 {
		return now, 0
	}
	return now, now - b.lastPeerTimestamp
}

// sendPacket implements the "Assigning sequence numbers" rule (§4.3) for
// DATA and FIN packets: it consumes seq_no, acks next_expected-1, and
// enters the packet into the retransmission queue.
func (b *Buffer) sendPacket(typ wire.Type, payload []byte, net Network, timing Timing) error {
	seq := b.seqNo
	now, diff := b.stampTimestamps(timing)
	pkt := &wire.Packet{
		Header: wire.Header{
			Type:                typ,
			SeqNr:               uint16(seq),
			AckNr:               uint16(b.nextExpected.Add(-1)),
			WndSize:             b.advertisedWindow(),
			TimestampMicros:     now,
			TimestampDiffMicros: diff,
		},
		Payload: payload,
	}

	sendTime, err := net.SendPacket(b.advertisedWindow(), pkt)
	if err != nil {
		return err
	}

	b.rtx.add(seq, &WrappedPacket{
		Packet:        pkt,
		Transmissions: 1,
		SendTime:      sendTime,
	})
	b.seqNo = b.seqNo.Add(1)
	return nil
}

// sendState implements the STATE-packet construction rule: a pure-ACK
// packet uses bit16(seq_no-1) as its own seq_no field and never enters the
// retransmission queue (§9 open question, locked in).
func (b *Buffer) sendState(net Network, timing Timing) error {
	now, diff := b.stampTimestamps(timing)
	pkt := &wire.Packet{
		Header: wire.Header{
			Type:                wire.TypeState,
			SeqNr:               uint16(b.seqNo.Add(-1)),
			AckNr:               uint16(b.nextExpected.Add(-1)),
			WndSize:             b.advertisedWindow(),
			TimestampMicros:     now,
			TimestampDiffMicros: diff,
		},
	}
	_, err := net.SendPacket(b.advertisedWindow(), pkt)
	return err
}

// SendState transmits a standalone ACK packet. Exported so the owning
// connection task can drive the delayed-ACK scheduler described in §4.2.
func (b *Buffer) SendState(net Network, timing Timing) error {
	return b.sendState(net, timing)
}

// FillWindow implements §4.3's window-filling algorithm.
func (b *Buffer) FillWindow(pq ProcessQueue, net Network, timing Timing) ([]Event, error) {
	maxWindow := net.MaxWindowSend()
	inflight := b.rtx.inflightBytes()

	var free uint32
	if b.rtx.len() == 0 {
		free = maxWindow
	} else if maxWindow > inflight {
		free = maxWindow - inflight
	} else {
		free = 0
	}

	var chunks [][]byte
	var filled uint32
	maxedOut := false

fillLoop:
	for free > filled {
		toFill := b.pktSize
		if remaining := free - filled; remaining < toFill {
			toFill = remaining
		}
		if toFill == 0 {
			break
		}

		outcome, data := pq.Fill(int(toFill))
		switch outcome {
		case FillZero:
			break fillLoop
		case FillFilled:
			chunks = append(chunks, data)
			filled += uint32(len(data))
			if filled >= free {
				maxedOut = true
			}
		case FillPartial:
			chunks = append(chunks, data)
			filled += uint32(len(data))
			break fillLoop
		}
	}

	var events []Event
	if len(chunks) == 0 {
		events = append(events, noPiggyback())
		return events, nil
	}

	for _, payload := range chunks {
		if err := b.sendPacket(wire.TypeData, payload, net, timing); err != nil {
			return events, err
		}
	}
	events = append(events, sentData())
	if maxedOut {
		events = append(events, windowMaxedOut())
	}
	return events, nil
}

// RetransmitOldest implements §4.5: resend the oldest unacked packet.
func (b *Buffer) RetransmitOldest(net Network) error {
	return b.retransmitPacket(net)
}

// ExtractRTT and ExtractPayloadSize expose §4.7's controller hooks.
func ExtractRTT(pkts []WrappedPacket) []int64     { return extractRTT(pkts) }
func ExtractPayloadSize(pkts []WrappedPacket) int { return extractPayloadSize(pkts) }
