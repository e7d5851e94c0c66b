package engine

import (
	"testing"

	"github.com/packetloom/utp/internal/seqnum"
	"github.com/packetloom/utp/internal/wire"
)

func hasEvent(events []Event, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func dataPacket(seq, ack uint16, payload string) *wire.Packet {
	return &wire.Packet{
		Header: wire.Header{
			Type:  wire.TypeData,
			SeqNr: seq,
			AckNr: ack,
		},
		Payload: []byte(payload),
	}
}

func TestHandlePacketInOrderEnqueuesAndAcks(t *testing.T) {
	b := New(Config{InitialNextExpected: 10, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	events, _, err := b.HandlePacket(dataPacket(10, 0, "A"), 0, net)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if !hasEvent(events, EventSendAck) {
		t.Errorf("expected send_ack event, got %+v", events)
	}
	if b.NextExpectedSeqNo() != 11 {
		t.Errorf("next_expected = %d, want 11", b.NextExpectedSeqNo())
	}
	chunk, ok := b.BufferDequeue()
	if !ok || string(chunk) != "A" {
		t.Errorf("recv_buf head = %q, %v, want \"A\", true", chunk, ok)
	}
}

func TestHandlePacketReorderThenDrain(t *testing.T) {
	b := New(Config{InitialNextExpected: 10, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	if _, _, err := b.HandlePacket(dataPacket(12, 0, "C"), 0, net); err != nil {
		t.Fatalf("seq 12: %v", err)
	}
	if b.ReorderBufferLen() != 1 {
		t.Errorf("reorder_buf len = %d, want 1", b.ReorderBufferLen())
	}
	if _, _, err := b.HandlePacket(dataPacket(11, 0, "B"), 0, net); err != nil {
		t.Fatalf("seq 11: %v", err)
	}
	if _, _, err := b.HandlePacket(dataPacket(10, 0, "A"), 0, net); err != nil {
		t.Fatalf("seq 10: %v", err)
	}

	if b.NextExpectedSeqNo() != 13 {
		t.Errorf("next_expected = %d, want 13", b.NextExpectedSeqNo())
	}
	if b.ReorderBufferLen() != 0 {
		t.Errorf("reorder_buf should be empty, got %d", b.ReorderBufferLen())
	}
	for _, want := range []string{"A", "B", "C"} {
		chunk, ok := b.BufferDequeue()
		if !ok || string(chunk) != want {
			t.Fatalf("dequeue = %q, %v, want %q, true", chunk, ok, want)
		}
	}
}

func TestHandlePacketFarInFutureRejected(t *testing.T) {
	b := New(Config{InitialNextExpected: 100, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	before := b.NextExpectedSeqNo()
	_, _, err := b.HandlePacket(dataPacket(700, 0, "x"), 0, net)
	if err != ErrFarInFuture {
		t.Fatalf("err = %v, want ErrFarInFuture", err)
	}
	if b.NextExpectedSeqNo() != before {
		t.Errorf("next_expected changed on rejection: %d -> %d", before, b.NextExpectedSeqNo())
	}
	if b.ReorderBufferLen() != 0 {
		t.Errorf("reorder_buf should stay empty on rejection, got %d", b.ReorderBufferLen())
	}
}

func TestHandlePacketDuplicateForcesAckAndIsDropped(t *testing.T) {
	b := New(Config{InitialNextExpected: 10, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	if _, _, err := b.HandlePacket(dataPacket(12, 0, "C"), 0, net); err != nil {
		t.Fatalf("seq 12: %v", err)
	}
	events, _, err := b.HandlePacket(dataPacket(12, 0, "C-dup"), 0, net)
	if err != nil {
		t.Fatalf("dup seq 12: %v", err)
	}
	if !hasEvent(events, EventSendAck) {
		t.Errorf("duplicate arrival should force an ack, got %+v", events)
	}
	if got := string(b.reorder[seqnum.Num(12)]); got != "C" {
		t.Errorf("reorder_buf[12] overwritten by duplicate: %q", got)
	}
}

func TestHandlePacketFinDeliveryOrder(t *testing.T) {
	b := New(Config{InitialNextExpected: 50, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	finPkt := &wire.Packet{Header: wire.Header{Type: wire.TypeFin, SeqNr: 52}}
	if _, _, err := b.HandlePacket(finPkt, 0, net); err != nil {
		t.Fatalf("fin: %v", err)
	}

	if _, _, err := b.HandlePacket(dataPacket(50, 0, "X"), 0, net); err != nil {
		t.Fatalf("seq 50: %v", err)
	}
	events, _, err := b.HandlePacket(dataPacket(51, 0, "Y"), 0, net)
	if err != nil {
		t.Fatalf("seq 51: %v", err)
	}
	if !hasEvent(events, EventGotFin) {
		t.Errorf("expected got_fin once seq 51 arrives, got %+v", events)
	}
	if b.NextExpectedSeqNo() != 53 {
		t.Errorf("next_expected = %d, want 53", b.NextExpectedSeqNo())
	}

	for _, want := range []string{"X", "Y"} {
		chunk, ok := b.BufferDequeue()
		if !ok || string(chunk) != want {
			t.Fatalf("dequeue = %q, %v, want %q, true", chunk, ok, want)
		}
	}
}

func TestHandlePacketFinInOrderDelivery(t *testing.T) {
	b := New(Config{InitialNextExpected: 50, InitialSeqNo: 1})
	net := newFakeNetwork(10000)

	if _, _, err := b.HandlePacket(dataPacket(50, 0, "X"), 0, net); err != nil {
		t.Fatalf("seq 50: %v", err)
	}

	finPkt := &wire.Packet{Header: wire.Header{Type: wire.TypeFin, SeqNr: 51}}
	events, _, err := b.HandlePacket(finPkt, 0, net)
	if err != nil {
		t.Fatalf("fin: %v", err)
	}
	if !hasEvent(events, EventGotFin) {
		t.Errorf("expected got_fin when the fin arrives exactly at next_expected, got %+v", events)
	}
	if !hasEvent(events, EventSendAck) {
		t.Errorf("in-order fin should force an ack, got %+v", events)
	}
	if b.NextExpectedSeqNo() != 52 {
		t.Errorf("next_expected = %d, want 52", b.NextExpectedSeqNo())
	}

	chunk, ok := b.BufferDequeue()
	if !ok || string(chunk) != "X" {
		t.Fatalf("dequeue = %q, %v, want %q, true", chunk, ok, "X")
	}
}

func TestHandlePacketInvalidStateAfterClose(t *testing.T) {
	b := New(Config{})
	b.state = StateClosed
	_, _, err := b.HandlePacket(dataPacket(0, 0, "x"), 0, newFakeNetwork(1000))
	if err != ErrInvalidState {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestFinSentDiscardsPayloadButStillAcks(t *testing.T) {
	b := New(Config{InitialNextExpected: 10, InitialSeqNo: 1})
	net := newFakeNetwork(10000)
	b.state = StateFinSent

	events, _, err := b.HandlePacket(dataPacket(10, 0, "A"), 0, net)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if !hasEvent(events, EventSendAck) {
		t.Errorf("FinSent should still ack inbound data, got %+v", events)
	}
	if b.recvBufBytes != 0 {
		t.Errorf("FinSent should discard payload, recv_buf_bytes = %d", b.recvBufBytes)
	}
}

func TestSendFinTransitionsState(t *testing.T) {
	b := New(Config{})
	net := newFakeNetwork(10000)
	timing := &fakeTiming{}

	if _, err := b.SendFin(net, timing); err != nil {
		t.Fatalf("SendFin: %v", err)
	}
	if b.State() != StateFinSent {
		t.Errorf("state = %v, want FinSent", b.State())
	}
	if _, err := b.SendFin(net, timing); err != ErrInvalidState {
		t.Errorf("second SendFin err = %v, want ErrInvalidState", err)
	}
}

func TestMaybeCloseRequiresAllThreeConditions(t *testing.T) {
	b := New(Config{})
	b.state = StateFinSent

	if b.MaybeClose(false, true) {
		t.Errorf("should not close without fin_sent_acked")
	}
	if b.MaybeClose(true, false) {
		t.Errorf("should not close without got_fin observed")
	}
	b.rtx.add(1, &WrappedPacket{Packet: &wire.Packet{}})
	if b.MaybeClose(true, true) {
		t.Errorf("should not close with packets still in flight")
	}
	b.rtx = newRetransmissionQueue()
	if !b.MaybeClose(true, true) {
		t.Errorf("should close once all three conditions hold")
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}
