package engine

import (
	"testing"

	"github.com/packetloom/utp/internal/wire"
)

// TestZeroWindowReopen is boundary scenario 5 from §8.
func TestZeroWindowReopen(t *testing.T) {
	b := New(Config{OptRecvBufSz: 4096})
	b.recvBufBytes = 4096
	if got := b.AdvertisedWindow(); got != 0 {
		t.Fatalf("advertised_window = %d, want 0", got)
	}

	b.recvBufBytes = 4096 - 2000
	newWindow := b.AdvertisedWindow()
	if newWindow != 2000 {
		t.Fatalf("advertised_window after drain = %d, want 2000", newWindow)
	}
	if !ViewZeroWindowReopen(0, newWindow) {
		t.Errorf("view_zerowindow_reopen(0, 2000) should be true")
	}
	if ViewZeroWindowReopen(0, 500) {
		t.Errorf("view_zerowindow_reopen(0, 500) should be false (below 1000-byte threshold)")
	}
}

func TestFillWindowSendsQueuedChunks(t *testing.T) {
	b := New(Config{PktSize: 4})
	net := newFakeNetwork(1000)
	pq := &fakeProcessQueue{chunks: [][]byte{[]byte("abcdefgh")}}
	timing := &fakeTiming{}

	events, err := b.FillWindow(pq, net, timing)
	if err != nil {
		t.Fatalf("FillWindow: %v", err)
	}
	if !hasEvent(events, EventSentData) {
		t.Errorf("expected sent_data, got %+v", events)
	}
	if len(net.sent) != 2 {
		t.Fatalf("expected 2 pkt_size-capped packets, got %d", len(net.sent))
	}
	if string(net.sent[0].Payload) != "abcd" || string(net.sent[1].Payload) != "efgh" {
		t.Errorf("payload split wrong: %q, %q", net.sent[0].Payload, net.sent[1].Payload)
	}
	if b.rtx.len() != 2 {
		t.Errorf("both chunks should enter the retransmission queue, len = %d", b.rtx.len())
	}
}

func TestFillWindowNoPiggybackWhenQueueEmpty(t *testing.T) {
	b := New(Config{})
	net := newFakeNetwork(1000)
	pq := &fakeProcessQueue{}
	timing := &fakeTiming{}

	events, err := b.FillWindow(pq, net, timing)
	if err != nil {
		t.Fatalf("FillWindow: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventNoPiggyback {
		t.Fatalf("events = %+v, want exactly [no_piggyback]", events)
	}
}

func TestFillWindowMaxedOut(t *testing.T) {
	b := New(Config{PktSize: 100})
	net := newFakeNetwork(4)
	pq := &fakeProcessQueue{chunks: [][]byte{[]byte("abcd")}}
	timing := &fakeTiming{}

	events, err := b.FillWindow(pq, net, timing)
	if err != nil {
		t.Fatalf("FillWindow: %v", err)
	}
	if !hasEvent(events, EventWindowMaxedOut) {
		t.Errorf("expected window_maxed_out when the fill exactly fills free, got %+v", events)
	}
}

func TestSendPacketAssignsSeqAndAcksNextExpectedMinusOne(t *testing.T) {
	b := New(Config{InitialSeqNo: 7, InitialNextExpected: 20})
	net := newFakeNetwork(1000)
	timing := &fakeTiming{now: 555}

	if err := b.sendPacket(wire.TypeData, []byte("x"), net, timing); err != nil {
		t.Fatalf("sendPacket: %v", err)
	}
	pkt := net.sent[0]
	if pkt.Header.SeqNr != 7 {
		t.Errorf("seq_nr = %d, want 7", pkt.Header.SeqNr)
	}
	if pkt.Header.AckNr != 19 {
		t.Errorf("ack_nr = %d, want 19", pkt.Header.AckNr)
	}
	if b.SeqNo() != 8 {
		t.Errorf("seq_no after send = %d, want 8", b.SeqNo())
	}
	if pkt.Header.TimestampMicros != 555 {
		t.Errorf("timestamp_microseconds = %d, want 555", pkt.Header.TimestampMicros)
	}
}

func TestSendStateDoesNotConsumeSeqNoOrEnterRetransmissionQueue(t *testing.T) {
	b := New(Config{InitialSeqNo: 7, InitialNextExpected: 20})
	net := newFakeNetwork(1000)
	timing := &fakeTiming{}

	if err := b.SendState(net, timing); err != nil {
		t.Fatalf("SendState: %v", err)
	}
	pkt := net.sent[0]
	if pkt.Header.Type != wire.TypeState {
		t.Errorf("type = %v, want STATE", pkt.Header.Type)
	}
	if pkt.Header.SeqNr != 6 {
		t.Errorf("state seq_nr = %d, want bit16(seq_no-1) = 6", pkt.Header.SeqNr)
	}
	if b.SeqNo() != 7 {
		t.Errorf("SendState must not consume seq_no, got %d", b.SeqNo())
	}
	if b.rtx.len() != 0 {
		t.Errorf("STATE packets must never enter the retransmission queue, len = %d", b.rtx.len())
	}
}
