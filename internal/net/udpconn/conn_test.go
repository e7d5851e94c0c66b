package udpconn

import (
	"context"
	"testing"
	"time"

	"github.com/packetloom/utp/internal/wire"
)

func TestDialListenSendReceiveRoundTrip(t *testing.T) {
	listener, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	dialer, err := Dial(listener.udpConn.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialer.Close()

	pkt := &wire.Packet{
		Header: wire.Header{
			Type:    wire.TypeData,
			ConnID:  7,
			SeqNr:   1,
			AckNr:   0,
			WndSize: 4096,
		},
		Payload: []byte("hello"),
	}

	if _, err := dialer.SendPacket(4096, pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, addr, err := listener.ReceivePacket(ctx)
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if addr == nil {
		t.Fatal("expected a non-nil sender address")
	}
	if got.Header.ConnID != 7 || got.Header.SeqNr != 1 {
		t.Errorf("received header = %+v, want ConnID=7 SeqNr=1", got.Header)
	}
	if string(got.Payload) != "hello" {
		t.Errorf("received payload = %q, want %q", got.Payload, "hello")
	}

	stats := dialer.Statistics()
	if stats.PacketsSent != 1 {
		t.Errorf("PacketsSent = %d, want 1", stats.PacketsSent)
	}
}

func TestMaxWindowSendAndHandleWindowSizeDelegateToBBR(t *testing.T) {
	conn, err := Dial("127.0.0.1:1", nil)
	if err == nil {
		defer conn.Close()
	}
	if err != nil {
		t.Skip("loopback dial unavailable in this sandbox")
	}

	if conn.MaxWindowSend() == 0 {
		t.Error("MaxWindowSend should be non-zero with default BBR config")
	}
	if got := conn.HandleWindowSize(5000, 2000); got != 2000 {
		t.Errorf("HandleWindowSize(5000, 2000) = %d, want 2000", got)
	}
}

func TestClockNowMicrosIsMonotonicNonDecreasing(t *testing.T) {
	var c Clock
	a := c.NowMicros()
	time.Sleep(time.Millisecond)
	b := c.NowMicros()
	if b < a {
		t.Errorf("NowMicros went backwards: %d then %d", a, b)
	}
}
