// Package udpconn adapts a real UDP socket to the buffer engine's Network
// and Timing collaborator interfaces (SPEC_FULL §2, §11): it owns the
// socket, the BBR congestion controller, and the pacer, and is the only
// place in this module that performs network I/O.
package udpconn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/packetloom/utp/internal/congestion/bbr"
	"github.com/packetloom/utp/internal/net/pacer"
	"github.com/packetloom/utp/internal/wire"
)

const (
	// DefaultReadBufferSize sizes the kernel socket receive buffer.
	DefaultReadBufferSize = 2 * 1024 * 1024

	// DefaultWriteBufferSize sizes the kernel socket send buffer.
	DefaultWriteBufferSize = 2 * 1024 * 1024

	// maxDatagramSize bounds a single read: header plus the largest payload
	// plus room for an extension chain.
	maxDatagramSize = 65535
)

// Config configures a new Conn.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	BBR             *bbr.Config
	Pacer           *pacer.Config
}

// DefaultConfig returns the default socket configuration.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		Pacer:           pacer.DefaultConfig(),
	}
}

// Conn is a uTP socket: one UDP connection, one BBR controller, one pacer.
// It implements engine.Network; Clock (below) implements engine.Timing.
type Conn struct {
	udpConn    *net.UDPConn
	remoteAddr *net.UDPAddr

	congestion *bbr.BBR
	pace       *pacer.Pacer

	readBuf []byte

	mu     sync.RWMutex
	closed bool

	stats Statistics
}

// Statistics tracks socket-level counters for internal/observability/metrics.
type Statistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64
}

// Listen opens a UDP socket bound to address, ready to accept an inbound
// uTP handshake.
func Listen(address string, cfg *Config) (*Conn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udpconn: resolve %q: %w", address, err)
	}
	udpConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udpconn: listen: %w", err)
	}
	return newConn(udpConn, nil, cfg)
}

// Dial opens a UDP socket connected to address, ready to send a uTP SYN.
func Dial(address string, cfg *Config) (*Conn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udpconn: resolve %q: %w", address, err)
	}
	udpConn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udpconn: dial: %w", err)
	}
	return newConn(udpConn, addr, cfg)
}

func newConn(udpConn *net.UDPConn, remote *net.UDPAddr, cfg *Config) (*Conn, error) {
	if err := udpConn.SetReadBuffer(cfg.ReadBufferSize); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("udpconn: set read buffer: %w", err)
	}
	if err := udpConn.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("udpconn: set write buffer: %w", err)
	}
	congestion := bbr.New(cfg.BBR)
	return &Conn{
		udpConn:    udpConn,
		remoteAddr: remote,
		congestion: congestion,
		pace:       pacer.NewWithConfig(congestion.Stats().PacingRate, cfg.Pacer),
		readBuf:    make([]byte, maxDatagramSize),
	}, nil
}

// SendPacket implements engine.Network. It paces, marshals, and writes pkt,
// returning the send timestamp for the caller's retransmission-queue
// bookkeeping. The timestamp is wall-clock Unix microseconds
// (time.Now().UnixMicro()), so it is not monotonic across system clock
// adjustments.
func (c *Conn) SendPacket(advertisedWindow uint32, pkt *wire.Packet) (int64, error) {
	pkt.Header.WndSize = advertisedWindow

	data, err := wire.Marshal(pkt)
	if err != nil {
		c.recordError()
		return 0, fmt.Errorf("udpconn: marshal: %w", err)
	}

	c.pace.SetRate(c.congestion.Stats().PacingRate)
	if err := c.pace.Wait(context.Background(), len(data)); err != nil {
		return 0, fmt.Errorf("udpconn: pacer: %w", err)
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return 0, fmt.Errorf("udpconn: connection closed")
	}

	var n int
	if c.remoteAddr != nil {
		n, err = c.udpConn.WriteToUDP(data, c.remoteAddr)
	} else {
		n, err = c.udpConn.Write(data)
	}
	if err != nil {
		c.recordError()
		return 0, fmt.Errorf("udpconn: write: %w", err)
	}

	sendTime := time.Now()
	c.congestion.OnPacketSent(uint32(n))
	c.mu.Lock()
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(n)
	c.mu.Unlock()

	return sendTime.UnixMicro(), nil
}

// MaxWindowSend implements engine.Network.
func (c *Conn) MaxWindowSend() uint32 {
	return c.congestion.MaxWindowSend()
}

// HandleWindowSize implements engine.Network.
func (c *Conn) HandleWindowSize(pktWindow, peerWndSize uint32) uint32 {
	return c.congestion.HandleWindowSize(pktWindow, peerWndSize)
}

// Congestion exposes the embedded controller, e.g. to feed it
// engine.ExtractRTT/ExtractPayloadSize results after an ACK, or for
// internal/observability/metrics to read Stats().
func (c *Conn) Congestion() *bbr.BBR {
	return c.congestion
}

// ReceivePacket reads and parses the next inbound uTP datagram.
func (c *Conn) ReceivePacket(ctx context.Context) (*wire.Packet, net.Addr, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, nil, fmt.Errorf("udpconn: connection closed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.udpConn.SetReadDeadline(deadline); err != nil {
			return nil, nil, fmt.Errorf("udpconn: set read deadline: %w", err)
		}
	}

	n, addr, err := c.udpConn.ReadFromUDP(c.readBuf)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
			c.recordError()
			return nil, nil, fmt.Errorf("udpconn: read: %w", err)
		}
	}

	c.mu.Lock()
	c.stats.PacketsReceived++
	c.stats.BytesReceived += uint64(n)
	c.mu.Unlock()

	pkt, err := wire.Unmarshal(c.readBuf[:n])
	if err != nil {
		c.recordError()
		return nil, nil, fmt.Errorf("udpconn: unmarshal: %w", err)
	}
	return pkt, addr, nil
}

// SetRemoteAddr fixes the peer address once a listening socket's handshake
// resolves it.
func (c *Conn) SetRemoteAddr(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAddr = addr
}

// RemoteAddr returns the current peer address, if any.
func (c *Conn) RemoteAddr() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

// Statistics returns a copy of the socket-level counters.
func (c *Conn) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.udpConn.Close()
}

func (c *Conn) recordError() {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
}

// Clock is a time.Now-based implementation of engine.Timing. It returns
// wall-clock Unix microseconds, which are not monotonic across system clock
// adjustments.
type Clock struct{}

// NowMicros implements engine.Timing.
func (Clock) NowMicros() int64 {
	return time.Now().UnixMicro()
}
