package wsdebug

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientClosed     = errors.New("wsdebug: client closed")
	ErrSendChannelFull  = errors.New("wsdebug: send channel full")
	ErrNotAuthenticated = errors.New("wsdebug: not authenticated")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// client wraps one debug WebSocket connection: a browser or CLI tool that
// authenticated and subscribed to a single uTP connection's event trace.
type client struct {
	id   string
	conn *websocket.Conn
	send chan *Message

	mu            sync.RWMutex
	authenticated bool
	subConnID     string
	closed        bool

	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(id string, conn *websocket.Conn, logger *zap.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *client) Send(msg *Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	c.mu.RUnlock()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
		c.logger.Warn("wsdebug: send channel full, dropping message", zap.String("client_id", c.id))
		return ErrSendChannelFull
	}
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	close(c.send)
	return c.conn.Close()
}

func (c *client) setAuthenticated(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	c.subConnID = connID
}

func (c *client) subscription() (connID string, authenticated bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subConnID, c.authenticated
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("wsdebug: read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		msg, err := parseMessage(raw)
		if err != nil {
			c.Send(newErrorMessage("invalid message format"))
			continue
		}
		h.handleClientMessage(c, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := msg.marshal()
			if err != nil {
				c.logger.Error("wsdebug: marshal failed", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) start(h *Hub) {
	go c.writePump()
	go c.readPump(h)
}
