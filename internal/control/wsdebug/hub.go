package wsdebug

import (
	"sync"

	"go.uber.org/zap"

	"github.com/packetloom/utp/internal/control/auth"
)

// Hub fans debug events out to every client subscribed to the originating
// connection's GUUID. A client authenticates once with a "debug:stream"
// scoped token, then subscribes to exactly one connection id; unlike the
// teacher's pub/sub hub there are no channels or per-user fan-out, since a
// debug trace is inherently single-connection.
type Hub struct {
	manager *auth.Manager
	logger  *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client            // client id -> client
	byConn  map[string]map[string]*client // conn id -> set of subscribed clients
}

// NewHub creates a Hub. manager verifies the bearer token each client sends
// in its first MessageTypeAuth frame.
func NewHub(manager *auth.Manager, logger *zap.Logger) *Hub {
	return &Hub{
		manager: manager,
		logger:  logger,
		clients: make(map[string]*client),
		byConn:  make(map[string]map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
	if connID, _ := c.subscription(); connID != "" {
		if set, ok := h.byConn[connID]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(h.byConn, connID)
			}
		}
	}
}

func (h *Hub) handleClientMessage(c *client, msg *Message) {
	switch msg.Type {
	case MessageTypeAuth:
		h.handleAuth(c, msg)
	case MessageTypeSubscribe:
		h.handleSubscribe(c, msg)
	default:
		c.Send(newErrorMessage("unknown message type"))
	}
}

func (h *Hub) handleAuth(c *client, msg *Message) {
	var data AuthData
	if err := unmarshalData(msg, &data); err != nil {
		c.Send(newErrorMessage("malformed auth payload"))
		return
	}

	if h.manager == nil {
		c.setAuthenticated("")
		c.Send(newAuthResultMessage(true, ""))
		return
	}

	claims, err := h.manager.VerifyToken(data.Token)
	if err != nil || !claims.HasScope("debug:stream") {
		c.Send(newAuthResultMessage(false, "unauthorized"))
		return
	}
	c.setAuthenticated("")
	c.Send(newAuthResultMessage(true, ""))
}

func (h *Hub) handleSubscribe(c *client, msg *Message) {
	if _, authenticated := c.subscription(); !authenticated {
		c.Send(newErrorMessage(ErrNotAuthenticated.Error()))
		return
	}

	var data SubscribeData
	if err := unmarshalData(msg, &data); err != nil || data.ConnID == "" {
		c.Send(newErrorMessage("malformed subscribe payload"))
		return
	}

	prev, _ := c.subscription()
	c.setAuthenticated(data.ConnID)

	h.mu.Lock()
	if prev != "" && prev != data.ConnID {
		if old, ok := h.byConn[prev]; ok {
			delete(old, c.id)
			if len(old) == 0 {
				delete(h.byConn, prev)
			}
		}
	}
	set, ok := h.byConn[data.ConnID]
	if !ok {
		set = make(map[string]*client)
		h.byConn[data.ConnID] = set
	}
	set[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("wsdebug: client subscribed",
		zap.String("client_id", c.id),
		zap.String("conn_id", data.ConnID),
	)
}

// Publish fans ev out to every client currently subscribed to ev.ConnID.
// internal/connection.Connection calls this (through its DebugPublisher
// interface) once SetDebugPublisher attaches a Hub to it.
func (h *Hub) Publish(ev DebugEvent) {
	h.mu.RLock()
	set := h.byConn[ev.ConnID]
	clients := make([]*client, 0, len(set))
	for _, c := range set {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	msg, err := newEventMessage(ev)
	if err != nil {
		h.logger.Error("wsdebug: failed to encode event", zap.Error(err))
		return
	}
	for _, c := range clients {
		c.Send(msg)
	}
}

// Close disconnects every client and clears subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.byConn = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
