package wsdebug

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/packetloom/utp/internal/control/auth"
	"github.com/packetloom/utp/internal/guuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The debug surface is expected behind an operator-controlled
		// reverse proxy; tighten this if exposed directly.
		return true
	},
}

// Server upgrades HTTP requests to WebSocket debug-trace streams.
type Server struct {
	hub    *Hub
	logger *zap.Logger
}

// NewServer creates a Server backed by its own Hub.
func NewServer(manager *auth.Manager, logger *zap.Logger) *Server {
	return &Server{
		hub:    NewHub(manager, logger),
		logger: logger,
	}
}

// Hub returns the underlying Hub, so cmd/utpd can attach it to a connection
// with SetDebugPublisher; the connection then calls Publish itself.
func (s *Server) Hub() *Hub { return s.hub }

// HandleWebSocket upgrades the connection and starts its read/write pumps.
// The client must send a MessageTypeAuth frame before any other message is
// accepted, then a MessageTypeSubscribe frame naming the connection GUUID
// whose event trace it wants to observe.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("wsdebug: upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
			return
		}

		id, err := guuid.NewOrdered()
		if err != nil {
			s.logger.Error("wsdebug: failed to generate client id", zap.Error(err))
			conn.Close()
			return
		}

		c := newClient(id.String(), conn, s.logger)
		s.hub.register(c)
		c.start(s.hub)

		s.logger.Info("wsdebug: client connected",
			zap.String("client_id", c.id),
			zap.String("remote_addr", r.RemoteAddr),
		)
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.hub.Close()
}
