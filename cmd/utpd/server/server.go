// Package server wires a running utpd process together: the uTP socket,
// one connection (dialed or accepted), the stats/debug control surface, and
// the observability stack.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/packetloom/utp/cmd/utpd/config"
	"github.com/packetloom/utp/internal/congestion/bbr"
	"github.com/packetloom/utp/internal/connection"
	"github.com/packetloom/utp/internal/control/auth"
	"github.com/packetloom/utp/internal/control/statshttp"
	"github.com/packetloom/utp/internal/control/wsdebug"
	"github.com/packetloom/utp/internal/net/pacer"
	"github.com/packetloom/utp/internal/net/udpconn"
	"github.com/packetloom/utp/internal/observability/metrics"
	"github.com/packetloom/utp/internal/observability/tracing"
)

// Server owns one uTP connection plus the control/observability surface
// around it.
type Server struct {
	config *config.Config
	logger *zap.Logger

	conn   *connection.Connection
	tracer *tracing.Tracer

	registry      *statshttp.Registry
	metrics       *metrics.Metrics
	collector     *metrics.Collector
	statsServer   *statshttp.Server
	metricsServer *http.Server
	debugServer   *wsdebug.Server
	debugHTTP     *http.Server
}

// New constructs a Server from cfg. It does not yet dial or accept a
// connection — call Start for that.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	tracerCfg := &tracing.Config{
		Enable:       cfg.Tracing.Enable,
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		Exporter:     cfg.Tracing.Exporter,
		SampleRate:   cfg.Tracing.SampleRate,
		Environment:  cfg.Tracing.Environment,
		BatchTimeout: cfg.Tracing.BatchTimeout,
		MaxQueueSize: cfg.Tracing.MaxQueueSize,
	}
	tracer, err := tracing.New(tracerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("server: create tracer: %w", err)
	}

	m := metrics.New("utpd", "connection")
	collector := metrics.NewCollector(m, logger)

	var authMgr *auth.Manager
	if cfg.Stats.Enable {
		authMgr = auth.NewManager(cfg.Stats.JWTSecret, cfg.Stats.JWTExpire, "utpd-control")
	}

	registry := statshttp.NewRegistry()
	statsCfg := &statshttp.Config{
		Addr:        fmt.Sprintf("%s:%d", cfg.Stats.Host, cfg.Stats.Port),
		MetricsPath: cfg.Metrics.Path,
		StatsPath:   cfg.Stats.Path,
	}
	statsSrv := statshttp.New(statsCfg, registry, authMgr, logger)

	var debugSrv *wsdebug.Server
	if cfg.Debug.Enable {
		debugSrv = wsdebug.NewServer(authMgr, logger)
	}

	return &Server{
		config:      cfg,
		logger:      logger,
		tracer:      tracer,
		registry:    registry,
		metrics:     m,
		collector:   collector,
		statsServer: statsSrv,
		debugServer: debugSrv,
	}, nil
}

// connConfig translates cmd/utpd/config into internal/connection.Config.
func connConfig(cfg *config.Config) *connection.Config {
	return &connection.Config{
		RecvBufBytes:      cfg.Conn.RecvBufBytes,
		PktSize:           cfg.Conn.PktSize,
		KeepaliveInterval: cfg.Conn.KeepaliveInterval,
		IdleTimeout:       cfg.Conn.IdleTimeout,
		MinRTO:            cfg.Conn.MinRTO,
		MaxRTO:            cfg.Conn.MaxRTO,
		FECEnabled:        cfg.FEC.Enable,
		FECDataShards:     cfg.FEC.DataShards,
		FECParityShards:   cfg.FEC.ParityShards,
		BBR: &bbr.Config{
			InitialCwnd:     cfg.BBR.InitialCwnd,
			MinRTT:          cfg.BBR.MinRTT,
			MaxBandwidth:    cfg.BBR.MaxBandwidth,
			OptSendBufBytes: cfg.BBR.OptSendBufBytes,
		},
		Socket: &udpconn.Config{
			ReadBufferSize:  udpconn.DefaultReadBufferSize,
			WriteBufferSize: udpconn.DefaultWriteBufferSize,
			Pacer:           &pacer.Config{BurstBytes: cfg.Pacer.BurstBytes},
		},
	}
}

// Start dials or accepts the configured connection, brings up the control
// surface, and relays stdin/stdout across the connection until it closes or
// ctx is cancelled. It blocks.
func (s *Server) Start(ctx context.Context) error {
	var conn *connection.Connection
	var err error

	switch s.config.Mode {
	case "dial":
		addr := s.config.Dial.Address
		s.logger.Info("dialing", zap.String("address", addr))
		hctx, hspan := s.tracer.StartHandshake(ctx, addr, "client")
		conn, err = connection.Dial(hctx, addr, connConfig(s.config))
		hspan.End()
	case "listen", "":
		addr := fmt.Sprintf("%s:%d", s.config.Listen.Host, s.config.Listen.Port)
		s.logger.Info("listening", zap.String("address", addr))
		sockCfg := udpconn.DefaultConfig()
		sockCfg.BBR = &bbr.Config{
			InitialCwnd:     s.config.BBR.InitialCwnd,
			MinRTT:          s.config.BBR.MinRTT,
			MaxBandwidth:    s.config.BBR.MaxBandwidth,
			OptSendBufBytes: s.config.BBR.OptSendBufBytes,
		}
		sockCfg.Pacer = &pacer.Config{BurstBytes: s.config.Pacer.BurstBytes}
		sock, lerr := udpconn.Listen(addr, sockCfg)
		if lerr != nil {
			return fmt.Errorf("server: listen: %w", lerr)
		}
		hctx, hspan := s.tracer.StartHandshake(ctx, addr, "server")
		conn, err = connection.Accept(hctx, sock, connConfig(s.config))
		hspan.End()
	default:
		return fmt.Errorf("server: unknown mode %q", s.config.Mode)
	}
	if err != nil {
		return fmt.Errorf("server: establish connection: %w", err)
	}
	s.conn = conn
	conn.SetTracer(s.tracer)
	if s.debugServer != nil {
		conn.SetDebugPublisher(s.debugServer.Hub())
	}

	s.metrics.RecordConnection(true)
	s.registry.Register(conn)
	s.collector.Track(conn.ID().String(), conn)
	s.collector.Start()
	defer s.registry.Unregister(conn)
	defer s.collector.Untrack(conn.ID().String())

	if s.config.Metrics.Enable {
		s.startMetricsServer()
	}
	if s.config.Stats.Enable {
		s.statsServer.Start()
	}
	if s.debugServer != nil {
		s.startDebugServer()
	}

	return s.relay(ctx)
}

// relay copies stdin into the connection and the connection's received
// bytes to stdout, until either direction errs or the connection closes.
func (s *Server) relay(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		buf := make([]byte, int(s.config.Conn.PktSize))
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if sendErr := s.conn.Send(ctx, buf[:n]); sendErr != nil {
					errCh <- sendErr
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					errCh <- s.conn.Close()
				} else {
					errCh <- err
				}
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, int(s.config.Conn.PktSize))
		for {
			if s.conn.State() == connection.StateClosed {
				errCh <- nil
				return
			}
			n, err := s.conn.Receive(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	return <-errCh
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Metrics.Host, s.config.Metrics.Port)
	s.metricsServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		s.logger.Info("metrics server started", zap.String("address", addr))
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

func (s *Server) startDebugServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Debug.Path, s.debugServer.HandleWebSocket())

	addr := fmt.Sprintf("%s:%d", s.config.Debug.Host, s.config.Debug.Port)
	s.debugHTTP = &http.Server{Addr: addr, Handler: mux}

	go func() {
		s.logger.Info("debug server started", zap.String("address", addr))
		if err := s.debugHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts everything down.
func (s *Server) Stop() {
	s.logger.Info("stopping utpd")

	if s.conn != nil {
		s.conn.Close()
	}

	s.collector.Stop()

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metricsServer.Shutdown(ctx)
	}
	if s.statsServer != nil {
		_ = s.statsServer.Stop()
	}
	if s.debugHTTP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.debugHTTP.Shutdown(ctx)
		s.debugServer.Close()
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.tracer.Shutdown(ctx)
	}

	s.logger.Info("utpd stopped")
}
