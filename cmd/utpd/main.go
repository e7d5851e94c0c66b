package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/packetloom/utp/cmd/utpd/config"
	"github.com/packetloom/utp/cmd/utpd/server"
)

var (
	configFile = flag.String("f", "configs/utpd.yaml", "config file path")
	version    = "0.1.0"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "utpd: maxprocs.Set: %v\n", err)
	}

	logger, err := newLogger()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting utpd", zap.String("version", version), zap.String("build_time", buildTime))

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	cancel()
	srv.Stop()

	logger.Info("utpd shutdown complete")
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func loadConfig(filename string) (*config.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("config file not found, using default config\n")
			return config.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := config.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
