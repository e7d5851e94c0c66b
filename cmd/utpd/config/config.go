// Package config is utpd's YAML configuration surface.
package config

import "time"

// Config is utpd's top-level configuration.
type Config struct {
	// Mode is "listen" (accept one inbound connection and relay it to
	// stdio) or "dial" (connect out to Dial.Address and relay it to
	// stdio).
	Mode    string        `yaml:"Mode"`
	Listen  ListenConfig  `yaml:"Listen"`
	Dial    DialConfig    `yaml:"Dial"`
	Conn    ConnConfig    `yaml:"Conn"`
	FEC     FECConfig     `yaml:"FEC"`
	BBR     BBRConfig     `yaml:"BBR"`
	Pacer   PacerConfig   `yaml:"Pacer"`
	Log     LogConfig     `yaml:"Log"`
	Metrics MetricsConfig `yaml:"Metrics"`
	Stats   StatsConfig   `yaml:"Stats"`
	Debug   DebugConfig   `yaml:"Debug"`
	Tracing TracingConfig `yaml:"Tracing"`
}

// ListenConfig is the UDP socket utpd binds for incoming uTP connections.
type ListenConfig struct {
	Host string `yaml:"Host"`
	Port int    `yaml:"Port"`
}

// DialConfig is the remote address utpd connects to in "dial" mode.
type DialConfig struct {
	Address string `yaml:"Address"`
}

// ConnConfig tunes per-connection buffer sizes and timers.
type ConnConfig struct {
	RecvBufBytes      uint32        `yaml:"RecvBufBytes"`
	PktSize           uint32        `yaml:"PktSize"`
	KeepaliveInterval time.Duration `yaml:"KeepaliveInterval"`
	IdleTimeout       time.Duration `yaml:"IdleTimeout"`
	MinRTO            time.Duration `yaml:"MinRTO"`
	MaxRTO            time.Duration `yaml:"MaxRTO"`
}

// FECConfig controls the optional Reed-Solomon forward error correction
// wire extension.
type FECConfig struct {
	Enable       bool `yaml:"Enable"`
	DataShards   int  `yaml:"DataShards"`
	ParityShards int  `yaml:"ParityShards"`
}

// BBRConfig seeds the congestion controller.
type BBRConfig struct {
	InitialCwnd  uint32        `yaml:"InitialCwnd"`
	MinRTT       time.Duration `yaml:"MinRTT"`
	MaxBandwidth uint64        `yaml:"MaxBandwidth"`

	// OptSendBufBytes overrides the initial send window BBR reports before
	// any RTT samples exist. Zero defers to InitialCwnd.
	OptSendBufBytes uint32 `yaml:"OptSendBufBytes"`
}

// PacerConfig tunes internal/net/pacer's token bucket.
type PacerConfig struct {
	// BurstBytes floors the pacer's token-bucket burst size. Zero falls
	// back to the pacer package's own default.
	BurstBytes int `yaml:"BurstBytes"`
}

// LogConfig is decoded from the Log section. cmd/utpd builds its logger
// with zap.NewProduction before the config is loaded and does not read
// these fields.
type LogConfig struct {
	Level  string `yaml:"Level"`  // debug, info, warn, error
	Format string `yaml:"Format"` // json, console
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enable bool   `yaml:"Enable"`
	Host   string `yaml:"Host"`
	Port   int    `yaml:"Port"`
	Path   string `yaml:"Path"`
}

// StatsConfig controls the JWT-guarded JSON stats endpoint.
type StatsConfig struct {
	Enable    bool          `yaml:"Enable"`
	Host      string        `yaml:"Host"`
	Port      int           `yaml:"Port"`
	Path      string        `yaml:"Path"`
	JWTSecret string        `yaml:"JWTSecret"`
	JWTExpire time.Duration `yaml:"JWTExpire"`
}

// DebugConfig controls the live per-connection event trace WebSocket.
type DebugConfig struct {
	Enable bool   `yaml:"Enable"`
	Host   string `yaml:"Host"`
	Port   int    `yaml:"Port"`
	Path   string `yaml:"Path"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enable       bool    `yaml:"Enable"`
	ServiceName  string  `yaml:"ServiceName"`
	Endpoint     string  `yaml:"Endpoint"`
	Exporter     string  `yaml:"Exporter"`
	SampleRate   float64 `yaml:"SampleRate"`
	Environment  string  `yaml:"Environment"`
	BatchTimeout int     `yaml:"BatchTimeout"`
	MaxQueueSize int     `yaml:"MaxQueueSize"`
}

// DefaultConfig returns utpd's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode: "listen",
		Listen: ListenConfig{
			Host: "0.0.0.0",
			Port: 6969,
		},
		Dial: DialConfig{
			Address: "127.0.0.1:6969",
		},
		Conn: ConnConfig{
			RecvBufBytes:      1 << 20,
			PktSize:           1400,
			KeepaliveInterval: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MinRTO:            100 * time.Millisecond,
			MaxRTO:            3 * time.Second,
		},
		FEC: FECConfig{
			Enable:       false,
			DataShards:   10,
			ParityShards: 3,
		},
		BBR: BBRConfig{
			InitialCwnd:     10,
			MinRTT:          10 * time.Millisecond,
			MaxBandwidth:    100 * 1024 * 1024,
			OptSendBufBytes: 0,
		},
		Pacer: PacerConfig{
			BurstBytes: 1500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enable: true,
			Host:   "0.0.0.0",
			Port:   9101,
			Path:   "/metrics",
		},
		Stats: StatsConfig{
			Enable:    true,
			Host:      "127.0.0.1",
			Port:      9980,
			Path:      "/stats",
			JWTSecret: "change-me",
			JWTExpire: time.Hour,
		},
		Debug: DebugConfig{
			Enable: false,
			Host:   "127.0.0.1",
			Port:   9981,
			Path:   "/debug/ws",
		},
		Tracing: TracingConfig{
			Enable:       false,
			ServiceName:  "utpd",
			Endpoint:     "http://localhost:14268/api/traces",
			Exporter:     "jaeger",
			SampleRate:   1.0,
			Environment:  "development",
			BatchTimeout: 5,
			MaxQueueSize: 2048,
		},
	}
}
