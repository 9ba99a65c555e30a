package config

import (
	"strings"
	"time"
)

// Defaults for the fabric tuning surface, chosen to match typical LNet
// out-of-the-box values.
const (
	DefaultMaxPortals       = 64
	DefaultMaxCPTPartitions = 4
	DefaultPeerTimeout      = 180 * time.Second
	DefaultATMin            = 2 * time.Second
	DefaultATMax            = 600 * time.Second
	DefaultATHistory        = 600 * time.Second
	DefaultATEarlyMargin    = 1 * time.Second
	DefaultATExtra          = 30 * time.Second
	DefaultHPRatio          = 10
)

// ApplyDefaults fills in zero-valued fields with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyControlAPIDefaults(&cfg.ControlAPI)
	applyFabricDefaults(&cfg.Fabric)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyControlAPIDefaults(cfg *ControlAPIConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:7988"
	}
}

func applyFabricDefaults(cfg *FabricConfig) {
	if cfg.MaxPortals == 0 {
		cfg.MaxPortals = DefaultMaxPortals
	}
	if cfg.MaxCPTPartitions == 0 {
		cfg.MaxCPTPartitions = DefaultMaxCPTPartitions
	}
	if cfg.PeerTimeout == 0 {
		cfg.PeerTimeout = DefaultPeerTimeout
	}
	if len(cfg.RouterBufferTiers) == 0 {
		cfg.RouterBufferTiers = []int{1, 4, 32, 256}
	}
	if cfg.NodeAddr == 0 {
		cfg.NodeAddr = 1
	}

	applyATDefaults(&cfg.AT)

	for name, ni := range cfg.NetworkInterfaces {
		applyNIDefaults(&ni)
		cfg.NetworkInterfaces[name] = ni
	}
	for name, svc := range cfg.Services {
		applyServiceDefaults(&svc)
		cfg.Services[name] = svc
	}
}

func applyATDefaults(cfg *ATConfig) {
	if cfg.Min == 0 {
		cfg.Min = DefaultATMin
	}
	if cfg.Max == 0 {
		cfg.Max = DefaultATMax
	}
	if cfg.History == 0 {
		cfg.History = DefaultATHistory
	}
	if cfg.EarlyMargin == 0 {
		cfg.EarlyMargin = DefaultATEarlyMargin
	}
	if cfg.Extra == 0 {
		cfg.Extra = DefaultATExtra
	}
}

func applyNIDefaults(cfg *NIConfig) {
	if cfg.TxCredits == 0 {
		cfg.TxCredits = 8
	}
	if cfg.PeerTxCredits == 0 {
		cfg.PeerTxCredits = 8
	}
	if cfg.PeerRtrCredits == 0 {
		cfg.PeerRtrCredits = 8
	}
}

func applyServiceDefaults(cfg *ServiceConfig) {
	if cfg.NBufs == 0 {
		cfg.NBufs = 64
	}
	if cfg.BufSize == 0 {
		cfg.BufSize = 4096
	}
	if cfg.MaxReqSize == 0 {
		cfg.MaxReqSize = cfg.BufSize
	}
	if cfg.MaxRepSize == 0 {
		cfg.MaxRepSize = cfg.BufSize
	}
	if cfg.ThreadsMin == 0 {
		cfg.ThreadsMin = 2
	}
	if cfg.ThreadsMax == 0 {
		cfg.ThreadsMax = cfg.ThreadsMin * 4
	}
	if cfg.WatchdogFactor == 0 {
		cfg.WatchdogFactor = 2.0
	}
	if cfg.HPRatio == 0 {
		cfg.HPRatio = DefaultHPRatio
	}
}

// GetDefaultConfig returns a Config with every field at its default value.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
