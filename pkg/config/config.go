// Package config loads and validates lnetgo's static configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LNET_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for an lnetgo node.
//
// It covers the ambient concerns (logging, telemetry, control API, metrics)
// plus the fabric-specific tuning surface described by the network
// interface, router, and RPC service sections.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ControlAPI contains the HTTP control-surface server configuration.
	ControlAPI ControlAPIConfig `mapstructure:"control_api" yaml:"control_api"`

	// Fabric contains the LNet-core tuning surface: portal/CPT limits,
	// peer liveness, adaptive timeout tuning, router buffer tiers, and
	// per-NI / per-service settings.
	Fabric FabricConfig `mapstructure:"fabric" yaml:"fabric"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format: "text" or "json".
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// ControlAPIConfig configures the HTTP control surface server (§6.5).
type ControlAPIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// FabricConfig is the recognized option set of §6.4.
type FabricConfig struct {
	// LocalNIDDistZero reports distance 0 for the node's own NID.
	LocalNIDDistZero bool `mapstructure:"local_nid_dist_zero" yaml:"local_nid_dist_zero"`

	// PeerTimeout is the peer liveness window, in seconds.
	PeerTimeout time.Duration `mapstructure:"peer_timeout" yaml:"peer_timeout"`

	// AT holds adaptive-timeout estimator tuning.
	AT ATConfig `mapstructure:"at" yaml:"at"`

	// TestReqBufferPressure injects synthetic request-buffer pressure for
	// exercising the simulated-drop error path (ferrors.Simulated).
	TestReqBufferPressure bool `mapstructure:"test_req_buffer_pressure" yaml:"test_req_buffer_pressure"`

	// MaxPortals bounds the portal index space: [0, MaxPortals).
	MaxPortals uint32 `mapstructure:"max_portals" yaml:"max_portals"`

	// MaxCPTPartitions bounds the number of CPU partitions the matching
	// engine shards match-tables across.
	MaxCPTPartitions uint32 `mapstructure:"max_cpt_partitions" yaml:"max_cpt_partitions"`

	// RouterBufferTiers is an ascending list of page-count tiers used by
	// the router buffer pool.
	RouterBufferTiers []int `mapstructure:"router_buffer_tiers" yaml:"router_buffer_tiers"`

	// NodeAddr is this node's per-fabric address component, used to
	// derive a NID for any network interface whose NIConfig.NID is left
	// unset.
	NodeAddr uint32 `mapstructure:"node_addr" yaml:"node_addr"`

	// NetworkInterfaces configures each local NI by name.
	NetworkInterfaces map[string]NIConfig `mapstructure:"network_interfaces" yaml:"network_interfaces"`

	// Services configures each RPC service by name.
	Services map[string]ServiceConfig `mapstructure:"services" yaml:"services"`
}

// ATConfig tunes the adaptive-timeout estimator (§4.6).
type ATConfig struct {
	Min         time.Duration `mapstructure:"at_min" yaml:"at_min"`
	Max         time.Duration `mapstructure:"at_max" yaml:"at_max"`
	History     time.Duration `mapstructure:"at_history" yaml:"at_history"`
	EarlyMargin time.Duration `mapstructure:"at_early_margin" yaml:"at_early_margin"`
	Extra       time.Duration `mapstructure:"at_extra" yaml:"at_extra"`
}

// NIConfig is the per-network-interface credit tuning of §6.4.
type NIConfig struct {
	// NID is this interface's wire identifier in "addr@net" form, e.g.
	// "1@o2ib0". If empty, lnetd derives a stable one from the map key
	// (the interface name) and the node's configured address.
	NID string `mapstructure:"nid" yaml:"nid"`

	TxCredits      int `mapstructure:"tx_credits" yaml:"tx_credits"`
	PeerTxCredits  int `mapstructure:"peer_tx_credits" yaml:"peer_tx_credits"`
	PeerRtrCredits int `mapstructure:"peer_rtr_credits" yaml:"peer_rtr_credits"`
}

// ServiceConfig is the per-RPC-service tuning of §6.4.
type ServiceConfig struct {
	ReqPortal      uint32        `mapstructure:"req_portal" yaml:"req_portal"`
	RepPortal      uint32        `mapstructure:"rep_portal" yaml:"rep_portal"`
	NBufs          int           `mapstructure:"nbufs" yaml:"nbufs"`
	BufSize        int           `mapstructure:"bufsize" yaml:"bufsize"`
	MaxReqSize     int           `mapstructure:"max_req_size" yaml:"max_req_size"`
	MaxRepSize     int           `mapstructure:"max_rep_size" yaml:"max_rep_size"`
	ThreadsMin     int           `mapstructure:"threads_min" yaml:"threads_min"`
	ThreadsMax     int           `mapstructure:"threads_max" yaml:"threads_max"`
	WatchdogFactor float64       `mapstructure:"watchdog_factor" yaml:"watchdog_factor"`
	CtxTags        []string      `mapstructure:"ctx_tags" yaml:"ctx_tags"`
	HPRatio        int           `mapstructure:"hp_ratio" yaml:"hp_ratio"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, producing a user-friendly error when the
// default config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  lnetctl init\n\n"+
				"Or specify a custom config file:\n"+
				"  lnetd --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// Watch loads configPath once, then watches it for changes on disk,
// invoking onChange with each freshly-reloaded and re-validated Config.
// A malformed edit is logged-worthy to the caller (returned error inside
// onChange's own handling is out of scope here) and simply skipped: the
// previous Config remains in effect until the file is fixed. The
// returned stop func does nothing: once started, the watch stays
// active for the life of the process.
func Watch(configPath string, onChange func(*Config)) (stop func(), err error) {
	v := viper.New()
	setupViper(v, configPath)

	found, ferr := readConfigFile(v)
	if ferr != nil {
		return nil, ferr
	}
	if !found {
		// Nothing on disk to watch; the running Config is whatever
		// ApplyDefaults produced and stays in effect for this process.
		return func() {}, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&fsnotify.Write == 0 && e.Op&fsnotify.Create == 0 {
			return
		}
		var cfg Config
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return
		}
		ApplyDefaults(&cfg)
		if err := Validate(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()

	return func() {}, nil
}

// SaveConfig persists the configuration to the given file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined mapstructure decode hook used
// when unmarshaling into Config. Durations get the human-readable
// "30s"/"5m" treatment on top of viper's own string/number handling.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v*float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lnetgo")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "lnetgo")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
