package config

import (
	"fmt"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

// Validate checks a Config for internally-consistent, usable values.
//
// This package does not use a struct-tag validation library: the teacher
// repo depends on go-playground/validator but never actually calls it, so
// there is nothing to ground a dependency on here. Validation stays a
// plain Go function, the same shape as the hand-written checks already
// used by this package's defaults pass.
func Validate(cfg *Config) error {
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", cfg.Metrics.Port)
	}
	if err := validateFabric(&cfg.Fabric); err != nil {
		return err
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR; got %q", cfg.Level)
	}

	switch cfg.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of text, json; got %q", cfg.Format)
	}

	if cfg.Output == "" {
		return fmt.Errorf("logging.output must not be empty")
	}

	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", cfg.SampleRate)
	}
	if cfg.Enabled && cfg.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint must be set when telemetry is enabled")
	}
	return nil
}

func validateFabric(cfg *FabricConfig) error {
	if cfg.MaxPortals == 0 {
		return fmt.Errorf("fabric.max_portals must be greater than 0")
	}
	if cfg.MaxCPTPartitions == 0 {
		return fmt.Errorf("fabric.max_cpt_partitions must be greater than 0")
	}
	if cfg.AT.Min > cfg.AT.Max {
		return fmt.Errorf("fabric.at.at_min (%s) must not exceed fabric.at.at_max (%s)", cfg.AT.Min, cfg.AT.Max)
	}

	for name, ni := range cfg.NetworkInterfaces {
		if ni.TxCredits <= 0 {
			return fmt.Errorf("fabric.network_interfaces[%s].tx_credits must be greater than 0", name)
		}
		if ni.NID != "" {
			if _, err := ids.ParseNID(ni.NID); err != nil {
				return fmt.Errorf("fabric.network_interfaces[%s].nid: %w", name, err)
			}
		}
	}

	for name, svc := range cfg.Services {
		if svc.ReqPortal >= cfg.MaxPortals {
			return fmt.Errorf("fabric.services[%s].req_portal %d exceeds fabric.max_portals %d", name, svc.ReqPortal, cfg.MaxPortals)
		}
		if svc.RepPortal >= cfg.MaxPortals {
			return fmt.Errorf("fabric.services[%s].rep_portal %d exceeds fabric.max_portals %d", name, svc.RepPortal, cfg.MaxPortals)
		}
		if svc.ThreadsMin > svc.ThreadsMax {
			return fmt.Errorf("fabric.services[%s].threads_min must not exceed threads_max", name)
		}
	}

	return nil
}
