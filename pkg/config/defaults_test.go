package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.NotZero(t, cfg.ShutdownTimeout)
}

func TestApplyDefaults_Fabric(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, uint32(DefaultMaxPortals), cfg.Fabric.MaxPortals)
	assert.Equal(t, uint32(DefaultMaxCPTPartitions), cfg.Fabric.MaxCPTPartitions)
	assert.Equal(t, DefaultPeerTimeout, cfg.Fabric.PeerTimeout)
	assert.Equal(t, DefaultATMin, cfg.Fabric.AT.Min)
	assert.Equal(t, DefaultATMax, cfg.Fabric.AT.Max)
	assert.NotEmpty(t, cfg.Fabric.RouterBufferTiers)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Fabric.MaxPortals = 8

	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, uint32(8), cfg.Fabric.MaxPortals)
}

func TestApplyDefaults_NetworkInterfacesAndServices(t *testing.T) {
	cfg := &Config{}
	cfg.Fabric.NetworkInterfaces = map[string]NIConfig{"o2ib0": {}}
	cfg.Fabric.Services = map[string]ServiceConfig{"ost_io": {ReqPortal: 1, RepPortal: 2}}

	ApplyDefaults(cfg)

	ni := cfg.Fabric.NetworkInterfaces["o2ib0"]
	assert.Equal(t, 8, ni.TxCredits)

	svc := cfg.Fabric.Services["ost_io"]
	assert.Equal(t, 64, svc.NBufs)
	assert.Equal(t, DefaultHPRatio, svc.HPRatio)
	assert.GreaterOrEqual(t, svc.ThreadsMax, svc.ThreadsMin)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NotEmpty(t, cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Logging.Format)
	assert.NotZero(t, cfg.Fabric.MaxPortals)
}
