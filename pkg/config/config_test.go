package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, uint32(DefaultMaxPortals), cfg.Fabric.MaxPortals)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
logging:
  level: debug
  format: json
  output: stdout
fabric:
  max_portals: 16
  max_cpt_partitions: 2
  peer_timeout: 60s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, uint32(16), cfg.Fabric.MaxPortals)
	assert.Equal(t, uint32(2), cfg.Fabric.MaxCPTPartitions)
}

func TestWatch_NoConfigFile(t *testing.T) {
	dir := t.TempDir()
	stop, err := Watch(filepath.Join(dir, "missing.yaml"), func(*Config) {})
	require.NoError(t, err)
	require.NotNil(t, stop)
	stop()
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644))

	changed := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, Validate(cfg))
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.False(t, DefaultConfigExists())
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	path := GetDefaultConfigPath()
	assert.Equal(t, "/tmp/xdg-test/lnetgo/config.yaml", path)
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	assert.Equal(t, "/tmp/xdg-test/lnetgo", GetConfigDir())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("LNET_LOGGING_LEVEL", "warn")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: json\n  output: stdout\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
}
