package hover

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	require.Equal(t, "127.0.0.1", cfg.Address)
	require.Equal(t, uint16(6202), cfg.Port)
	require.Equal(t, "228.0.0.1", cfg.Discovery.MulticastGroup)
	require.Equal(t, uint16(2403), cfg.Discovery.MulticastPort)
	require.Equal(t, 2, cfg.Discovery.Fanout)
	require.Equal(t, 500, cfg.Discovery.RateMs)
	require.Equal(t, 500, cfg.Discovery.ProbeTimeoutMs)
	require.Equal(t, 700, cfg.Discovery.ProbeReqTimeout)
	require.Equal(t, 2, cfg.Broadcast.Fanout)
	require.Equal(t, 500, cfg.Broadcast.RateMs)
	require.Equal(t, 500, cfg.Broadcast.MessageKeep)
}

func TestApplyEnvOverridesNestedField(t *testing.T) {
	cfg := NewConfig()

	os.Setenv("HOVER_DISCOVERY_FANOUT", "5")
	os.Setenv("HOVER_PORT", "7000")
	t.Cleanup(func() {
		os.Unsetenv("HOVER_DISCOVERY_FANOUT")
		os.Unsetenv("HOVER_PORT")
	})

	require.NoError(t, cfg.ApplyEnv("HOVER"))

	require.Equal(t, 5, cfg.Discovery.Fanout)
	require.Equal(t, uint16(7000), cfg.Port)
	// Unset keys are left untouched.
	require.Equal(t, 500, cfg.Discovery.RateMs)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hover.yaml"
	yaml := []byte("address: 0.0.0.0\nport: 9999\ndiscovery:\n  fanout: 4\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Address)
	require.Equal(t, uint16(9999), cfg.Port)
	require.Equal(t, 4, cfg.Discovery.Fanout)
	// Defaults still apply to fields the YAML didn't set.
	require.Equal(t, 500, cfg.Broadcast.RateMs)
}

func TestLoadConfigMissingFileReturnsConfigError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/hover.yaml")
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
