package hover

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/uber-go/tally/v4"
	"gopkg.in/yaml.v3"
)

// DiscoveryConfig configures multicast discovery and SWIM timing
// (spec.md §6).
type DiscoveryConfig struct {
	MulticastGroup  string `yaml:"multicast_group"`
	MulticastPort   uint16 `yaml:"multicast_port"`
	Fanout          int    `yaml:"fanout"`
	RateMs          int    `yaml:"rate_ms"`
	ProbeTimeoutMs  int    `yaml:"probe_timeout_ms"`
	ProbeReqTimeout int    `yaml:"probe_req_timeout_ms"`
}

// BroadcastConfig configures gossip dissemination (spec.md §6).
type BroadcastConfig struct {
	Fanout      int `yaml:"fanout"`
	RateMs      int `yaml:"rate_ms"`
	MessageKeep int `yaml:"message_keep"`
}

// LoggerConfig configures the ambient logging stack (SPEC_FULL.md
// Logging module); not named in spec.md §6 since it is an ambient, not
// domain, concern.
type LoggerConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// MetricsConfig toggles the ambient metrics stack. Scope is the
// tally.Scope cluster metrics (probe RTT, broadcast counters, member
// count) are recorded against; it is a programmatic injection point, not
// a YAML key, so an embedder can wire its own reporter (statsd, Prometheus
// via a tally bridge, ...). A nil Scope with Enabled true falls back to
// tally.NoopScope.
type MetricsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Scope   tally.Scope `yaml:"-"`
}

// Config is the embedding application's collaborator contract: every
// recognized key and default from spec.md §6, plus the ambient keys
// SPEC_FULL.md's expansion adds.
type Config struct {
	Address string `yaml:"address"`
	Port    uint16 `yaml:"port"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Logger    LoggerConfig    `yaml:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NewConfig returns the defaults named in spec.md §6.
func NewConfig() *Config {
	return &Config{
		Address: "127.0.0.1",
		Port:    6202,
		Discovery: DiscoveryConfig{
			MulticastGroup:  "228.0.0.1",
			MulticastPort:   2403,
			Fanout:          2,
			RateMs:          500,
			ProbeTimeoutMs:  500,
			ProbeReqTimeout: 700,
		},
		Broadcast: BroadcastConfig{
			Fanout:      2,
			RateMs:      500,
			MessageKeep: 500,
		},
		Logger: LoggerConfig{Level: "info"},
	}
}

// LoadConfig reads and unmarshals a YAML file over NewConfig's defaults.
// Grounded on nakama-cluster/config.go's NewConfig + go-yaml tags.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, newConfigError("path", err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, newConfigError("yaml", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables named "<prefix>_<FIELD_PATH>"
// (spec.md §6: "an environment prefix (HOVER_...)"), e.g.
// HOVER_DISCOVERY_FANOUT overrides Discovery.Fanout. Fields whose variable
// is unset are left untouched; a variable that does not parse as its
// field's type makes ApplyEnv return a *ConfigError. No third-party env-binding library
// appears anywhere in the retrieved pack (see DESIGN.md), so this walks
// the struct with reflection rather than introducing one.
func (c *Config) ApplyEnv(prefix string) error {
	return applyEnv(prefix, reflect.ValueOf(c).Elem())
}

func applyEnv(envPath string, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		name := strings.ToUpper(field.Name)
		key := envPath + "_" + name

		switch fv.Kind() {
		case reflect.Struct:
			if err := applyEnv(key, fv); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}

		if err := setFromEnv(fv, raw); err != nil {
			return newConfigError(key, err)
		}
	}
	return nil
}

func setFromEnv(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	default:
		return fmt.Errorf("unsupported env override kind %s", fv.Kind())
	}
	return nil
}
