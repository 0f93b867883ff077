package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how queries are answered.
type Mode string

const (
	// ModeSimulated answers from the in-process pattern-matched resolver.
	// Results are always marked simulated.
	ModeSimulated Mode = "simulated"

	// ModeReal drives the engine executable.
	ModeReal Mode = "real"
)

// DefaultListenAddr is where styleqd serves HTTP unless configured.
const DefaultListenAddr = ":8167"

// Config is the engine configuration. Loaded once at startup and read-only
// for the engine's lifetime.
type Config struct {
	// ExecutablePath locates the engine binary. Required for ModeReal;
	// its absence there is a construction error, never a silent fallback
	// to simulation.
	ExecutablePath string `yaml:"executable_path"`

	// Mode: "simulated" or "real". Default: simulated.
	Mode Mode `yaml:"mode"`

	// Daemon enables the optimized path: one supervised long-lived
	// engine process with query batching. Real mode only.
	Daemon bool `yaml:"daemon"`

	// BatchSize caps queries per daemon round-trip. Default: 5.
	BatchSize int `yaml:"batch_size"`

	// Timeout bounds each engine invocation. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// SettleDelay is the emission-to-termination delay in probe
	// documents. Longer is more reliable against truncated output,
	// shorter is faster per query. Zero keeps the assembler defaults,
	// 500ms per-query and 200ms for daemon batches; setting it applies
	// one delay to both.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// CachePath enables the SQLite result cache when non-empty.
	CachePath string `yaml:"cache_path"`

	// ListenAddr is where styleqd serves HTTP. Default: ":8167".
	ListenAddr string `yaml:"listen_addr"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("engine: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeSimulated
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeSimulated, ModeReal:
	default:
		return fmt.Errorf("engine: unknown mode %q", c.Mode)
	}
	if c.Mode == ModeReal && c.ExecutablePath == "" {
		return fmt.Errorf("engine: mode real requires executable_path: %w", ErrEngineNotFound)
	}
	return nil
}
