package motion

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agiangrant/motion/arena"
)

// Config is the runtime tuning for supervisors and workers, loadable from
// a motion.toml file. Durations are integer milliseconds in TOML.
type Config struct {
	Timing TimingConfig `toml:"timing"`
	Pools  PoolConfig   `toml:"pools"`
}

// TimingConfig controls the worker's wait intervals.
type TimingConfig struct {
	// Delay between worker spawn and the first engine call, so a fresh
	// worker never contends with engine startup.
	SettleDelayMs int `toml:"settle_delay_ms"`

	// How long a playing widget may stay invisible before the worker
	// releases its resources on its own.
	GracePeriodMs int `toml:"grace_period_ms"`

	// Sleep between visibility polls while within the grace period.
	PollIntervalMs int `toml:"poll_interval_ms"`

	// Default bound for waiting on a worker to acknowledge a stop request.
	StopTimeoutMs int `toml:"stop_timeout_ms"`
}

// PoolConfig sizes the resource allocator.
type PoolConfig struct {
	ImageBudgetBytes int `toml:"image_budget_bytes"`
	ControlSlots     int `toml:"control_slots"`
	ControlSlotBytes int `toml:"control_slot_bytes"`
}

func (t TimingConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleDelayMs) * time.Millisecond
}

func (t TimingConfig) GracePeriod() time.Duration {
	return time.Duration(t.GracePeriodMs) * time.Millisecond
}

func (t TimingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

func (t TimingConfig) StopTimeout() time.Duration {
	return time.Duration(t.StopTimeoutMs) * time.Millisecond
}

// ArenaConfig maps the pool section onto allocator sizing.
func (p PoolConfig) ArenaConfig() arena.Config {
	return arena.Config{
		ImageBudget:     p.ImageBudgetBytes,
		ControlSlots:    p.ControlSlots,
		ControlSlotSize: p.ControlSlotBytes,
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timing: TimingConfig{
			SettleDelayMs:  1000,
			GracePeriodMs:  2000,
			PollIntervalMs: 250,
			StopTimeoutMs:  500,
		},
		Pools: PoolConfig{
			ImageBudgetBytes: 16 << 20,
			ControlSlots:     32,
			ControlSlotBytes: 512,
		},
	}
}

// LoadConfig loads configuration from the given TOML file. A missing file
// is not an error: defaults are returned. Keys absent from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig writes the configuration to the given path as TOML.
func SaveConfig(path string, config Config) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
