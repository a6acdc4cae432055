// Package ncconfig is the supervisor daemon's own startup configuration --
// distinct from a ProcessSpec, which describes one supervised child. It is
// loaded from an optional TOML file and overridable by CLI flags.
package ncconfig

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds ncolonyd's startup parameters.
type Config struct {
	ConfigDir             string `toml:"config_dir"`
	MessagesDir           string `toml:"messages_dir"`
	PidDir                string `toml:"pid_dir"`
	PollFrequencySeconds  float64 `toml:"poll_frequency_seconds"`
	MinRestartDelaySeconds float64 `toml:"min_restart_delay_seconds"`
	MaxRestartDelaySeconds float64 `toml:"max_restart_delay_seconds"`
	RestartThresholdSeconds float64 `toml:"restart_threshold_seconds"`
	KillTimeoutSeconds    float64 `toml:"kill_timeout_seconds"`
}

// Default returns the spec's documented defaults for every timing
// parameter; directories have no default and must be supplied.
func Default() Config {
	return Config{
		PollFrequencySeconds:    10,
		MinRestartDelaySeconds:  1,
		MaxRestartDelaySeconds:  3600,
		RestartThresholdSeconds: 1,
		KillTimeoutSeconds:      5,
	}
}

// Load reads a TOML file at path into a copy of base, leaving any key
// absent from the file at base's value.
func Load(path string, base Config) (Config, error) {
	cfg := base
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PollFrequency is PollFrequencySeconds as a time.Duration.
func (c Config) PollFrequency() time.Duration {
	return time.Duration(c.PollFrequencySeconds * float64(time.Second))
}

// MinRestartDelay is MinRestartDelaySeconds as a time.Duration.
func (c Config) MinRestartDelay() time.Duration {
	return time.Duration(c.MinRestartDelaySeconds * float64(time.Second))
}

// MaxRestartDelay is MaxRestartDelaySeconds as a time.Duration.
func (c Config) MaxRestartDelay() time.Duration {
	return time.Duration(c.MaxRestartDelaySeconds * float64(time.Second))
}

// RestartThreshold is RestartThresholdSeconds as a time.Duration.
func (c Config) RestartThreshold() time.Duration {
	return time.Duration(c.RestartThresholdSeconds * float64(time.Second))
}

// KillTimeout is KillTimeoutSeconds as a time.Duration.
func (c Config) KillTimeout() time.Duration {
	return time.Duration(c.KillTimeoutSeconds * float64(time.Second))
}
