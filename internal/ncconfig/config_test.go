package ncconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	d := Default()
	if d.PollFrequency() != 10*time.Second {
		t.Fatalf("PollFrequency() = %v, want 10s", d.PollFrequency())
	}
	if d.MinRestartDelay() != time.Second {
		t.Fatalf("MinRestartDelay() = %v, want 1s", d.MinRestartDelay())
	}
	if d.MaxRestartDelay() != 3600*time.Second {
		t.Fatalf("MaxRestartDelay() = %v, want 3600s", d.MaxRestartDelay())
	}
	if d.KillTimeout() != 5*time.Second {
		t.Fatalf("KillTimeout() = %v, want 5s", d.KillTimeout())
	}
}

func TestLoadNoPathReturnsBase(t *testing.T) {
	base := Default()
	base.ConfigDir = "/etc/ncolony/config"
	cfg, err := Load("", base)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != base {
		t.Fatalf("cfg = %+v, want %+v", cfg, base)
	}
}

func TestLoadOverridesOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ncolonyd.toml")
	toml := `
config_dir = "/var/ncolony/config"
messages_dir = "/var/ncolony/messages"
poll_frequency_seconds = 2.5
`
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatalf("writing toml: %v", err)
	}

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigDir != "/var/ncolony/config" {
		t.Fatalf("ConfigDir = %q", cfg.ConfigDir)
	}
	if cfg.MessagesDir != "/var/ncolony/messages" {
		t.Fatalf("MessagesDir = %q", cfg.MessagesDir)
	}
	if cfg.PollFrequencySeconds != 2.5 {
		t.Fatalf("PollFrequencySeconds = %v", cfg.PollFrequencySeconds)
	}
	// Keys absent from the file keep the base (default) value.
	if cfg.KillTimeoutSeconds != Default().KillTimeoutSeconds {
		t.Fatalf("KillTimeoutSeconds = %v, want default", cfg.KillTimeoutSeconds)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/ncolonyd.toml", Default()); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
