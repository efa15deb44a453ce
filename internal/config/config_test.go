package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port == cfg.UnoPort {
		t.Errorf("default ports collide: port=%d uno_port=%d", cfg.Port, cfg.UnoPort)
	}
	if cfg.Port != 2003 {
		t.Errorf("Port = %d, want 2003", cfg.Port)
	}
	if cfg.UnoPort != 2002 {
		t.Errorf("UnoPort = %d, want 2002", cfg.UnoPort)
	}
	if cfg.RetryBudget != 20 {
		t.Errorf("RetryBudget = %d, want 20", cfg.RetryBudget)
	}
	if cfg.RetryRefusedCost != 1 || cfg.RetryOtherCost != 4 {
		t.Errorf("retry costs = %d/%d, want 1/4", cfg.RetryRefusedCost, cfg.RetryOtherCost)
	}
	if cfg.RetryRefusedDelay != 2*time.Second || cfg.RetryOtherDelay != 5*time.Second {
		t.Errorf("retry delays = %v/%v, want 2s/5s", cfg.RetryRefusedDelay, cfg.RetryOtherDelay)
	}
	if cfg.ConversionTimeout != 0 {
		t.Errorf("ConversionTimeout = %v, want 0 (unbounded)", cfg.ConversionTimeout)
	}
	if cfg.StopAfter != 0 {
		t.Errorf("StopAfter = %d, want 0 (unlimited)", cfg.StopAfter)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "no args gives defaults",
			args: nil,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 2003 || cfg.UnoPort != 2002 {
					t.Errorf("ports = %d/%d, want 2003/2002", cfg.Port, cfg.UnoPort)
				}
			},
		},
		{
			name: "ports",
			args: []string{"-port", "9003", "-uno-port", "9002"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 9003 || cfg.UnoPort != 9002 {
					t.Errorf("ports = %d/%d, want 9003/9002", cfg.Port, cfg.UnoPort)
				}
			},
		},
		{
			name: "timeout and stop-after",
			args: []string{"-conversion-timeout", "30s", "-stop-after", "500"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.ConversionTimeout != 30*time.Second {
					t.Errorf("ConversionTimeout = %v, want 30s", cfg.ConversionTimeout)
				}
				if cfg.StopAfter != 500 {
					t.Errorf("StopAfter = %d, want 500", cfg.StopAfter)
				}
			},
		},
		{
			name: "worker flags",
			args: []string{"-executable", "/opt/libreoffice/program/soffice", "-pid-file", "/run/officebridge.pid"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Executable != "/opt/libreoffice/program/soffice" {
					t.Errorf("Executable = %q", cfg.Executable)
				}
				if cfg.PidFile != "/run/officebridge.pid" {
					t.Errorf("PidFile = %q", cfg.PidFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFlags(tt.args)
			if err != nil {
				t.Fatalf("ParseFlags(%v) error: %v", tt.args, err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseFlagsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "officebridge.yaml")
	data := []byte("port: 9003\nuno_port: 9002\nstop_after: 10\nlog_format: text\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("file values apply", func(t *testing.T) {
		cfg, err := ParseFlags([]string{"-config", path})
		if err != nil {
			t.Fatalf("ParseFlags error: %v", err)
		}
		if cfg.Port != 9003 || cfg.UnoPort != 9002 {
			t.Errorf("ports = %d/%d, want 9003/9002", cfg.Port, cfg.UnoPort)
		}
		if cfg.StopAfter != 10 {
			t.Errorf("StopAfter = %d, want 10", cfg.StopAfter)
		}
		if cfg.LogFormat != "text" {
			t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
		}
	})

	t.Run("flags override file", func(t *testing.T) {
		cfg, err := ParseFlags([]string{"-config", path, "-port", "9100"})
		if err != nil {
			t.Fatalf("ParseFlags error: %v", err)
		}
		if cfg.Port != 9100 {
			t.Errorf("Port = %d, want flag value 9100", cfg.Port)
		}
		if cfg.UnoPort != 9002 {
			t.Errorf("UnoPort = %d, want file value 9002", cfg.UnoPort)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := ParseFlags([]string{"-config", filepath.Join(dir, "nope.yaml")}); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("unknown key errors", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(bad, []byte("no_such_key: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := ParseFlags([]string{"-config", bad}); err == nil {
			t.Error("expected error for unknown config key")
		}
	})
}
