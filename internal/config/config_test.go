package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bucket.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if *cfg != Default() {
			t.Errorf("Load() = %+v, want %+v", *cfg, Default())
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("file", func(t *testing.T) {
		p := writeConfig(t, "root: /var/lib/bucket\ncodec: cbor\nhistory: true\nlog_level: debug\n")
		cfg, err := Load(p)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		want := Default()
		want.Root = "/var/lib/bucket"
		want.Codec = "cbor"
		want.History = true
		want.LogLevel = "debug"
		if *cfg != want {
			t.Errorf("Load() = %+v, want %+v", *cfg, want)
		}
	})

	t.Run("environment", func(t *testing.T) {
		p := writeConfig(t, "root: /from/file\ncodec: cbor\n")
		t.Setenv("BUCKET_ROOT", "/from/env")
		t.Setenv("BUCKET_LOG_LEVEL", "warn")
		t.Setenv("BUCKET_HISTORY", "true")
		cfg, err := Load(p)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Root != "/from/env" || cfg.Codec != "cbor" || cfg.LogLevel != "warn" || !cfg.History {
			t.Errorf("Load() = %+v", *cfg)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name  string
			setup func(t *testing.T) string
		}{
			{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
			{"bad yaml", func(t *testing.T) string { return writeConfig(t, "root: [unclosed\n") }},
			{"bad history", func(t *testing.T) string {
				t.Setenv("BUCKET_HISTORY", "maybe")
				return ""
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := Load(tt.setup(t)); err == nil {
					t.Error("Load() succeeded")
				}
			})
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"empty root", func(c *Config) { c.Root = "" }},
		{"unknown codec", func(c *Config) { c.Codec = "xml" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"history without author", func(c *Config) { c.History = true; c.GitEmail = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() succeeded")
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		c := Config{LogLevel: tt.in}
		got, err := c.Level()
		if err != nil || got != tt.want {
			t.Errorf("Level(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
