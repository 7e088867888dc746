package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/kollage.db")
	if cfg.Database.Path != "/tmp/kollage.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Board.Columns != 24 || cfg.Board.RowHeight != 24 || cfg.Board.Gap != 6 {
		t.Fatalf("unexpected grid defaults %+v", cfg.Board)
	}
	if cfg.Board.Overflow != "fixed" {
		t.Fatalf("unexpected overflow %q", cfg.Board.Overflow)
	}
	if cfg.Images.LoadTimeout.Std() != 15*time.Second {
		t.Fatalf("unexpected load timeout %v", cfg.Images.LoadTimeout.Std())
	}
	if cfg.Notify.Debounce.Std() != 150*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.Notify.Debounce.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/kollage.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/kollage.db"

[board]
columns = 12
overflow = "scroll"

[images]
load_timeout = "5s"

[notify]
debounce = "250ms"
redis_addr = "localhost:6379"

[server]
allowed_origins = ["http://localhost:3000"]

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/kollage.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Board.Columns != 12 || cfg.Board.Overflow != "scroll" {
		t.Fatalf("unexpected board overrides %+v", cfg.Board)
	}
	if cfg.Board.RowHeight != 24 {
		t.Fatalf("expected untouched row height to keep default, got %v", cfg.Board.RowHeight)
	}
	if cfg.Images.LoadTimeout.Std() != 5*time.Second {
		t.Fatalf("unexpected load timeout %v", cfg.Images.LoadTimeout.Std())
	}
	if cfg.Notify.Debounce.Std() != 250*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.Notify.Debounce.Std())
	}
	if cfg.Notify.RedisChannel != "kollage.changes" {
		t.Fatalf("expected default channel, got %q", cfg.Notify.RedisChannel)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %#v", cfg.Server.AllowedOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"overflow":      "[board]\noverflow = \"sideways\"\n",
		"columns":       "[board]\ncolumns = 0\n",
		"span":          "[board]\ndefault_column_span = 30\n",
		"duration":      "[notify]\ndebounce = \"soon\"\n",
		"negative gap":  "[board]\ngap = -1.0\n",
		"log level":     "[logging]\nlevel = \"chatty\"\n",
		"redis channel": "[notify]\nredis_addr = \"localhost:6379\"\nredis_channel = \"\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/default.db")); err == nil {
				t.Fatal("expected error for invalid config")
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 1m30s ")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(out) != "1m30s" {
		t.Fatalf("MarshalText() = %q", out)
	}
	if err := d.UnmarshalText([]byte("")); err != nil || d != 0 {
		t.Fatalf("empty duration = %v, %v", d, err)
	}
	if err := d.UnmarshalText([]byte("ten")); err == nil || !strings.Contains(err.Error(), "ten") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
