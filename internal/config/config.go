package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a Go duration string ("150ms", "15s").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Board    BoardConfig    `toml:"board"`
	Images   ImagesConfig   `toml:"images"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// BoardConfig holds settings applied to newly created boards.
type BoardConfig struct {
	Columns           int     `toml:"columns"`
	RowHeight         float64 `toml:"row_height"`
	Gap               float64 `toml:"gap"`
	DefaultColumnSpan int     `toml:"default_column_span"`
	Overflow          string  `toml:"overflow"` // fixed | scroll
	ViewportWidth     float64 `toml:"viewport_width"`
	ViewportHeight    float64 `toml:"viewport_height"`
}

type ImagesConfig struct {
	LoadTimeout       Duration `toml:"load_timeout"`
	MaxBytes          int64    `toml:"max_bytes"`
	FetchRate         float64  `toml:"fetch_rate"`
	FetchBurst        int      `toml:"fetch_burst"`
	ImportConcurrency int      `toml:"import_concurrency"`
	BlockPrivate      bool     `toml:"block_private"`
}

type NotifyConfig struct {
	Debounce     Duration `toml:"debounce"`
	MirrorPath   string   `toml:"mirror_path"`
	WatchMirror  bool     `toml:"watch_mirror"`
	RedisAddr    string   `toml:"redis_addr"`
	RedisChannel string   `toml:"redis_channel"`
}

type ServerConfig struct {
	HTTPBind       string   `toml:"http_bind"`
	APIEndpoint    string   `toml:"api_endpoint"`
	MCPEndpoint    string   `toml:"mcp_endpoint"`
	LiveEndpoint   string   `toml:"live_endpoint"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Board: BoardConfig{
			Columns:           24,
			RowHeight:         24,
			Gap:               6,
			DefaultColumnSpan: 6,
			Overflow:          "fixed",
			ViewportWidth:     1200,
			ViewportHeight:    800,
		},
		Images: ImagesConfig{
			LoadTimeout:       Duration(15 * time.Second),
			MaxBytes:          20 << 20,
			FetchRate:         8,
			FetchBurst:        4,
			ImportConcurrency: 4,
		},
		Notify: NotifyConfig{
			Debounce:     Duration(150 * time.Millisecond),
			RedisChannel: "kollage.changes",
		},
		Server: ServerConfig{
			HTTPBind:     "127.0.0.1:8080",
			APIEndpoint:  "/api/v1",
			MCPEndpoint:  "/mcp",
			LiveEndpoint: "/live",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".kollage/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	b := c.Board
	if b.Columns < 1 {
		return fmt.Errorf("board.columns must be >= 1, got %d", b.Columns)
	}
	if b.RowHeight <= 0 {
		return fmt.Errorf("board.row_height must be > 0, got %v", b.RowHeight)
	}
	if b.Gap < 0 {
		return fmt.Errorf("board.gap must be >= 0, got %v", b.Gap)
	}
	if b.DefaultColumnSpan < 1 || b.DefaultColumnSpan > b.Columns {
		return fmt.Errorf("board.default_column_span must be within 1..%d, got %d", b.Columns, b.DefaultColumnSpan)
	}
	switch strings.TrimSpace(strings.ToLower(b.Overflow)) {
	case "", "fixed", "scroll":
	default:
		return fmt.Errorf("invalid board.overflow: %q", b.Overflow)
	}
	if b.ViewportWidth < 0 || b.ViewportHeight < 0 {
		return errors.New("board viewport dimensions must be >= 0")
	}

	if c.Images.LoadTimeout < 0 {
		return errors.New("images.load_timeout must be >= 0")
	}
	if c.Images.MaxBytes < 0 {
		return errors.New("images.max_bytes must be >= 0")
	}
	if c.Images.FetchRate < 0 || c.Images.FetchBurst < 0 {
		return errors.New("images.fetch_rate and images.fetch_burst must be >= 0")
	}
	if c.Images.ImportConcurrency < 0 {
		return errors.New("images.import_concurrency must be >= 0")
	}

	if c.Notify.Debounce < 0 {
		return errors.New("notify.debounce must be >= 0")
	}
	if strings.TrimSpace(c.Notify.RedisAddr) != "" && strings.TrimSpace(c.Notify.RedisChannel) == "" {
		return errors.New("notify.redis_channel is required when notify.redis_addr is set")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
