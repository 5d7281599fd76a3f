package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// DefaultTotalDays is the generated item count for standard layers without a template count.
const DefaultTotalDays = 170

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
	Calendar   CalendarConfig   `toml:"calendar"`
	Server     ServerConfig     `toml:"server"`
	Exceptions ExceptionsConfig `toml:"exceptions"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error | fatal
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type CalendarConfig struct {
	TotalDays         int  `toml:"total_days"`
	IncludeWeekends   bool `toml:"include_weekends"`
	IncludeExceptions bool `toml:"include_exceptions"`
	ClampSplitParts   bool `toml:"clamp_split_parts"`
	ChangeLogLimit    int  `toml:"change_log_limit"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type ExceptionsConfig struct {
	Feeds []FeedConfig `toml:"feeds"`
}

// FeedConfig binds one ICS source to a calendar's exception layer.
type FeedConfig struct {
	Name            string   `toml:"name"`
	CalendarID      string   `toml:"calendar_id"`
	LayerKey        string   `toml:"layer_key"`
	Source          string   `toml:"source"`
	Schedule        string   `toml:"schedule"`
	TargetLayerKeys []string `toml:"target_layer_keys"`
	Replace         bool     `toml:"replace"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     ".flexcal/log",
			},
		},
		Calendar: CalendarConfig{
			TotalDays:         DefaultTotalDays,
			IncludeWeekends:   false,
			IncludeExceptions: true,
			ClampSplitParts:   false,
			ChangeLogLimit:    50,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
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
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev_file is enabled")
	}

	if c.Calendar.TotalDays < 0 {
		return fmt.Errorf("calendar.total_days must be >= 0")
	}
	if c.Calendar.ChangeLogLimit < 0 {
		return fmt.Errorf("calendar.change_log_limit must be >= 0")
	}

	for i, feed := range c.Exceptions.Feeds {
		if strings.TrimSpace(feed.CalendarID) == "" {
			return fmt.Errorf("exceptions.feeds[%d].calendar_id is required", i)
		}
		if strings.TrimSpace(feed.Source) == "" {
			return fmt.Errorf("exceptions.feeds[%d].source is required", i)
		}
		if spec := strings.TrimSpace(feed.Schedule); spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("exceptions.feeds[%d].schedule %q: %w", i, spec, err)
			}
		}
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
