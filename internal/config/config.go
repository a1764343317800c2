package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/tracing"
)

const (
	// DefaultPath is used when CONFIG_PATH is unset.
	DefaultPath = "./config/answerview.yaml"
	// EnvPrefix prefixes environment overrides, e.g. ANSWERVIEW_SPEECH_ENDPOINT.
	EnvPrefix = "ANSWERVIEW"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CollectInterval time.Duration `mapstructure:"collect_interval"`
}

// RenderConfig holds the answer rendering knobs. SanitizeAnswer and
// AllowedTags are hot reloaded.
type RenderConfig struct {
	SanitizeAnswer bool     `mapstructure:"sanitize_answer"`
	AllowedTags    []string `mapstructure:"allowed_tags"` // empty selects the built-in list
	Style          string   `mapstructure:"style"`
	InstanceCache  int      `mapstructure:"instance_cache"`
}

type SpeechConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Payload        string        `mapstructure:"payload"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	MaxAudioBytes  int64         `mapstructure:"max_audio_bytes"`
	OutputDir      string        `mapstructure:"output_dir"` // empty discards audio
}

type FeedbackConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
	Key     string `mapstructure:"key"`
	Channel string `mapstructure:"channel"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SQLConfig points at the persisted feedback store; an empty DSN disables it.
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Config is the answerd configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Render   RenderConfig   `mapstructure:"render"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SQL      SQLConfig      `mapstructure:"sql"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.collect_interval", 15*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "answerview")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("render.sanitize_answer", true)
	v.SetDefault("render.allowed_tags", []string{})
	v.SetDefault("render.style", "nord")
	v.SetDefault("render.instance_cache", 1024)

	v.SetDefault("speech.endpoint", "http://localhost:5000/speech")
	v.SetDefault("speech.request_timeout", 30*time.Second)
	v.SetDefault("speech.payload", "text")
	v.SetDefault("speech.rate_per_second", 0)
	v.SetDefault("speech.burst", 1)
	v.SetDefault("speech.max_audio_bytes", 32<<20)
	v.SetDefault("speech.output_dir", "")

	v.SetDefault("feedback.backend", "memory")
	v.SetDefault("feedback.key", "answerview:feedback")
	v.SetDefault("feedback.channel", "answerview:feedback:changes")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sql.driver", "postgres")
	v.SetDefault("sql.dsn", "")
}

// Load reads path (missing files fall back to defaults), applies
// ANSWERVIEW_* env overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Feedback.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("feedback.backend: unknown backend %q", c.Feedback.Backend)
	}
	switch c.Speech.Payload {
	case "", "text", "parsed":
	default:
		return fmt.Errorf("speech.payload: unknown mode %q", c.Speech.Payload)
	}
	if c.Speech.RequestTimeout <= 0 {
		return fmt.Errorf("speech.request_timeout must be positive")
	}
	if c.Speech.RatePerSecond < 0 {
		return fmt.Errorf("speech.rate_per_second must not be negative")
	}
	if c.Render.InstanceCache <= 0 {
		return fmt.Errorf("render.instance_cache must be positive")
	}
	for _, tag := range c.Render.AllowedTags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("render.allowed_tags: empty tag")
		}
	}
	return nil
}
