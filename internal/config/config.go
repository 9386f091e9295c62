// Package config loads the application configuration from defaults, an
// optional YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "SPONSORBOT"

// Variables understood for compatibility with older deployments.
const (
	legacyTokenEnv    = "TELEGRAM_BOT_TOKEN"
	legacyAdminIDsEnv = "ADMIN_CHAT_IDS"
	legacyPortEnv     = "PORT"
)

// Config is the root configuration of the bot.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Boost     BoostConfig     `mapstructure:"boost"`
	Session   SessionConfig   `mapstructure:"session"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds the bot credentials and the admin allow-list.
type TelegramConfig struct {
	Token    string  `mapstructure:"token"     validate:"required"`
	AdminIDs []int64 `mapstructure:"admin_ids" validate:"required,min=1,dive,ne=0"`
	// SendRate is the maximum number of outgoing messages per second.
	SendRate int `mapstructure:"send_rate" validate:"min=1,max=30"`
	// BotInfo is filled at startup from getMe.
	BotInfo *models.User `mapstructure:"-"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	CORSOrigin      string        `mapstructure:"cors_origin"      validate:"required"`
}

// UploadsConfig controls where photos are stored and how they are served.
type UploadsConfig struct {
	Dir             string        `mapstructure:"dir"              validate:"required"`
	URLPrefix       string        `mapstructure:"url_prefix"       validate:"required,startswith=/"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"min=1s,max=5m"`
	MaxBytes        int64         `mapstructure:"max_bytes"        validate:"min=1"`
}

type BoostConfig struct {
	MinTarget int           `mapstructure:"min_target" validate:"min=0"`
	MaxTarget int           `mapstructure:"max_target" validate:"gtefield=MinTarget"`
	Duration  time.Duration `mapstructure:"duration"   validate:"min=1m"`
}

type SessionConfig struct {
	TTL     time.Duration `mapstructure:"ttl"      validate:"min=1m"`
	MaxSize int           `mapstructure:"max_size" validate:"min=1"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig schedules a task either on a cron expression (with seconds) or
// on a fixed interval.
type TaskConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"                validate:"omitempty,url"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" validate:"min=0,max=1"`
	Debug            bool    `mapstructure:"debug"`
}

// MessagesConfig overrides the user-facing texts that operators commonly change.
type MessagesConfig struct {
	Welcome      string `mapstructure:"welcome"       validate:"required"`
	Unauthorized string `mapstructure:"unauthorized"  validate:"required"`
	GenericError string `mapstructure:"generic_error" validate:"required"`
	Cancelled    string `mapstructure:"cancelled"     validate:"required"`
}

// LoadConfig reads configuration in increasing order of precedence: defaults,
// the YAML file at path (optional), legacy environment variables and
// SPONSORBOT_* environment variables. A .env file in the working directory is
// loaded into the environment first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", legacyTokenEnv); err != nil {
		return nil, fmt.Errorf("failed to bind token environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyLegacyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks struct constraints and the task schedules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" && task.Interval <= 0 {
			return fmt.Errorf("scheduler task %q is enabled but has neither schedule nor interval", name)
		}
	}
	return nil
}

// IsAdmin reports whether chatID is in the admin allow-list.
func (c *Config) IsAdmin(chatID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func applyLegacyEnv(cfg *Config) error {
	if _, set := os.LookupEnv(EnvPrefix + "_TELEGRAM_ADMIN_IDS"); !set {
		if raw := os.Getenv(legacyAdminIDsEnv); raw != "" {
			ids, err := ParseChatIDs(raw)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", legacyAdminIDsEnv, err)
			}
			cfg.Telegram.AdminIDs = ids
		}
	}

	if _, set := os.LookupEnv(EnvPrefix + "_HTTP_ADDR"); !set {
		if port := os.Getenv(legacyPortEnv); port != "" {
			if _, err := strconv.ParseUint(port, 10, 16); err != nil {
				return fmt.Errorf("invalid %s %q: %w", legacyPortEnv, port, err)
			}
			cfg.HTTP.Addr = ":" + port
		}
	}
	return nil
}

// ParseChatIDs parses a comma-separated list of chat IDs. Empty entries are skipped.
func ParseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
