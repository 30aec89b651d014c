// Package config loads Shanbot settings from an optional YAML file, a .env file and the environment.
//
// Precedence, lowest first: built-in defaults, YAML file, environment (including .env), CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/Shanbot/internal/scheduler"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// Defaults.
const (
	DefaultStateDir      = "/var/lib/shanbot"
	DefaultAPIAddr       = ":8080"
	DefaultBotName       = "Shannon"
	DefaultExportCron    = "*/5 * * * *"
	DefaultLogLevel      = "info"
	DefaultDBFile        = "shanbot.db"
	DefaultAnalyticsFile = "analytics_data.json"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// Config is the full runtime configuration.
type Config struct {
	StateDir      string   `yaml:"state_dir"`
	DatabaseURL   string   `yaml:"database_url"`
	AnalyticsFile string   `yaml:"analytics_file"`
	APIAddr       string   `yaml:"api_addr"`
	LogLevel      string   `yaml:"log_level"`
	CORSOrigins   []string `yaml:"cors_origins"`
	PersonaDir    string   `yaml:"persona_dir"`
	ExportCron    string   `yaml:"export_cron"`

	Bot      BotConfig      `yaml:"bot"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	ManyChat ManyChatConfig `yaml:"manychat"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// BotConfig controls reply behaviour.
type BotConfig struct {
	Name          string        `yaml:"name"`
	SignupURL     string        `yaml:"signup_url"`
	AutoMode      bool          `yaml:"auto_mode"`
	MinReplyDelay time.Duration `yaml:"min_reply_delay"`
	MaxReplyDelay time.Duration `yaml:"max_reply_delay"`
}

// GeminiConfig holds the AI provider settings.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ManyChatConfig holds the chat platform credentials.
type ManyChatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TwilioConfig holds the coach SMS alert settings. Alerts are off unless all fields are set.
type TwilioConfig struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	FromNumber  string `yaml:"from_number"`
	CoachNumber string `yaml:"coach_number"`
}

// Enabled reports whether coach alerts can be sent.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != "" && t.CoachNumber != ""
}

// DispatchConfig tunes the scheduled reply dispatcher.
type DispatchConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchLimit int           `yaml:"batch_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDir:   DefaultStateDir,
		APIAddr:    DefaultAPIAddr,
		LogLevel:   DefaultLogLevel,
		ExportCron: DefaultExportCron,
		Bot: BotConfig{
			Name:          DefaultBotName,
			MinReplyDelay: scheduler.DefaultMinDelay,
			MaxReplyDelay: scheduler.DefaultMaxDelay,
		},
		Gemini:   GeminiConfig{Model: DefaultGeminiModel},
		Dispatch: DispatchConfig{Interval: 60 * time.Second, BatchLimit: 50},
	}
}

// Load builds the configuration. An empty path skips the YAML file; a named file must exist.
// A .env file in the working directory is loaded if present and never overrides real env vars.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config.Load: .env file unreadable", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		slog.Debug("config.Load: file loaded", "path", path)
	}
	cfg.applyEnv()
	cfg.fillDerived()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.StateDir, "SHANBOT_STATE_DIR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.AnalyticsFile, "ANALYTICS_FILE")
	setString(&c.APIAddr, "API_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.PersonaDir, "PERSONA_DIR")
	setString(&c.ExportCron, "EXPORT_CRON")
	if origins := util.ParseListEnv("CORS_ORIGINS"); len(origins) > 0 {
		c.CORSOrigins = origins
	}

	setString(&c.Bot.Name, "BOT_NAME")
	setString(&c.Bot.SignupURL, "SIGNUP_URL")
	c.Bot.AutoMode = util.ParseBoolEnv("AUTO_MODE", c.Bot.AutoMode)
	c.Bot.MinReplyDelay = util.ParseDurationEnv("MIN_REPLY_DELAY", c.Bot.MinReplyDelay)
	c.Bot.MaxReplyDelay = util.ParseDurationEnv("MAX_REPLY_DELAY", c.Bot.MaxReplyDelay)

	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Gemini.BaseURL, "GEMINI_BASE_URL")

	setString(&c.ManyChat.APIKey, "MANYCHAT_API_KEY")
	setString(&c.ManyChat.BaseURL, "MANYCHAT_BASE_URL")

	setString(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.Twilio.FromNumber, "TWILIO_FROM_NUMBER")
	setString(&c.Twilio.CoachNumber, "COACH_PHONE_NUMBER")

	c.Dispatch.Interval = util.ParseDurationEnv("DISPATCH_INTERVAL", c.Dispatch.Interval)
}

// fillDerived resolves paths that default to locations inside the state directory.
func (c *Config) fillDerived() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = filepath.Join(c.StateDir, DefaultDBFile)
	}
	if c.AnalyticsFile == "" {
		c.AnalyticsFile = filepath.Join(c.StateDir, DefaultAnalyticsFile)
	}
}

// SetStateDir changes the state directory and re-derives the paths that were derived from the old one.
func (c *Config) SetStateDir(dir string) {
	if dir == "" || dir == c.StateDir {
		return
	}
	if c.DatabaseURL == filepath.Join(c.StateDir, DefaultDBFile) {
		c.DatabaseURL = ""
	}
	if c.AnalyticsFile == filepath.Join(c.StateDir, DefaultAnalyticsFile) {
		c.AnalyticsFile = ""
	}
	c.StateDir = dir
	c.fillDerived()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("state directory is required")
	}
	if c.APIAddr == "" {
		return errors.New("API address is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := scheduler.ValidateCron(c.ExportCron); err != nil {
		return fmt.Errorf("export cron: %w", err)
	}
	if c.Bot.Name == "" {
		return errors.New("bot name is required")
	}
	if c.Bot.MinReplyDelay <= 0 {
		return fmt.Errorf("min reply delay must be positive, got %s", c.Bot.MinReplyDelay)
	}
	if c.Bot.MaxReplyDelay < c.Bot.MinReplyDelay {
		return fmt.Errorf("max reply delay %s is below min reply delay %s", c.Bot.MaxReplyDelay, c.Bot.MinReplyDelay)
	}
	if c.Dispatch.Interval <= 0 {
		return fmt.Errorf("dispatch interval must be positive, got %s", c.Dispatch.Interval)
	}
	if c.Dispatch.BatchLimit <= 0 {
		return fmt.Errorf("dispatch batch limit must be positive, got %d", c.Dispatch.BatchLimit)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
