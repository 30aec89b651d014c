package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"SHANBOT_STATE_DIR", "DATABASE_URL", "ANALYTICS_FILE", "API_ADDR", "LOG_LEVEL", "PERSONA_DIR", "EXPORT_CRON",
	"CORS_ORIGINS", "BOT_NAME", "SIGNUP_URL", "AUTO_MODE", "MIN_REPLY_DELAY", "MAX_REPLY_DELAY",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "MANYCHAT_API_KEY", "MANYCHAT_BASE_URL",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "COACH_PHONE_NUMBER", "DISPATCH_INTERVAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabaseURL != filepath.Join(DefaultStateDir, DefaultDBFile) {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.AnalyticsFile != filepath.Join(DefaultStateDir, DefaultAnalyticsFile) {
		t.Errorf("AnalyticsFile = %q", cfg.AnalyticsFile)
	}
	if cfg.Bot.Name != "Shannon" || cfg.Bot.AutoMode || cfg.Dispatch.Interval != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Twilio.Enabled() {
		t.Error("twilio should be disabled by default")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "shanbot.yaml")
	yamlDoc := `
state_dir: /srv/shanbot
api_addr: ":9090"
cors_origins: ["https://dash.example.com"]
bot:
  name: Coach Sam
  auto_mode: true
  min_reply_delay: 90s
  max_reply_delay: 2h
gemini:
  api_key: from-file
dispatch:
  interval: 30s
  batch_limit: 10
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("AUTO_MODE", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIAddr != ":9090" || cfg.Bot.Name != "Coach Sam" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.Bot.MinReplyDelay != 90*time.Second || cfg.Bot.MaxReplyDelay != 2*time.Hour {
		t.Errorf("delays = %s %s", cfg.Bot.MinReplyDelay, cfg.Bot.MaxReplyDelay)
	}
	if cfg.Gemini.APIKey != "from-env" || cfg.Bot.AutoMode {
		t.Errorf("env should override file: key=%q auto=%v", cfg.Gemini.APIKey, cfg.Bot.AutoMode)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.DatabaseURL != "/srv/shanbot/shanbot.db" || cfg.Dispatch.BatchLimit != 10 {
		t.Errorf("derived = %q, batch = %d", cfg.DatabaseURL, cfg.Dispatch.BatchLimit)
	}
}

func TestLoad_MissingOrBadFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing named config should fail")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("bot: [unclosed"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestSetStateDir(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load("")
	cfg.SetStateDir("/tmp/sb")
	if cfg.DatabaseURL != "/tmp/sb/shanbot.db" || cfg.AnalyticsFile != "/tmp/sb/analytics_data.json" {
		t.Errorf("derived paths not moved: %q %q", cfg.DatabaseURL, cfg.AnalyticsFile)
	}

	cfg.DatabaseURL = "postgres://db/shanbot"
	cfg.SetStateDir("/tmp/other")
	if cfg.DatabaseURL != "postgres://db/shanbot" {
		t.Errorf("explicit DatabaseURL overwritten: %q", cfg.DatabaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad cron", func(c *Config) { c.ExportCron = "every five" }, "export cron"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"zero min delay", func(c *Config) { c.Bot.MinReplyDelay = 0 }, "min reply delay"},
		{"max below min", func(c *Config) { c.Bot.MaxReplyDelay = time.Minute }, "below min"},
		{"zero interval", func(c *Config) { c.Dispatch.Interval = 0 }, "dispatch interval"},
		{"zero batch", func(c *Config) { c.Dispatch.BatchLimit = 0 }, "batch limit"},
		{"no bot name", func(c *Config) { c.Bot.Name = "" }, "bot name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errSub)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range tests {
		if got, err := ParseLevel(in); err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("unknown level should fail")
	}
}
