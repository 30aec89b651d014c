package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/lockfile"
	"github.com/BTreeMap/Shanbot/internal/messaging"
)

// clearEnv keeps the developer's environment out of config loading.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SHANBOT_STATE_DIR", "DATABASE_URL", "ANALYTICS_FILE", "PERSONA_DIR", "EXPORT_CRON", "LOG_LEVEL",
		"GEMINI_API_KEY", "MANYCHAT_API_KEY", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "shanbot dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"serve", "dispatch", "export", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output should list %q, got: %s", sub, out)
		}
	}
}

func TestExecute_ReportsErrors(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"export", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	if code := execute(context.Background(), cmd); code != 1 {
		t.Errorf("execute = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "missing.yaml") {
		t.Errorf("error output should name the config file, got: %s", buf.String())
	}
}

func TestExportCmd(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	seed := analytics.NewTracker(filepath.Join(dir, "analytics_data.json"))
	if _, err := seed.RecordMessage("42", analytics.Message{Text: "hey", Type: analytics.MessageTypeUser, Timestamp: "2024-06-01T09:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if err := seed.Save(); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "copy.json")
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"export", "--state-dir", dir, "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(buf.String(), "exported 1 conversations") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	copied := analytics.NewTracker(out)
	if err := copied.Load(out); err != nil {
		t.Fatalf("Load copy failed: %v", err)
	}
	if conv, ok := copied.Snapshot("42"); !ok || conv.Metrics.UserMessages != 1 {
		t.Errorf("copied conversation = %+v, %v", conv.Metrics, ok)
	}
	if _, err := os.Stat(filepath.Join(dir, lockfile.ExportLock)); !os.IsNotExist(err) {
		t.Errorf("export lock should be released, stat err = %v", err)
	}
}

func TestExportCmd_LockHeld(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	lock, err := lockfile.AcquireLock(dir, lockfile.ExportLock)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"export", "--state-dir", dir})
	err = cmd.Execute()
	var held *lockfile.LockError
	if !errors.As(err, &held) {
		t.Fatalf("export with held lock = %v, want *LockError", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := loadConfig(&rootFlags{stateDir: dir, logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.StateDir != dir || cfg.DatabaseURL != filepath.Join(dir, "shanbot.db") || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := loadConfig(&rootFlags{stateDir: dir, logLevel: "loud"}); err == nil {
		t.Error("unknown log level should fail validation")
	}
}

func TestBootstrap_WithoutIntegrations(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := loadConfig(&rootFlags{stateDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	a, err := bootstrap(cfg)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	defer a.close()

	if a.replies != nil {
		t.Error("ManyChat should be disabled without an API key")
	}
	if _, err := a.newDispatcher(); !errors.Is(err, messaging.ErrNotConfigured) {
		t.Errorf("newDispatcher = %v, want ErrNotConfigured", err)
	}

	if _, err := a.tracker.RecordMessage("7", analytics.Message{Text: "hi", Type: analytics.MessageTypeUser, Timestamp: "2024-06-01T09:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if err := a.exportAnalytics(); err != nil {
		t.Fatalf("exportAnalytics failed: %v", err)
	}
	if _, err := os.Stat(cfg.AnalyticsFile); err != nil {
		t.Errorf("analytics file not written: %v", err)
	}

	sched, err := a.startExportJob()
	if err != nil {
		t.Fatalf("startExportJob failed: %v", err)
	}
	if sched.Len() != 1 {
		t.Errorf("scheduled jobs = %d, want 1", sched.Len())
	}
	sched.Stop()
}

func TestApp_ExportSkipsWhileLockHeld(t *testing.T) {
	clearEnv(t)
	cfg, err := loadConfig(&rootFlags{stateDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	a, err := bootstrap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.tracker.RecordMessage("7", analytics.Message{Text: "hi", Type: analytics.MessageTypeUser, Timestamp: "2024-06-01T09:00:00Z"}); err != nil {
		t.Fatal(err)
	}

	held, err := lockfile.AcquireLock(cfg.StateDir, lockfile.ExportLock)
	if err != nil {
		t.Fatal(err)
	}
	var lockErr *lockfile.LockError
	if err := a.exportLocked(); !errors.As(err, &lockErr) {
		t.Errorf("exportLocked with held lock = %v, want *LockError", err)
	}
	if err := a.exportAnalytics(); err != nil {
		t.Errorf("exportAnalytics with held lock = %v, want nil", err)
	}
	if _, err := os.Stat(cfg.AnalyticsFile); !os.IsNotExist(err) {
		t.Errorf("analytics file written while lock held, stat err = %v", err)
	}
	if err := held.Release(); err != nil {
		t.Fatal(err)
	}

	if err := a.exportLocked(); err != nil {
		t.Fatalf("exportLocked after release failed: %v", err)
	}
	if _, err := os.Stat(cfg.AnalyticsFile); err != nil {
		t.Errorf("analytics file not written: %v", err)
	}
	a.close()
}

func TestBootstrap_ManyChatDispatcher(t *testing.T) {
	clearEnv(t)
	t.Setenv("MANYCHAT_API_KEY", "mc-test-key")
	cfg, err := loadConfig(&rootFlags{stateDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	a, err := bootstrap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()

	d, err := a.newDispatcher()
	if err != nil || d == nil {
		t.Fatalf("newDispatcher = %v, %v", d, err)
	}
	report, err := d.DispatchDue(context.Background())
	if err != nil || report.Due != 0 {
		t.Errorf("empty queue pass = %+v, %v", report, err)
	}
}
