// Command shanbot runs the Shanbot webhook API, the scheduled reply dispatcher and analytics exports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/Shanbot/internal/config"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	stateDir   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "shanbot",
		Short:         "Shanbot: Instagram DM analytics and scheduled follow-ups",
		Long:          "Shanbot records ManyChat conversations, tracks engagement analytics and sends AI replies after a human-looking delay.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.stateDir, "state-dir", "", "state directory (overrides SHANBOT_STATE_DIR)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newDispatchCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shanbot %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// loadConfig applies the CLI overrides on top of file and environment settings, then sets up logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg.SetStateDir(flags.stateDir)
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", cfg.StateDir, err)
	}
	initializeLogger(cfg.LogLevel)
	slog.Debug("Final configuration", "state_dir", cfg.StateDir, "api_addr", cfg.APIAddr,
		"auto_mode", cfg.Bot.AutoMode, "export_cron", cfg.ExportCron)
	return cfg, nil
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}
