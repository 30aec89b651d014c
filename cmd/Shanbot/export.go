package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/lockfile"
)

func newExportCmd(flags *rootFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Merge the analytics file into another path, or rewrite it in place",
		Long:  "Export loads the analytics file and merges it into --out (default: the analytics file itself), refreshing derived fields.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			lock, err := lockfile.AcquireLock(cfg.StateDir, lockfile.ExportLock)
			if err != nil {
				return err
			}
			defer lock.Release()

			tracker := analytics.NewTracker(cfg.AnalyticsFile, analytics.WithRules(analytics.NewRules(cfg.Bot.SignupURL)))
			if err := tracker.Load(cfg.AnalyticsFile); err != nil {
				return err
			}
			dest := out
			if dest == "" {
				dest = cfg.AnalyticsFile
			}
			if err := tracker.Export(dest); err != nil {
				return err
			}
			g := tracker.Global()
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d conversations (%d messages) to %s\n",
				g.TotalConversations, g.TotalMessages, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination file (default: the analytics file)")
	return cmd
}
