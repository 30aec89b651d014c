package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/Shanbot/internal/lockfile"
)

func newDispatchCmd(flags *rootFlags) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver scheduled replies whose send time has passed",
		Long:  "Dispatch polls the scheduled reply queue and sends due replies through ManyChat. Only one dispatcher may run per state directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			lock, err := lockfile.AcquireLock(cfg.StateDir, lockfile.DispatcherLock)
			if err != nil {
				return err
			}
			defer lock.Release()

			a, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.newDispatcher()
			if err != nil {
				return err
			}

			if once {
				report, err := d.DispatchDue(cmd.Context())
				if err != nil {
					return err
				}
				slog.Info("dispatch: single pass finished", "due", report.Due, "sent", report.Sent,
					"failed", report.Failed, "skipped", report.Skipped)
				return nil
			}

			sched, err := a.startExportJob()
			if err != nil {
				return err
			}
			defer sched.Stop()

			slog.Info("dispatch: dispatcher started", "interval", cfg.Dispatch.Interval, "batch_limit", cfg.Dispatch.BatchLimit)
			d.Run(cmd.Context())
			slog.Info("dispatch: dispatcher stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}
