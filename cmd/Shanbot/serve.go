package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/Shanbot/internal/api"
	"github.com/BTreeMap/Shanbot/internal/lockfile"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr           string
		withDispatcher bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and analytics HTTP API",
		Long: "Serve accepts ManyChat webhooks, records analytics and schedules or queues replies. " +
			"With --with-dispatcher it also delivers due replies from the same process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.APIAddr = addr
			}

			a, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := a.startExportJob()
			if err != nil {
				return err
			}
			defer sched.Stop()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			var wg sync.WaitGroup
			if withDispatcher {
				lock, err := lockfile.AcquireLock(cfg.StateDir, lockfile.DispatcherLock)
				if err != nil {
					return err
				}
				defer lock.Release()
				d, err := a.newDispatcher()
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.Run(ctx)
				}()
			}

			srv := api.NewServer(a.engine, a.store, a.planner,
				api.WithAddr(cfg.APIAddr),
				api.WithCORSOrigins(cfg.CORSOrigins),
				api.WithVersion(Version),
				api.WithExporter(a.exportLocked),
			)
			slog.Info("Bootstrapping Shanbot API", "addr", cfg.APIAddr, "auto_mode", cfg.Bot.AutoMode, "dispatcher", withDispatcher)
			err = srv.Run(ctx)
			cancel()
			wg.Wait()
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			slog.Info("Shanbot API exited successfully")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides API_ADDR)")
	cmd.Flags().BoolVar(&withDispatcher, "with-dispatcher", false, "also deliver due replies from this process")
	return cmd
}
