package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/backupd/internal/health"
	"github.com/kebairia/backupd/internal/logger"
	"github.com/kebairia/backupd/internal/retention"
	"github.com/kebairia/backupd/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup daemon (scheduler + health endpoint)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, ConfigFile)
		if err != nil {
			return err
		}
		log := logger.Component("daemon")

		srv := health.NewServer(rt.cfg.Health.Listen, rt.state, rt.store,
			rt.cfg.Health.StalenessThreshold)

		// The health server never blocks on a backup run; a listener
		// error brings the daemon down since the process would be
		// unobservable without it.
		serverErr := make(chan error, 1)
		go func() {
			serverErr <- srv.ListenAndServe()
		}()

		pipe := rt.newPipeline()
		sched := scheduler.New(
			rt.cfg.Schedule.NightlyInterval,
			rt.cfg.Schedule.WeeklyInterval,
			func(ctx context.Context, kind retention.Kind) {
				// A failed run is reported through health and logs;
				// the daemon keeps running.
				_ = pipe.Run(ctx, kind)
			},
		)

		log.Info("daemon started",
			"listen", rt.cfg.Health.Listen,
			"backup_root", rt.cfg.Backup.Root,
		)

		schedDone := make(chan struct{})
		go func() {
			sched.Start(ctx)
			close(schedDone)
		}()

		select {
		case err := <-serverErr:
			stop()
			<-schedDone
			return err
		case <-ctx.Done():
		}

		<-schedDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("daemon stopped")
		return nil
	},
}
