package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"mentorbook/cron"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the reservation expiry worker and periodic sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			worker := cron.NewWorker(cfg, a.service, logger)
			if err := worker.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			worker.Shutdown()
			return nil
		},
	}
}
