package cmd

import (
	"fmt"
	"os"

	"mentorbook/config"
	"mentorbook/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Execute runs the root command.
func Execute(version string) {
	rootCmd := &cobra.Command{
		Use:           "mentorbook",
		Short:         "Mentorship booking reservation and scheduling engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.InitializeLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
