package cmd

import (
	"fmt"
	"time"

	"mentorbook/config"
	"mentorbook/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		menteeID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a mentee bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(menteeID); err != nil {
				return fmt.Errorf("--mentee must be a UUID: %w", err)
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, err := utils.GenerateToken(cfg.JWTSecret, menteeID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&menteeID, "mentee", "", "mentee id (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("mentee")
	return cmd
}
