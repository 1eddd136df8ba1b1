package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hovavo/pxt-states/internal/api"
	"github.com/hovavo/pxt-states/internal/infrastructure/config"
)

func tokenCmd(configPath *string) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with security.jwt.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.GetTokenTTL()
			}
			token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to security.jwt.access_token_ttl)")
	return cmd
}
