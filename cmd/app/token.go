package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telegram-bot-platform/internal/infra/web"
)

func newAdminTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			tok, err := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	return cmd
}
