package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Treecmp/internal/adapter/gdrive"
	"github.com/Ning0612/Treecmp/internal/config"
)

func (a *app) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to remote trees",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "gdrive",
		Short: "Authorize read-only access to Google Drive",
		Long: `Run the OAuth consent flow for Google Drive and store the token.

Requires gdrive.client_id and gdrive.client_secret in the configuration.
The token is written to gdrive.token_path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(a.cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.GDrive.Configured() {
				return fmt.Errorf("gdrive.client_id and gdrive.client_secret must be set")
			}

			auth := gdrive.NewAuthenticator(cfg.GDrive.ClientID, cfg.GDrive.ClientSecret, cfg.GDrive.TokenPath)
			_, err = auth.Authenticate(cmd.Context(), a.in, a.out)
			return err
		},
	})
	return cmd
}
