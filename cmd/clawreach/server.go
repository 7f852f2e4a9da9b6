package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/clawreach/internal/config"
)

// ServerCmd sets or shows the server configuration.
func ServerCmd() *cobra.Command {
	var (
		url        string
		token      string
		clearToken bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Configure the ClawReach server",
		Long: `Set the server WebSocket URL and optional bearer token, or show the
current configuration when -u is not given.

The token is stored in the OS keychain when one is available. Omitting -t
keeps the stored token.

Examples:
  clawreach server                                 # Show current config
  clawreach server -u wss://host/clawreach         # Set URL, keep token
  clawreach server -u wss://host/clawreach -t TOK  # Set URL and token
  clawreach server --clear-token                   # Forget the token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if clearToken {
				if err := store.ClearToken(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Token cleared")
			}

			if url == "" && token == "" {
				if clearToken {
					return nil
				}
				cfg, err := store.Load()
				if err != nil {
					return err
				}
				showServerConfig(out, store, cfg)
				return nil
			}

			cfg, err := store.Load()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.ServerURL = url
			}
			if token != "" {
				cfg.Token = token
			}
			if err := store.Save(cfg); err != nil {
				return err
			}

			fmt.Fprintf(out, "Server config saved: %s\n", cfg.ServerURL)
			if token != "" {
				fmt.Fprintf(out, "Token stored in %s\n", store.Secrets().Backend())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "server WebSocket URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "bearer token (optional)")
	cmd.Flags().BoolVar(&clearToken, "clear-token", false, "remove the stored token")

	return cmd
}

func showServerConfig(out io.Writer, store *config.Store, cfg *config.Config) {
	if cfg.ServerURL == "" {
		fmt.Fprintln(out, "No server URL configured")
	} else {
		fmt.Fprintf(out, "Current server URL: %s\n", cfg.ServerURL)
	}
	if cfg.DeviceID != "" {
		fmt.Fprintf(out, "Device ID:          %s\n", cfg.DeviceID)
	}

	switch {
	case cfg.Token == "":
		fmt.Fprintln(out, "Token:              (none)")
	default:
		line := fmt.Sprintf("Token:              (set, %s)", store.Secrets().Backend())
		if exp, ok := config.TokenExpiry(cfg.Token); ok {
			if time.Now().After(exp) {
				line += fmt.Sprintf(" expired %s", exp.Format(time.RFC3339))
			} else {
				line += fmt.Sprintf(" expires %s", exp.Format(time.RFC3339))
			}
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Config file:        %s\n", store.Path())
}
