package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/neboloop/clawreach/internal/config"
)

// ProvisionCmd imports a provisioning document.
func ProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <json|->",
		Short: "Import a provisioning document",
		Long: `Import the provisioning document normally shown as a QR code:

  {"url": "wss://server/clawreach", "token": "optional_token"}

Pass the JSON as the argument, or - to read it from stdin. A running
clawreach picks up the new settings without a restart.

Examples:
  clawreach provision '{"url":"wss://host/clawreach","token":"abc"}'
  zbarimg --raw -q setup.png | clawreach provision -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := []byte(args[0])
			if args[0] == "-" {
				var err error
				if doc, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096)); err != nil {
					return fmt.Errorf("read provisioning document: %w", err)
				}
			}

			p, err := config.ParseProvisioning(doc)
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			cfg, err := store.Load()
			if err != nil {
				return err
			}
			cfg.Apply(p)
			if err := store.Save(cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Server config saved: %s\n", p.URL)
			if p.Token != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Token stored in %s\n", store.Secrets().Backend())
			}
			return nil
		},
	}
}
