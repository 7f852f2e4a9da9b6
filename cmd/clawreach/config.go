package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/clawreach/internal/defaults"
)

// ConfigCmd inspects or resets the configuration file.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or reset the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in default files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := defaults.ListDefaults()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				data, err := defaults.GetDefault(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "==> %s <==\n%s\n", name, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default config file",
		Long: `Restore the default config file. The server URL and device id are
cleared; a token stored in the keychain or token file is kept. Use
'clawreach server --clear-token' to remove it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resetConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config reset: %s\n", path)
			return nil
		},
	})

	return cmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return defaults.ConfigPath()
}

func resetConfig() (string, error) {
	if cfgFile != "" {
		data, err := defaults.GetDefault(defaults.ConfigFile)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(cfgFile, data, 0600); err != nil {
			return "", fmt.Errorf("reset config: %w", err)
		}
		return cfgFile, nil
	}

	dir, err := defaults.EnsureDataDir()
	if err != nil {
		return "", err
	}
	if err := defaults.Reset(dir); err != nil {
		return "", fmt.Errorf("reset config: %w", err)
	}
	return defaults.ConfigPath()
}
