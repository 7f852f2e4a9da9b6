package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neboloop/clawreach/internal/config"
	"github.com/neboloop/clawreach/internal/defaults"
	"github.com/neboloop/clawreach/internal/logging"
)

// AppVersion is set at build time with -ldflags "-X ...cli.AppVersion=...".
var AppVersion = "dev"

// Shared CLI flags (used across multiple command files)
var (
	cfgFile  string
	logLevel string
	quiet    bool
	jsonLogs bool
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd() *cobra.Command {
	var opts runOptions

	rootCmd := &cobra.Command{
		Use:   "clawreach",
		Short: "ClawReach - streaming voice and camera client",
		Long: `ClawReach streams microphone audio and camera frames to a ClawReach server
over one WebSocket and plays back the audio, display commands and state
updates the server sends.

Just type 'clawreach' to connect with the stored configuration.
Provision the server first with 'clawreach server -u <url>' or
'clawreach provision <json>'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), opts)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: platform data directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "discard all log output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "log as JSON")

	// Root-only flags
	addRunFlags(rootCmd, &opts)

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(ServerCmd())
	rootCmd.AddCommand(ProvisionCmd())
	rootCmd.AddCommand(ConfigCmd())
	rootCmd.AddCommand(VersionCmd())

	return rootCmd
}

// setupLogger installs the process logger from the global flags.
func setupLogger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return logging.Setup(logging.Options{Level: level, Quiet: quiet, JSON: jsonLogs}), nil
}

// openStore returns the config store, creating the data directory on first run.
func openStore() (*config.Store, error) {
	if cfgFile != "" {
		dir := filepath.Dir(cfgFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return config.NewStore(cfgFile, config.NewSecrets(dir)), nil
	}

	dir, err := defaults.EnsureDataDir()
	if err != nil {
		return nil, err
	}
	return config.NewStore(filepath.Join(dir, defaults.ConfigFile), config.NewSecrets(dir)), nil
}
