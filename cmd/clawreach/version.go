package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionCmd prints the build version.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clawreach %s (%s, %s/%s)\n", AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
