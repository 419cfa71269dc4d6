package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionLine is what both `mcp-hive version` and `--version` print.
func versionLine(version string) string {
	return fmt.Sprintf("mcp-hive version %s (%s %s/%s)", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mcp-hive",
		Long:  `Print the mcp-hive release, the Go toolchain it was built with and the platform.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionLine(rootCmd.Version))
		},
	}
}
