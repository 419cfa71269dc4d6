package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd runs serve when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "mcp-hive",
	Short: "MCP server for OpenShift Hive clusters",
	Long: `mcp-hive is a Model Context Protocol (MCP) server that exposes an
OpenShift Hive management cluster as tools: fleet inventory and statistics,
cluster power state, and generic Kubernetes resource, event and log access.

When run without subcommands, it starts the MCP server (equivalent to 'mcp-hive serve').`,
	SilenceUsage: true,
}

// SetVersion records the release version injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(versionLine(v) + "\n")
}

// Execute runs the command line and exits non-zero on failure. Cobra has
// already printed the error by then.
func Execute() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newServeCmd())
}
