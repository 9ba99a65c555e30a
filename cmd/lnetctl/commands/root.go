// Package commands implements the lnetctl CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/pkg/lnetclient"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "lnetctl",
	Short: "lnetgo fabric node control client",
	Long: `lnetctl talks to a running lnetd node's HTTP control surface to
inspect and mutate its routing table, portal lazy state, fault
injection, and per-service stats.

Use "lnetctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "lnetd control API address")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(portalCmd)
	rootCmd.AddCommand(faultCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// client builds an lnetclient.Client addressing the --server flag.
func client() *lnetclient.Client {
	return lnetclient.New(serverURL)
}
