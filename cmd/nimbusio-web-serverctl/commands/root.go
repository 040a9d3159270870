// Package commands implements the nimbusio-web-serverctl command tree:
// an operator-facing view of, and limited control over, a running
// gateway's cluster connectivity.
package commands

import (
	"github.com/spf13/cobra"
)

// Flags holds the global flag values shared by every subcommand.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Output    string
}

// RootCmd is the entry point of the nimbusio-web-serverctl command tree.
var RootCmd = &cobra.Command{
	Use:   "nimbusio-web-serverctl",
	Short: "Inspect a running nimbus.io gateway",
	Long: `nimbusio-web-serverctl talks to a running gateway's unauthenticated
/health and /admin/nodes endpoints to report cluster connectivity, show
handoff coverage, and connect or disconnect individual nodes.

Examples:
  # Status of the gateway on localhost
  nimbusio-web-serverctl status

  # Status of a remote gateway, as JSON
  nimbusio-web-serverctl status --server http://gateway.example.com:8090 -o json

  # Which down nodes currently have enough backups for handoff
  nimbusio-web-serverctl handoff

  # Reconnect a node after repair
  nimbusio-web-serverctl connect node-3

  # Force a node down for maintenance
  nimbusio-web-serverctl disconnect node-3`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&Flags.ServerURL, "server", "http://localhost:8090", "Gateway base URL")
	RootCmd.PersistentFlags().StringVarP(&Flags.Output, "output", "o", "table", "Output format: table, json")

	RootCmd.AddCommand(statusCmd)
}
