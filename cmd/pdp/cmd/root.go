// Package cmd provides the CLI commands for the PDP service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelpdp/pdp/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "pdp",
	Short: "Multi-tenant Cedar policy decision point",
	Long: `pdp is a multi-tenant authorization decision point backed by the
Cedar policy language.

Configuration is environment-variable only (DATABASE_URL, REDIS_URL,
DEFAULT_ALLOW, RATE_LIMIT_RPS_DEFAULT, CLAIMS_SECRET, PDP_LOG, LISTEN_ADDR).

Commands:
  serve       Start the decision point HTTP server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(config.InitViper)
}
