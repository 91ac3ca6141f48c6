package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchctl",
	Short: "Command-line client for the orchestrator API",
	Long: `orchctl talks to a running orchestrator-api and inspects its local
configuration.

Examples:
  # Ask a question, letting the model use the calculator
  orchctl chat "what is 17 * 23?" --tools calculator

  # Operator actions
  orchctl quota set alice pro --admin-key $ADMIN_API_KEY
  orchctl audit alice --limit 5 --admin-key $ADMIN_API_KEY

  # Offline checks
  orchctl models validate -f models.yaml
  orchctl estimate "how many tokens is this?"`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().String("server", envOr("ORCHESTRATOR_URL", "http://localhost:8086"), "Orchestrator base URL")
	rootCmd.PersistentFlags().String("user", envOr("ORCHESTRATOR_USER", ""), "User ID sent as X-User-ID when auth is disabled")
	rootCmd.PersistentFlags().String("token", envOr("ORCHESTRATOR_TOKEN", ""), "Bearer token when auth is enabled")
	rootCmd.PersistentFlags().String("admin-key", envOr("ADMIN_API_KEY", ""), "Operator key for admin routes")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout (0 waits for the server)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log HTTP exchanges")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
