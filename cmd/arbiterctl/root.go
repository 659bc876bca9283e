// arbiterctl drives a running arbiter service over its HTTP API, or runs the
// workflow in process against demo fixtures.
//
// Usage:
//
//	arbiterctl submit --customer=<id> [--order=<id>] [--amount=<minor units>] [--message=<text>]
//	arbiterctl list [--state=<state>] [--customer=<id>]
//	arbiterctl show <id> | trace <id> | view <id>
//	arbiterctl verify <id> --status=verified|rejected
//	arbiterctl review <id> | decide <id> --outcome=approve|edit|reject
//	arbiterctl retry <id> | cancel <id>
//	arbiterctl tiers | artifacts [key]
//	arbiterctl demo
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	envURL     = "ARBITER_URL"
	envToken   = "ARBITER_TOKEN"
	defaultURL = "http://localhost:8080/api"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	server string
	token  string
	actor  string
	json   bool
}

var rootCmd = &cobra.Command{
	Use:   "arbiterctl",
	Short: "Operate the arbiter refund workflow",
	Long:  "arbiterctl submits customer requests to arbiter, inspects their\naudit trail, and resolves the verification, review, and approval gates.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.server, "server", envOr(envURL, defaultURL), "API base URL")
	f.StringVar(&rootFlags.token, "token", os.Getenv(envToken), "Bearer token for authenticated deployments")
	f.StringVar(&rootFlags.actor, "as", envOr("USER", "operator"), "Reviewer or operator name when no token identity applies")
	f.BoolVar(&rootFlags.json, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(tiersCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClientFromFlags() *client {
	return newClient(rootFlags.server, rootFlags.token)
}
