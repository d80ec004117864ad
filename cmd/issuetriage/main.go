// Command issuetriage syncs GitHub issues into a local triage database,
// attaches predicted category labels and serves the triage REST API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// userFlag overrides ISSUETRIAGE_USER for a single invocation.
var userFlag string

var rootCmd = &cobra.Command{
	Use:   "issuetriage",
	Short: "Sync GitHub issues into a local triage database",
	Long: `issuetriage keeps a local, per-user copy of GitHub issues, predicts a
category for each one and exposes triage operations over a REST API.

Examples:
  issuetriage register acme/widgets --label bug   # Track a repository
  issuetriage sync 3                              # Re-sync repository 3
  issuetriage import-csv issues.csv               # Bulk-load a spreadsheet
  issuetriage import-project acme 4               # Import project board #4
  issuetriage serve                               # Start the HTTP API`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "Act as this login (overrides ISSUETRIAGE_USER)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(importCSVCmd)
	rootCmd.AddCommand(importProjectCmd)
	rootCmd.AddCommand(projectIssuesCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}
