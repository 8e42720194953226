// Package main is the entry point for the AnchorBadge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "anchorbadge",
	Short: "AnchorBadge trust badge issuer and verifier",
	Long: `AnchorBadge issues signed trust badges scored from a subject's connected
identity providers, and verifies or revokes them.

Run "anchorbadge serve" for the issuer API. The remaining commands are
verifier-side tools that work against a running issuer or fully offline.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
