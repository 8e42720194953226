package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anchorbadge/anchorbadge-core/internal/platform/logger"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/revocation"
)

var (
	revIssuerURL string
	revCachePath string
	revWatch     bool
	revInterval  time.Duration
)

var revocationCmd = &cobra.Command{
	Use:   "revocation",
	Short: "Manage the local revocation cache",
}

var revocationSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new revocations from the issuer",
	Long: `Fetch revocations newer than the cache cursor from the issuer's revocation
feed and merge them into the local cache used by offline verification.

With --watch the command keeps polling until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if revIssuerURL == "" {
			return fmt.Errorf("--issuer is required")
		}
		cache, err := revocation.NewFileCache(revCachePath)
		if err != nil {
			return fmt.Errorf("failed to open revocation cache: %w", err)
		}
		client := badge.NewClient(revIssuerURL)

		if revWatch {
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "info")
			return revocation.NewPoller(cache, client, revInterval, log).Run(cmd.Context())
		}

		n, err := revocation.SyncFrom(cmd.Context(), cache, client)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Synced %d revocation(s); %d cached\n", n, cache.Count())
		return nil
	},
}

var revocationStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the revocation cache state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache, err := revocation.NewFileCache(revCachePath)
		if err != nil {
			return fmt.Errorf("failed to open revocation cache: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Revocations: %d\n", cache.Count())
		if synced := cache.LastSynced(); synced.IsZero() {
			fmt.Fprintln(out, "Last synced: never")
		} else {
			fmt.Fprintf(out, "Last synced: %s\n", synced.Format(time.RFC3339))
		}
		if cache.IsStale(revocation.DefaultStaleThreshold) {
			fmt.Fprintln(out, "⚠️  Cache is stale")
		}
		return nil
	},
}

var revocationClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached revocation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache, err := revocation.NewFileCache(revCachePath)
		if err != nil {
			return fmt.Errorf("failed to open revocation cache: %w", err)
		}
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ Revocation cache cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revocationCmd)
	revocationCmd.AddCommand(revocationSyncCmd)
	revocationCmd.AddCommand(revocationStatusCmd)
	revocationCmd.AddCommand(revocationClearCmd)

	revocationCmd.PersistentFlags().StringVar(&revCachePath, "cache", "", "Revocation cache file (default ~/.anchorbadge/cache/revocations.json)")
	revocationSyncCmd.Flags().StringVar(&revIssuerURL, "issuer", "", "Issuer base URL")
	revocationSyncCmd.Flags().BoolVar(&revWatch, "watch", false, "Keep polling until interrupted")
	revocationSyncCmd.Flags().DurationVar(&revInterval, "interval", revocation.DefaultPollInterval, "Poll interval with --watch")
}
