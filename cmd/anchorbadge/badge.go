package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/revocation"
	"github.com/anchorbadge/anchorbadge-core/pkg/trust"
)

var (
	verifyOffline   bool
	verifyIssuerURL string
	verifyTrustDir  string
	verifyCachePath string
)

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Work with trust badges",
	Long: `Work with AnchorBadge trust badges.

A badge is the JSON document returned at issuance: badge_token, the signed
payload, its Ed25519 signature and the signing key id.`,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [badge-file]",
	Short: "Verify a trust badge",
	Long: `Verify a trust badge read from a file, or from stdin when the file is "-".

Online mode asks the issuer, which knows every badge it issued.
Offline mode checks the signature against the local trust store and the
revocation cache instead; refresh the cache with "anchorbadge revocation sync".

Exits non-zero when the badge is not valid.`,
	Example: `  # Online verification against the issuer
  anchorbadge badge verify badge.json --issuer https://badges.example.com

  # Offline verification
  anchorbadge badge verify badge.json --offline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readBadge(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		var res *badge.VerifyResult
		if verifyOffline {
			res, err = verifyBadgeOffline(cmd, b)
		} else {
			if verifyIssuerURL == "" {
				return fmt.Errorf("--issuer is required for online verification (or use --offline)")
			}
			res, err = badge.NewClient(verifyIssuerURL).Verify(cmd.Context(), b)
		}
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		return printVerifyResult(cmd.OutOrStdout(), b, res)
	},
}

func verifyBadgeOffline(cmd *cobra.Command, b *badge.Badge) (*badge.VerifyResult, error) {
	keys, err := trust.NewFileStore(verifyTrustDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open trust store: %w", err)
	}
	cache, err := revocation.NewFileCache(verifyCachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open revocation cache: %w", err)
	}
	if cache.IsStale(revocation.DefaultStaleThreshold) {
		fmt.Fprintln(cmd.ErrOrStderr(), "⚠️  Revocation cache is stale; run \"anchorbadge revocation sync\"")
	}
	return badge.NewOfflineVerifier(keys, cache).Verify(cmd.Context(), b)
}

func readBadge(stdin io.Reader, path string) (*badge.Badge, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read badge: %w", err)
	}

	var b badge.Badge
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse badge: %w", err)
	}
	if b.Token == "" {
		return nil, fmt.Errorf("badge has no badge_token")
	}
	return &b, nil
}

func printVerifyResult(out io.Writer, b *badge.Badge, res *badge.VerifyResult) error {
	if !res.Valid {
		fmt.Fprintf(out, "❌ Badge %s is not valid: %s\n", b.Token, res.Reason)
		if res.RevocationReason != "" {
			fmt.Fprintf(out, "   Revocation reason: %s\n", res.RevocationReason)
		}
		return fmt.Errorf("badge is not valid: %s", res.Reason)
	}

	fmt.Fprintf(out, "✅ Badge %s is valid\n", b.Token)
	fmt.Fprintf(out, "   Subject:     %s\n", b.Payload.Subject)
	if res.TrustScore != nil {
		fmt.Fprintf(out, "   Trust Score: %d\n", *res.TrustScore)
	}
	if res.ExpiresAt != nil {
		fmt.Fprintf(out, "   Expires:     %s\n", res.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(badgeCmd)
	badgeCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyOffline, "offline", false, "Verify with the local trust store and revocation cache")
	verifyCmd.Flags().StringVar(&verifyIssuerURL, "issuer", "", "Issuer base URL for online verification")
	verifyCmd.Flags().StringVar(&verifyTrustDir, "trust-dir", "", "Trust store directory (default ~/.anchorbadge/trust)")
	verifyCmd.Flags().StringVar(&verifyCachePath, "cache", "", "Revocation cache file (default ~/.anchorbadge/cache/revocations.json)")
}
