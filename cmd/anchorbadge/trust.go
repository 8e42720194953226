package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
	"github.com/anchorbadge/anchorbadge-core/pkg/trust"
)

var (
	trustFromJWKS string
	trustIssuer   string
	trustDir      string
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage trusted issuer keys",
	Long: `Manage the local trust store for offline badge verification.

The trust store holds the public keys of issuers whose badges this
verifier accepts, keyed by public key id.

Location: ~/.anchorbadge/trust/ (or $ANCHORBADGE_TRUST_PATH)`,
}

var trustAddCmd = &cobra.Command{
	Use:   "add [jwk-file]",
	Short: "Add an issuer public key to the trust store",
	Example: `  # Add from a JWK file
  anchorbadge trust add issuer.pub.jwk

  # Add from an issuer's JWKS endpoint
  anchorbadge trust add --from-jwks https://badges.example.com/.well-known/jwks.json

  # Same, from the issuer's base URL
  anchorbadge trust add --issuer https://badges.example.com

  # Add from stdin
  curl -s https://badges.example.com/.well-known/jwks.json | anchorbadge trust add --from-jwks -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := trust.NewFileStore(trustDir)
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}

		switch {
		case trustFromJWKS != "":
			return addFromJWKS(cmd, store, trustFromJWKS, trustIssuer)
		case trustIssuer != "" && len(args) == 0:
			return addFromJWKS(cmd, store, badge.NewClient(trustIssuer).JWKSURL(), trustIssuer)
		case len(args) == 0:
			return fmt.Errorf("provide a JWK file path, --from-jwks or --issuer")
		}
		return addFromJWKFile(cmd.OutOrStdout(), store, args[0], strings.TrimSuffix(trustIssuer, "/"))
	},
}

func addFromJWKFile(out io.Writer, store *trust.FileStore, path, issuer string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var key jose.JSONWebKey
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("failed to parse JWK: %w", err)
	}

	keyID, err := store.Add(key)
	if err != nil {
		return fmt.Errorf("failed to add key: %w", err)
	}

	fmt.Fprintf(out, "✅ Added key: %s\n", keyID)
	if issuer != "" {
		if err := store.AddIssuerMapping(issuer, keyID); err != nil {
			return fmt.Errorf("failed to map key to issuer: %w", err)
		}
		fmt.Fprintf(out, "   Mapped to issuer: %s\n", issuer)
	}
	return nil
}

// addFromJWKS trusts the keys of the set at source. Keys are mapped to issuer,
// or to the URL the set was fetched from when issuer is empty.
func addFromJWKS(cmd *cobra.Command, store *trust.FileStore, source, issuer string) error {
	var jwks *jose.JSONWebKeySet
	issuer = strings.TrimSuffix(issuer, "/")

	if source == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		jwks = &jose.JSONWebKeySet{}
		if err := json.Unmarshal(data, jwks); err != nil {
			return fmt.Errorf("failed to parse JWKS: %w", err)
		}
	} else {
		if issuer == "" {
			issuer = strings.TrimSuffix(source, "/.well-known/jwks.json")
		}
		var err error
		jwks, err = crypto.NewJWKSFetcher(time.Minute).Fetch(cmd.Context(), source)
		if err != nil {
			return err
		}
	}

	if len(jwks.Keys) == 0 {
		return fmt.Errorf("JWKS contains no keys")
	}

	added, err := store.AddFromJWKS(jwks, issuer)
	if err != nil {
		return fmt.Errorf("failed to add keys: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Added %d key(s) from JWKS\n", len(added))
	for _, keyID := range added {
		fmt.Fprintf(out, "   - %s\n", keyID)
	}
	if skipped := len(jwks.Keys) - len(added); skipped > 0 {
		fmt.Fprintf(out, "   Skipped %d non-Ed25519 key(s)\n", skipped)
	}
	if issuer != "" {
		fmt.Fprintf(out, "   Mapped to issuer: %s\n", issuer)
	}
	return nil
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted issuer keys",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := trust.NewFileStore(trustDir)
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}

		var keys []jose.JSONWebKey
		if trustIssuer != "" {
			keys, err = store.GetByIssuer(strings.TrimSuffix(trustIssuer, "/"))
			if errors.Is(err, trust.ErrIssuerNotFound) || errors.Is(err, trust.ErrKeyNotFound) {
				err = nil
			}
		} else {
			keys, err = store.List()
		}
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
		issuers, err := store.IssuersByKey()
		if err != nil {
			return fmt.Errorf("failed to read issuer mappings: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, "No trusted keys in store.")
			fmt.Fprintln(out, "\nAdd keys with:")
			fmt.Fprintln(out, "  anchorbadge trust add --from-jwks https://<issuer>/.well-known/jwks.json")
			return nil
		}

		fmt.Fprintf(out, "🔑 Trusted Issuer Keys (%d):\n\n", len(keys))
		for _, key := range keys {
			fmt.Fprintf(out, "  Key ID: %s\n", key.KeyID)
			fmt.Fprintf(out, "    Algorithm: %s\n", key.Algorithm)
			if names := issuers[key.KeyID]; len(names) > 0 {
				fmt.Fprintf(out, "    Issuer: %s\n", strings.Join(names, ", "))
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove [key-id]",
	Short: "Remove an issuer key from the trust store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID := args[0]

		store, err := trust.NewFileStore(trustDir)
		if err != nil {
			return fmt.Errorf("failed to open trust store: %w", err)
		}

		if err := store.Remove(keyID); err != nil {
			if errors.Is(err, trust.ErrKeyNotFound) {
				return fmt.Errorf("key not found: %s", keyID)
			}
			return fmt.Errorf("failed to remove key: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed key: %s\n", keyID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustRemoveCmd)

	trustCmd.PersistentFlags().StringVar(&trustDir, "dir", "", "Trust store directory (default ~/.anchorbadge/trust)")
	trustAddCmd.Flags().StringVar(&trustFromJWKS, "from-jwks", "", "Fetch from JWKS URL or '-' for stdin")
	trustAddCmd.Flags().StringVar(&trustIssuer, "issuer", "", "Issuer base URL; fetches its JWKS unless --from-jwks is set, and maps the keys to it")
	trustListCmd.Flags().StringVar(&trustIssuer, "issuer", "", "Only list keys mapped to this issuer")
}
