package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
)

var (
	keyOutPrivate string
	keyOutPublic  string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage signing keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new Ed25519 signing key pair",
	Long: `Generate a new Ed25519 key pair for badge issuance.

Outputs:
  - Private key in JWK format (BADGE_SIGNING_KEY_FILE for "anchorbadge serve")
  - Public key in JWK format (for "anchorbadge trust add")

Both JWKs carry the public key id as kid: the first 16 hex characters of
SHA-256 over the raw public key.`,
	Example: `  # Generate keys with default names
  anchorbadge key gen

  # Generate keys with custom names
  anchorbadge key gen --out-priv issuer.key.jwk --out-pub issuer.pub.jwk`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		return writeKeyPair(cmd.OutOrStdout(), priv, pub, keyOutPrivate, keyOutPublic)
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show [jwk-file]",
	Short: "Print the key id and raw public key of a JWK",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read key file: %w", err)
		}
		var jwk jose.JSONWebKey
		if err := json.Unmarshal(data, &jwk); err != nil {
			return fmt.Errorf("failed to parse JWK: %w", err)
		}
		var pub ed25519.PublicKey
		switch k := jwk.Key.(type) {
		case ed25519.PublicKey:
			pub = k
		case ed25519.PrivateKey:
			pub = k.Public().(ed25519.PublicKey)
		default:
			return fmt.Errorf("key in file is not an Ed25519 key")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Key ID:     %s\n", crypto.PublicKeyID(pub))
		fmt.Fprintf(out, "Public Key: %s\n", crypto.EncodePublicKey(pub))
		fmt.Fprintf(out, "Algorithm:  %s\n", crypto.Algorithm)
		return nil
	},
}

func writeKeyPair(out io.Writer, priv ed25519.PrivateKey, pub ed25519.PublicKey, privPath, pubPath string) error {
	kid := crypto.PublicKeyID(pub)

	privJwk := jose.JSONWebKey{
		Key:       priv,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
	pubJwk := jose.JSONWebKey{
		Key:       pub,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}

	privBytes, err := json.MarshalIndent(privJwk, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(privPath, privBytes, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	fmt.Fprintf(out, "✅ Private Key saved to %s\n", privPath)

	pubBytes, err := json.MarshalIndent(pubJwk, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(pubPath, pubBytes, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	fmt.Fprintf(out, "✅ Public Key saved to %s\n", pubPath)
	fmt.Fprintf(out, "🔑 Key ID: %s\n", kid)
	return nil
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyShowCmd)

	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "private.jwk", "Output path for private key (JWK format)")
	keyGenCmd.Flags().StringVar(&keyOutPublic, "out-pub", "public.jwk", "Output path for public key (JWK format)")
}
