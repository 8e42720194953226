package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// KeyIDLength is the number of hex characters in a public key id (8 bytes).
const KeyIDLength = 16

// Algorithm is the only signature algorithm AnchorBadge issues with.
const Algorithm = "Ed25519"

// Common errors returned while loading key material.
var (
	ErrInvalidKeyMaterial = errors.New("invalid Ed25519 key material")
	ErrNotPrivateKey      = errors.New("jwk does not hold an Ed25519 private key")
)

// KeyManager holds the single active Ed25519 keypair of the issuer.
//
// It is built once at process start and never mutated afterwards, so it can be
// shared by any number of goroutines. The private key is only reachable from a
// Signer in this package.
type KeyManager struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	keyID   string
}

// NewKeyManager builds a KeyManager from opaque key bytes: either a 32-byte
// Ed25519 seed or a 64-byte Ed25519 private key.
func NewKeyManager(key []byte) (*KeyManager, error) {
	var priv ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		priv = make(ed25519.PrivateKey, ed25519.PrivateKeySize)
		copy(priv, key)
		// A 64-byte key carries its public half; reject keys whose halves disagree.
		derived := ed25519.NewKeyFromSeed(priv.Seed())
		if !derived.Equal(priv) {
			return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKeyMaterial)
		}
	default:
		return nil, fmt.Errorf("%w: got %d bytes, want %d or %d",
			ErrInvalidKeyMaterial, len(key), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pub := priv.Public().(ed25519.PublicKey)
	return &KeyManager{
		private: priv,
		public:  pub,
		keyID:   PublicKeyID(pub),
	}, nil
}

// NewKeyManagerFromBase64 decodes standard base64 key bytes and calls NewKeyManager.
func NewKeyManagerFromBase64(encoded string) (*KeyManager, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return NewKeyManager(raw)
}

// LoadKeyManagerFromJWK builds a KeyManager from a private OKP JWK document,
// as written by `anchorbadge key gen`.
func LoadKeyManagerFromJWK(data []byte) (*KeyManager, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("failed to parse private JWK: %w", err)
	}
	priv, ok := jwk.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotPrivateKey
	}
	return NewKeyManager(priv)
}

// PublicKeyID derives the short key identifier carried in badges:
// the first 8 bytes of SHA-256(publicKey), hex encoded.
func PublicKeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])[:KeyIDLength]
}

// KeyID returns the public key id of the active key.
func (m *KeyManager) KeyID() string {
	return m.keyID
}

// PublicKey returns a copy of the active public key.
func (m *KeyManager) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(m.public))
	copy(out, m.public)
	return out
}

// PublicKeyBase64 returns the raw public key in standard base64.
func (m *KeyManager) PublicKeyBase64() string {
	return EncodePublicKey(m.public)
}

// PublicJWK returns the public key as a JWK with the key id as kid.
func (m *KeyManager) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       m.PublicKey(),
		KeyID:     m.keyID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
}

// JWKS returns a key set holding only the active public key.
func (m *KeyManager) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{m.PublicJWK()}}
}
