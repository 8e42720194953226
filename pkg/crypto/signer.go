package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// Signer produces Ed25519 signatures over the canonical encoding of a payload.
// Signing is pure: the same payload and key always yield the same signature.
type Signer struct {
	keys *KeyManager
}

// NewSigner creates a Signer bound to the given KeyManager.
func NewSigner(keys *KeyManager) *Signer {
	return &Signer{keys: keys}
}

// KeyID returns the id of the key this signer uses.
func (s *Signer) KeyID() string {
	return s.keys.KeyID()
}

// PublicKey returns the public half of the signing key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.keys.PublicKey()
}

// Sign canonicalizes payload and returns the base64 encoded 64-byte signature.
func (s *Signer) Sign(payload any) (string, error) {
	msg, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(s.keys.private, msg)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks signature against the signer's own public key.
func (s *Signer) Verify(payload any, signature string) bool {
	return Verify(payload, signature, s.keys.public)
}

// Verify reports whether signature is a valid Ed25519 signature by pub over the
// canonical encoding of payload. Malformed input of any kind yields false.
func Verify(payload any, signature string, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// DecodePublicKey parses a base64 encoded raw Ed25519 public key.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKeyMaterial, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodePublicKey returns the raw public key in standard base64.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}
