package badge

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
)

// ErrUnknownKey is returned by a KeySource that does not trust the key id.
var ErrUnknownKey = errors.New("public key id is not trusted")

// KeySource resolves a badge's public key id to a trusted issuer key.
type KeySource interface {
	PublicKeyByID(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// RevocationChecker answers whether a token is known to be revoked.
type RevocationChecker interface {
	IsRevoked(token string) bool
}

// StaticKeySource trusts a fixed set of public keys.
type StaticKeySource map[string]ed25519.PublicKey

// NewStaticKeySource indexes keys by their public key id.
func NewStaticKeySource(keys ...ed25519.PublicKey) StaticKeySource {
	s := make(StaticKeySource, len(keys))
	for _, k := range keys {
		s[crypto.PublicKeyID(k)] = k
	}
	return s
}

// PublicKeyByID implements KeySource.
func (s StaticKeySource) PublicKeyByID(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	if k, ok := s[keyID]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
}

// OfflineVerifier verifies badges without calling the issuer, using locally
// trusted keys and a polled revocation list.
//
// Stored state is unavailable offline, so not_found is never reported and
// revocation is only as fresh as the last sync.
type OfflineVerifier struct {
	keys        KeySource
	revocations RevocationChecker
	now         func() time.Time
}

// OfflineOption configures an OfflineVerifier.
type OfflineOption func(*OfflineVerifier)

// WithClock sets the time source.
func WithClock(now func() time.Time) OfflineOption {
	return func(v *OfflineVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOfflineVerifier creates an OfflineVerifier. revocations may be nil.
func NewOfflineVerifier(keys KeySource, revocations RevocationChecker, opts ...OfflineOption) *OfflineVerifier {
	v := &OfflineVerifier{keys: keys, revocations: revocations, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks b in the order revoked, expired, invalid_signature.
// The expiry comes from the signed payload. Only KeySource faults other than
// ErrUnknownKey are returned as errors.
func (v *OfflineVerifier) Verify(ctx context.Context, b *Badge) (*VerifyResult, error) {
	if b == nil {
		return nil, WrapError(ErrCodeInvalidInput, "badge is required", nil)
	}

	if v.revocations != nil && v.revocations.IsRevoked(b.Token) {
		return failed(OutcomeRevoked), nil
	}
	if v.now().After(time.Unix(b.Payload.ExpiresAt, 0)) {
		return failed(OutcomeExpired), nil
	}
	if b.Payload.Token != b.Token {
		return failed(OutcomeInvalidSignature), nil
	}

	pub, err := v.keys.PublicKeyByID(ctx, b.PublicKeyID)
	if errors.Is(err, ErrUnknownKey) {
		return failed(OutcomeInvalidSignature), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve public key %s: %w", b.PublicKeyID, err)
	}
	if !crypto.Verify(b.Payload, b.Signature, pub) {
		return failed(OutcomeInvalidSignature), nil
	}
	return succeeded(b.Payload), nil
}
