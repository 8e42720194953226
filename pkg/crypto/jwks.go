package crypto

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// ErrKeyNotInSet is returned when a JWKS holds no Ed25519 key with the requested id.
var ErrKeyNotInSet = errors.New("key id not found in key set")

// DefaultJWKSCacheTTL bounds how long a fetched key set is reused.
const DefaultJWKSCacheTTL = 10 * time.Minute

type jwksEntry struct {
	jwks      *jose.JSONWebKeySet
	expiresAt time.Time
}

// JWKSFetcher downloads issuer key sets and caches them per URL.
type JWKSFetcher struct {
	client *http.Client
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]jwksEntry
}

// NewJWKSFetcher creates a fetcher with a 10 second HTTP timeout.
// A non-positive ttl selects DefaultJWKSCacheTTL.
func NewJWKSFetcher(ttl time.Duration) *JWKSFetcher {
	if ttl <= 0 {
		ttl = DefaultJWKSCacheTTL
	}
	return &JWKSFetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    ttl,
		cache:  make(map[string]jwksEntry),
	}
}

// Flush drops every cached key set.
func (f *JWKSFetcher) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]jwksEntry)
}

// Fetch returns the key set published at url, from cache when still fresh.
func (f *JWKSFetcher) Fetch(ctx context.Context, url string) (*jose.JSONWebKeySet, error) {
	f.mu.RLock()
	entry, found := f.cache[url]
	f.mu.RUnlock()

	if found && time.Now().Before(entry.expiresAt) {
		return entry.jwks, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWKS: status %d", resp.StatusCode)
	}

	var jwks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	f.mu.Lock()
	f.cache[url] = jwksEntry{jwks: &jwks, expiresAt: time.Now().Add(f.ttl)}
	f.mu.Unlock()

	return &jwks, nil
}

// FetchKey returns the Ed25519 public key with the given id from the key set at url.
// The id is recomputed from the key material, so a mislabeled kid is never trusted.
func (f *JWKSFetcher) FetchKey(ctx context.Context, url, keyID string) (ed25519.PublicKey, error) {
	jwks, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	for _, key := range Ed25519Keys(jwks) {
		if PublicKeyID(key) == keyID {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotInSet, keyID)
}

// Ed25519Keys extracts every Ed25519 public key from a key set.
func Ed25519Keys(jwks *jose.JSONWebKeySet) []ed25519.PublicKey {
	var keys []ed25519.PublicKey
	for _, k := range jwks.Keys {
		switch key := k.Key.(type) {
		case ed25519.PublicKey:
			keys = append(keys, key)
		case ed25519.PrivateKey:
			keys = append(keys, key.Public().(ed25519.PublicKey))
		}
	}
	return keys
}
