// Package trust provides a verifier-side store of trusted issuer public keys,
// indexed by public key id. It enables offline badge verification.
package trust

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-jose/go-jose/v4"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
)

// Common errors returned by this package.
var (
	ErrKeyNotFound    = errors.New("key not found in trust store")
	ErrIssuerNotFound = errors.New("issuer not found in trust store")
	ErrInvalidKey     = errors.New("invalid key format")
)

// Store is the interface for a trust store.
type Store interface {
	// Add trusts an Ed25519 public key and returns its public key id.
	Add(key jose.JSONWebKey) (string, error)

	// Get retrieves a key by public key id.
	Get(keyID string) (*jose.JSONWebKey, error)

	// GetByIssuer retrieves all keys recorded for an issuer.
	GetByIssuer(issuer string) ([]jose.JSONWebKey, error)

	// List returns all keys in the store, ordered by key id.
	List() ([]jose.JSONWebKey, error)

	// Remove stops trusting a key.
	Remove(keyID string) error

	// AddIssuerMapping records that an issuer publishes a key.
	AddIssuerMapping(issuer, keyID string) error
}

// FileStore implements Store using one JWK file per key.
// Default location: ~/.anchorbadge/trust/
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var (
	_ Store           = (*FileStore)(nil)
	_ badge.KeySource = (*FileStore)(nil)
)

// DefaultTrustDir returns the default trust store directory.
func DefaultTrustDir() string {
	if envPath := os.Getenv("ANCHORBADGE_TRUST_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".anchorbadge/trust"
	}
	return filepath.Join(home, ".anchorbadge", "trust")
}

// NewFileStore creates a new file-based trust store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultTrustDir()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trust directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// keyPath returns the path for a key file. Key ids are hex, but callers may
// pass arbitrary strings, so they are sanitized.
func (s *FileStore) keyPath(keyID string) string {
	return filepath.Join(s.dir, sanitizeFilename(keyID)+".jwk")
}

func (s *FileStore) issuersPath() string {
	return filepath.Join(s.dir, "issuers.json")
}

// Add trusts key. The stored kid is always the id derived from the key
// material, whatever kid the caller supplied.
func (s *FileStore) Add(key jose.JSONWebKey) (string, error) {
	pub, err := publicKeyOf(key)
	if err != nil {
		return "", err
	}
	keyID := crypto.PublicKeyID(pub)
	stored := jose.JSONWebKey{
		Key:       pub,
		KeyID:     keyID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.keyPath(keyID), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write key: %w", err)
	}
	return keyID, nil
}

// Get retrieves a key by public key id.
func (s *FileStore) Get(keyID string) (*jose.JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(keyID)
}

func (s *FileStore) read(keyID string) (*jose.JSONWebKey, error) {
	data, err := os.ReadFile(s.keyPath(keyID))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	var key jose.JSONWebKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return &key, nil
}

// PublicKeyByID implements badge.KeySource. The key id is recomputed from the
// stored key, so a renamed file cannot make a key stand in for another.
func (s *FileStore) PublicKeyByID(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	key, err := s.Get(keyID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", badge.ErrUnknownKey, keyID)
	}
	if err != nil {
		return nil, err
	}
	pub, err := publicKeyOf(*key)
	if err != nil {
		return nil, err
	}
	if crypto.PublicKeyID(pub) != keyID {
		return nil, fmt.Errorf("%w: %s", badge.ErrUnknownKey, keyID)
	}
	return pub, nil
}

// GetByIssuer retrieves all keys recorded for an issuer.
func (s *FileStore) GetByIssuer(issuer string) ([]jose.JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuers, err := s.loadIssuers()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	keyIDs := issuers[issuer]
	if len(keyIDs) == 0 {
		return nil, ErrIssuerNotFound
	}

	var keys []jose.JSONWebKey
	for _, keyID := range keyIDs {
		key, err := s.read(keyID)
		if err != nil {
			continue // Skip removed or unreadable keys
		}
		keys = append(keys, *key)
	}

	if len(keys) == 0 {
		return nil, ErrKeyNotFound
	}
	return keys, nil
}

// List returns all keys in the store, ordered by key id.
func (s *FileStore) List() ([]jose.JSONWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust directory: %w", err)
	}

	var keys []jose.JSONWebKey
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jwk" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		var key jose.JSONWebKey
		if err := json.Unmarshal(data, &key); err != nil {
			continue
		}
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].KeyID < keys[j].KeyID })
	return keys, nil
}

// Remove stops trusting a key and drops it from every issuer mapping.
func (s *FileStore) Remove(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(keyID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrKeyNotFound
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}

	issuers, err := s.loadIssuers()
	if err == nil {
		for issuer, keyIDs := range issuers {
			kept := keyIDs[:0]
			for _, k := range keyIDs {
				if k != keyID {
					kept = append(kept, k)
				}
			}
			if len(kept) == 0 {
				delete(issuers, issuer)
			} else {
				issuers[issuer] = kept
			}
		}
		_ = s.saveIssuers(issuers)
	}

	return nil
}

// AddIssuerMapping records that an issuer publishes a key.
func (s *FileStore) AddIssuerMapping(issuer, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuers, err := s.loadIssuers()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if issuers == nil {
		issuers = make(map[string][]string)
	}

	keyIDs := issuers[issuer]
	for _, k := range keyIDs {
		if k == keyID {
			return nil // Already mapped
		}
	}

	issuers[issuer] = append(keyIDs, keyID)
	return s.saveIssuers(issuers)
}

// IssuersByKey returns, for every mapped key id, the issuers that publish it.
func (s *FileStore) IssuersByKey() (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuers, err := s.loadIssuers()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	byKey := make(map[string][]string)
	for issuer, keyIDs := range issuers {
		for _, keyID := range keyIDs {
			byKey[keyID] = append(byKey[keyID], issuer)
		}
	}
	for _, names := range byKey {
		sort.Strings(names)
	}
	return byKey, nil
}

// AddFromJWKS trusts every Ed25519 key of a JWKS and maps them to issuer when
// one is given. It returns the ids of the keys added.
func (s *FileStore) AddFromJWKS(jwks *jose.JSONWebKeySet, issuer string) ([]string, error) {
	var added []string
	for _, key := range jwks.Keys {
		if _, err := publicKeyOf(key); err != nil {
			continue // Not an Ed25519 signing key
		}
		keyID, err := s.Add(key)
		if err != nil {
			return added, fmt.Errorf("failed to add key %s: %w", key.KeyID, err)
		}
		if issuer != "" {
			if err := s.AddIssuerMapping(issuer, keyID); err != nil {
				return added, fmt.Errorf("failed to map key %s to issuer: %w", keyID, err)
			}
		}
		added = append(added, keyID)
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("%w: key set holds no Ed25519 keys", ErrInvalidKey)
	}
	return added, nil
}

func (s *FileStore) loadIssuers() (map[string][]string, error) {
	data, err := os.ReadFile(s.issuersPath())
	if err != nil {
		return nil, err
	}

	var issuers map[string][]string
	if err := json.Unmarshal(data, &issuers); err != nil {
		return nil, fmt.Errorf("failed to parse issuers file: %w", err)
	}

	return issuers, nil
}

func (s *FileStore) saveIssuers(issuers map[string][]string) error {
	data, err := json.MarshalIndent(issuers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal issuers: %w", err)
	}

	if err := os.WriteFile(s.issuersPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write issuers file: %w", err)
	}

	return nil
}

// publicKeyOf extracts the Ed25519 public key held by a JWK. Private keys are
// reduced to their public half.
func publicKeyOf(key jose.JSONWebKey) (ed25519.PublicKey, error) {
	switch k := key.Key.(type) {
	case ed25519.PublicKey:
		return k, nil
	case ed25519.PrivateKey:
		return k.Public().(ed25519.PublicKey), nil
	default:
		return nil, fmt.Errorf("%w: want an Ed25519 key, got %T", ErrInvalidKey, key.Key)
	}
}

// sanitizeFilename converts a key id to a safe filename.
func sanitizeFilename(keyID string) string {
	safe := make([]byte, 0, len(keyID))
	for _, c := range []byte(keyID) {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '.':
			safe = append(safe, '_')
		default:
			safe = append(safe, c)
		}
	}
	return string(safe)
}
