// Package revocation provides a verifier-side cache of badge revocations,
// kept current by polling the issuer's revocation feed. It enables offline and
// semi-connected verification.
package revocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// Common errors returned by this package.
var (
	ErrCacheNotFound = errors.New("revocation cache not found")
	ErrCacheCorrupt  = errors.New("revocation cache is corrupt")
)

// DefaultStaleThreshold is the default time after which cache is considered stale.
const DefaultStaleThreshold = 5 * time.Minute

// Cache is the interface for a revocation cache.
type Cache interface {
	// IsRevoked checks if a badge token is in the revocation cache.
	IsRevoked(token string) bool

	// Add adds a revocation to the cache.
	Add(token string, revokedAt time.Time) error

	// Sync merges revocations fetched from the issuer.
	Sync(revocations []badge.Revocation) error

	// LastSynced returns when the cache was last synced.
	LastSynced() time.Time

	// Cursor returns the newest revocation time held, the starting point of
	// the next incremental fetch.
	Cursor() time.Time

	// IsStale returns true if the cache is older than the threshold.
	IsStale(threshold time.Duration) bool

	// Clear clears all revocations from the cache.
	Clear() error
}

var (
	_ Cache = (*FileCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)

// snapshot is the on-disk form of a cache.
type snapshot struct {
	SyncedAt    time.Time          `json:"synced_at"`
	Revocations []badge.Revocation `json:"revocations"`
}

// MemoryCache holds revocations in process memory. It is the index behind
// FileCache and serves long-running verifiers such as the gateway on its own.
type MemoryCache struct {
	mu       sync.RWMutex
	byToken  map[string]badge.Revocation
	syncedAt time.Time
	cursor   time.Time
}

// NewMemoryCache creates an empty cache that reports itself stale.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byToken: make(map[string]badge.Revocation)}
}

// IsRevoked reports whether token has a known revocation.
func (c *MemoryCache) IsRevoked(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byToken[token]
	return ok
}

// Add records a single revocation.
func (c *MemoryCache) Add(token string, revokedAt time.Time) error {
	return c.Sync([]badge.Revocation{{Token: token, RevokedAt: revokedAt}})
}

// Sync merges revocations. Revocations are terminal, so known entries are kept as is.
func (c *MemoryCache) Sync(revocations []badge.Revocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(revocations)
	c.syncedAt = time.Now()
	return nil
}

func (c *MemoryCache) merge(revocations []badge.Revocation) {
	for _, rev := range revocations {
		if _, ok := c.byToken[rev.Token]; ok {
			continue
		}
		c.byToken[rev.Token] = rev
		if rev.RevokedAt.After(c.cursor) {
			c.cursor = rev.RevokedAt
		}
	}
}

// LastSynced returns the time of the last Sync, or zero.
func (c *MemoryCache) LastSynced() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncedAt
}

// Cursor returns the newest revocation time held.
func (c *MemoryCache) Cursor() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// IsStale reports whether the last sync is older than threshold. A cache that
// never synced is always stale.
func (c *MemoryCache) IsStale(threshold time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncedAt.IsZero() || time.Since(c.syncedAt) > threshold
}

// Count returns the number of revocations held.
func (c *MemoryCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byToken)
}

// Clear forgets every revocation and the sync time.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

func (c *MemoryCache) reset() {
	c.byToken = make(map[string]badge.Revocation)
	c.syncedAt = time.Time{}
	c.cursor = time.Time{}
}

// snapshot returns the cache contents ordered by revocation time. Callers hold mu.
func (c *MemoryCache) snapshot() snapshot {
	revs := make([]badge.Revocation, 0, len(c.byToken))
	for _, rev := range c.byToken {
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool {
		if revs[i].RevokedAt.Equal(revs[j].RevokedAt) {
			return revs[i].Token < revs[j].Token
		}
		return revs[i].RevokedAt.Before(revs[j].RevokedAt)
	})
	return snapshot{SyncedAt: c.syncedAt, Revocations: revs}
}

// FileCache is a MemoryCache persisted to a JSON file after every change, so
// one-shot CLI invocations share what earlier syncs fetched.
type FileCache struct {
	*MemoryCache
	path string
}

// DefaultCacheDir returns $ANCHORBADGE_CACHE_PATH, or ~/.anchorbadge/cache.
func DefaultCacheDir() string {
	if dir := os.Getenv("ANCHORBADGE_CACHE_PATH"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".anchorbadge", "cache")
	}
	return filepath.Join(home, ".anchorbadge", "cache")
}

// NewFileCache opens the cache at path, or revocations.json in DefaultCacheDir
// when path is empty. A missing or unreadable file yields an empty, stale cache;
// the file is rewritten on the next change.
func NewFileCache(path string) (*FileCache, error) {
	if path == "" {
		path = filepath.Join(DefaultCacheDir(), "revocations.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileCache{MemoryCache: NewMemoryCache(), path: path}
	if snap, err := readSnapshot(path); err == nil {
		c.merge(snap.Revocations)
		c.syncedAt = snap.SyncedAt
	}
	return c, nil
}

// Path returns the backing file.
func (c *FileCache) Path() string {
	return c.path
}

// Add records a single revocation and persists the cache.
func (c *FileCache) Add(token string, revokedAt time.Time) error {
	return c.Sync([]badge.Revocation{{Token: token, RevokedAt: revokedAt}})
}

// Sync merges revocations and persists the cache.
func (c *FileCache) Sync(revocations []badge.Revocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(revocations)
	c.syncedAt = time.Now()
	return writeSnapshot(c.path, c.snapshot())
}

// Clear empties the cache and removes its file.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

func readSnapshot(path string) (snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot{}, ErrCacheNotFound
		}
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	return snap, nil
}

// writeSnapshot replaces path atomically so a concurrent reader never sees a
// half-written file.
func writeSnapshot(path string, snap snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".revocations-*")
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
