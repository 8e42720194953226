package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// DefaultPollInterval is how often a Poller refreshes its cache.
const DefaultPollInterval = time.Minute

// Source is the issuer's revocation feed.
type Source interface {
	Revocations(ctx context.Context, since time.Time) ([]badge.Revocation, error)
}

// SyncFrom fetches revocations newer than the cache cursor and merges them.
// It returns the number of revocations fetched.
func SyncFrom(ctx context.Context, cache Cache, src Source) (int, error) {
	revs, err := src.Revocations(ctx, cache.Cursor())
	if err != nil {
		return 0, fmt.Errorf("failed to fetch revocations: %w", err)
	}
	if err := cache.Sync(revs); err != nil {
		return 0, fmt.Errorf("failed to update revocation cache: %w", err)
	}
	return len(revs), nil
}

// Poller keeps a Cache current by polling a Source.
type Poller struct {
	cache    Cache
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller. A non-positive interval selects DefaultPollInterval.
func NewPoller(cache Cache, source Source, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{cache: cache, source: source, interval: interval, logger: logger}
}

// Run syncs immediately and then on every tick until ctx is done.
// Failed syncs are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		n, err := SyncFrom(ctx, p.cache, p.source)
		if err != nil {
			p.logger.WarnContext(ctx, "revocation sync failed", "error", err)
		} else {
			p.logger.DebugContext(ctx, "revocation sync complete", "fetched", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
