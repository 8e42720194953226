package badge_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
	"github.com/anchorbadge/anchorbadge-core/pkg/store"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testKeys(t *testing.T) *crypto.KeyManager {
	t.Helper()
	km, err := crypto.NewKeyManager(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return km
}

type harness struct {
	mgr   *badge.Manager
	store *store.MemoryStore
	clock *fakeClock
	keys  *crypto.KeyManager
}

func newHarness(t *testing.T, opts ...badge.ManagerOption) *harness {
	t.Helper()
	h := &harness{store: store.NewMemoryStore(), clock: newFakeClock(), keys: testKeys(t)}
	h.mgr = newManagerWithStore(t, h.store, h.clock, h.keys, opts...)
	return h
}

func newManagerWithStore(t *testing.T, s badge.Store, clock *fakeClock, km *crypto.KeyManager, opts ...badge.ManagerOption) *badge.Manager {
	t.Helper()
	cfg := badge.DefaultManagerConfig()
	cfg.Now = clock.Now
	cfg.Validity = 24 * time.Hour
	cfg.StoreTimeout = 100 * time.Millisecond
	mgr, err := badge.NewManager(cfg, s, crypto.NewSigner(km), nil, opts...)
	require.NoError(t, err)
	return mgr
}

func gmailAnchor(edu bool) anchor.IdentityAnchor {
	return anchor.IdentityAnchor{Provider: anchor.ProviderGmail, IsEduVerified: edu}
}

func linkedinAnchor() anchor.IdentityAnchor {
	return anchor.IdentityAnchor{Provider: anchor.ProviderLinkedIn}
}

func (h *harness) issue(t *testing.T, subject string, anchors ...anchor.IdentityAnchor) *badge.Badge {
	t.Helper()
	if len(anchors) == 0 {
		anchors = []anchor.IdentityAnchor{gmailAnchor(false)}
	}
	b, err := h.mgr.Issue(context.Background(), subject, anchors)
	require.NoError(t, err)
	return b
}

func (h *harness) verify(t *testing.T, b *badge.Badge) *badge.VerifyResult {
	t.Helper()
	res, err := h.mgr.Verify(context.Background(), b.Token, b.Payload, b.Signature)
	require.NoError(t, err)
	return res
}

// mockStore is a badge.Store driven by testify expectations.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, b *badge.Badge) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) Get(ctx context.Context, token string) (*badge.Badge, error) {
	args := m.Called(ctx, token)
	b, _ := args.Get(0).(*badge.Badge)
	return b, args.Error(1)
}

func (m *mockStore) Revoke(ctx context.Context, token string, at time.Time, reason string) (bool, error) {
	args := m.Called(ctx, token, at, reason)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListActive(ctx context.Context, subjectID string, now time.Time) ([]*badge.Badge, error) {
	args := m.Called(ctx, subjectID, now)
	b, _ := args.Get(0).([]*badge.Badge)
	return b, args.Error(1)
}

func (m *mockStore) RevokedSince(ctx context.Context, since time.Time) ([]badge.Revocation, error) {
	args := m.Called(ctx, since)
	r, _ := args.Get(0).([]badge.Revocation)
	return r, args.Error(1)
}

// blockingStore never answers before the caller's deadline.
type blockingStore struct {
	badge.Store
}

func (blockingStore) Get(ctx context.Context, _ string) (*badge.Badge, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) Put(ctx context.Context, _ *badge.Badge) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) Revoke(ctx context.Context, _ string, _ time.Time, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}
