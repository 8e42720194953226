// Package badge issues, verifies and revokes signed trust badges.
package badge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/audit"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
	"github.com/anchorbadge/anchorbadge-core/pkg/metrics"
	"github.com/anchorbadge/anchorbadge-core/pkg/scoring"
)

const (
	// DefaultIssuer is the iss claim used when none is configured.
	DefaultIssuer = "anchorbadge"

	// DefaultValidity is the lifetime of an issued badge.
	DefaultValidity = 30 * 24 * time.Hour

	// DefaultStoreTimeout bounds every store call.
	DefaultStoreTimeout = 5 * time.Second

	maxTokenAttempts = 3
	tracerName       = "github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// ErrNoAnchorStore is returned by operations that need anchors when the
// manager was built without an anchor store.
var ErrNoAnchorStore = errors.New("badge manager has no anchor store")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Issuer is written to the iss claim.
	Issuer string

	// Validity is the time between issuance and expiry. Must be at least a second.
	Validity time.Duration

	// StoreTimeout bounds each store and anchor store call.
	StoreTimeout time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultManagerConfig returns the default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Issuer:       DefaultIssuer,
		Validity:     DefaultValidity,
		StoreTimeout: DefaultStoreTimeout,
		Now:          time.Now,
	}
}

// AuditRecorder receives every verification outcome. Implementations must not
// block the caller for long and cannot report errors.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// Manager drives the badge lifecycle: issue, verify, revoke and list.
//
// It holds no mutable state of its own; all badge state lives in the Store.
type Manager struct {
	cfg     ManagerConfig
	store   Store
	signer  *crypto.Signer
	scorer  *scoring.Engine
	anchors anchor.Store
	audit   AuditRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	newToken func() (string, error)
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithAnchorStore enables IssueForSubject and ScorePreview.
func WithAnchorStore(s anchor.Store) ManagerOption {
	return func(m *Manager) {
		m.anchors = s
	}
}

// WithAuditRecorder sets the recorder that receives verification outcomes.
func WithAuditRecorder(r AuditRecorder) ManagerOption {
	return func(m *Manager) {
		m.audit = r
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithTokenSource replaces the random token generator.
func WithTokenSource(fn func() (string, error)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newToken = fn
		}
	}
}

// NewManager creates a Manager. A nil scorer uses the default weights.
func NewManager(cfg ManagerConfig, store Store, signer *crypto.Signer, scorer *scoring.Engine, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("badge store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Validity < time.Second {
		return nil, fmt.Errorf("badge validity must be at least 1s, got %s", cfg.Validity)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if scorer == nil {
		scorer = scoring.MustDefaultEngine()
	}

	m := &Manager{
		cfg:      cfg,
		store:    store,
		signer:   signer,
		scorer:   scorer,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(tracerName),
		newToken: randomToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// randomToken returns a UUIDv4 drawn from crypto/rand.
func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Issue scores anchors, signs a new badge for subjectID and persists it.
// Each call yields an independent badge, even for the same subject.
func (m *Manager) Issue(ctx context.Context, subjectID string, anchors []anchor.IdentityAnchor) (_ *Badge, err error) {
	ctx, span := m.tracer.Start(ctx, "badge.Issue", trace.WithAttributes(
		attribute.String("badge.subject", subjectID),
		attribute.Int("badge.anchors", len(anchors)),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrInvalidSubject
	}
	if len(anchors) == 0 {
		return nil, ErrNoAnchors
	}
	for _, a := range anchors {
		if err := a.Validate(); err != nil {
			return nil, WrapError(ErrCodeInvalidInput, "invalid anchor", err)
		}
		if a.SubjectID != "" && a.SubjectID != subjectID {
			return nil, WrapError(ErrCodeInvalidInput, "anchor belongs to another subject", anchor.ErrInvalidAnchor)
		}
	}

	result := m.scorer.Score(anchors)
	now := m.now()

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate badge token: %w", err)
		}

		b, err := m.sign(subjectID, token, result, now)
		if err != nil {
			return nil, err
		}

		err = m.put(ctx, b)
		if err == nil {
			span.SetAttributes(attribute.Int("badge.trust_score", result.Score))
			m.metrics.IncIssued(result.Clearance.Label, result.Score)
			m.logger.InfoContext(ctx, "badge issued",
				"subject_id", subjectID,
				"badge_token", token,
				"trust_score", result.Score,
				"clearance", result.Clearance.Label,
				"expires_at", b.ExpiresAt,
			)
			return b.Portable(), nil
		}
		if !errors.Is(err, ErrDuplicateToken) {
			return nil, err
		}
		m.logger.WarnContext(ctx, "badge token collision, retrying", "attempt", attempt)
	}
	return nil, WrapError(ErrCodeUnavailable, "could not allocate a unique badge token", ErrDuplicateToken)
}

// IssueForSubject fetches the subject's anchors and issues a badge from them.
func (m *Manager) IssueForSubject(ctx context.Context, subjectID string) (*Badge, error) {
	anchors, err := m.loadAnchors(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return m.Issue(ctx, subjectID, anchors)
}

func (m *Manager) sign(subjectID, token string, result scoring.Result, now time.Time) (*Badge, error) {
	expires := now.Add(m.cfg.Validity).Truncate(time.Second)
	payload := Payload{
		Subject:     subjectID,
		Issuer:      m.cfg.Issuer,
		IssuedAt:    now.Unix(),
		ExpiresAt:   expires.Unix(),
		TrustScore:  result.Score,
		Token:       token,
		EduVerified: result.EduVerified,
	}
	sig, err := m.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign badge payload: %w", err)
	}
	return &Badge{
		Token:       token,
		Payload:     payload,
		Signature:   sig,
		PublicKeyID: m.signer.KeyID(),
		IssuedAt:    now,
		ExpiresAt:   expires,
	}, nil
}

// Verify checks a presented badge against its stored state and the issuer key.
//
// Checks run in a fixed order and the first failure wins: not_found, revoked,
// expired, invalid_signature. A failed verification is a result, not an error;
// errors are returned only when the store cannot answer.
func (m *Manager) Verify(ctx context.Context, token string, payload Payload, signature string) (_ *VerifyResult, err error) {
	ctx, span := m.tracer.Start(ctx, "badge.Verify")
	defer func() { endSpan(span, err) }()

	now := m.clock()
	b, err := m.get(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var res *VerifyResult
	switch {
	case b == nil:
		res = failed(OutcomeNotFound)
	case b.IsRevoked():
		res = failed(OutcomeRevoked)
		res.RevocationReason = b.RevocationReason
	case b.IsExpired(now):
		res = failed(OutcomeExpired)
	case payload.Token != token || !m.signer.Verify(payload, signature):
		res = failed(OutcomeInvalidSignature)
	default:
		res = succeeded(payload)
	}

	outcome := res.Outcome()
	span.SetAttributes(attribute.String("badge.outcome", string(outcome)))
	if !res.Valid {
		m.logger.DebugContext(ctx, "badge verification failed", "badge_token", token, "reason", outcome)
	}
	m.record(ctx, token, outcome, now)
	return res, nil
}

func (m *Manager) record(ctx context.Context, token string, outcome Outcome, now time.Time) {
	m.metrics.IncVerification(string(outcome))
	if m.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "audit recorder panicked", "panic", r, "badge_token", token)
		}
	}()
	m.audit.Record(ctx, audit.Record{
		BadgeToken: token,
		Outcome:    string(outcome),
		Context:    audit.FromContext(ctx),
		Timestamp:  now,
	})
}

// Revoke marks the badge revoked. It returns false, without error, when the
// badge does not exist or is already revoked. Revocation is permanent.
func (m *Manager) Revoke(ctx context.Context, token, reason string) (_ bool, err error) {
	ctx, span := m.tracer.Start(ctx, "badge.Revoke")
	defer func() { endSpan(span, err) }()

	now := m.now()
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	revoked, err := m.store.Revoke(sctx, token, now, reason)
	m.metrics.ObserveStore("revoke", start)
	if err != nil {
		return false, storeError("revoke", err)
	}

	m.metrics.IncRevocation(revoked)
	span.SetAttributes(attribute.Bool("badge.revoked", revoked))
	if revoked {
		m.logger.InfoContext(ctx, "badge revoked", "badge_token", token, "reason", reason)
	}
	return revoked, nil
}

// Lookup returns the stored badge for token, or ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, token string) (*Badge, error) {
	return m.get(ctx, token)
}

// ListActive returns the subject's unrevoked, unexpired badges, newest first.
func (m *Manager) ListActive(ctx context.Context, subjectID string) (_ []*Badge, err error) {
	ctx, span := m.tracer.Start(ctx, "badge.ListActive")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrInvalidSubject
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	badges, err := m.store.ListActive(sctx, subjectID, m.clock())
	m.metrics.ObserveStore("list_active", start)
	if err != nil {
		return nil, storeError("list active", err)
	}
	if badges == nil {
		badges = []*Badge{}
	}
	return badges, nil
}

// Revocations returns every revocation at or after since, oldest first.
func (m *Manager) Revocations(ctx context.Context, since time.Time) ([]Revocation, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	revs, err := m.store.RevokedSince(sctx, since)
	m.metrics.ObserveStore("revoked_since", start)
	if err != nil {
		return nil, storeError("revoked since", err)
	}
	if revs == nil {
		revs = []Revocation{}
	}
	return revs, nil
}

// PublicKey describes the key badges are signed with.
func (m *Manager) PublicKey() PublicKeyInfo {
	return PublicKeyInfo{
		KeyID:     m.signer.KeyID(),
		PublicKey: crypto.EncodePublicKey(m.signer.PublicKey()),
		Algorithm: crypto.Algorithm,
	}
}

// ScorePreview scores the subject's current anchors without issuing a badge.
func (m *Manager) ScorePreview(ctx context.Context, subjectID string) (scoring.Result, error) {
	anchors, err := m.loadAnchors(ctx, subjectID)
	if err != nil {
		return scoring.Result{}, err
	}
	return m.scorer.Score(anchors), nil
}

func (m *Manager) loadAnchors(ctx context.Context, subjectID string) ([]anchor.IdentityAnchor, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrInvalidSubject
	}
	if m.anchors == nil {
		return nil, ErrNoAnchorStore
	}

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	anchors, err := m.anchors.GetAnchors(sctx, subjectID)
	if err != nil {
		return nil, WrapError(ErrCodeUnavailable, "anchor store get anchors failed", err)
	}
	return anchors, nil
}

func (m *Manager) get(ctx context.Context, token string) (*Badge, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	b, err := m.store.Get(sctx, token)
	m.metrics.ObserveStore("get", start)
	if err != nil {
		return nil, storeError("get", err)
	}
	return b, nil
}

func (m *Manager) put(ctx context.Context, b *Badge) error {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	err := m.store.Put(sctx, b)
	m.metrics.ObserveStore("put", start)
	if err != nil {
		return storeError("put", err)
	}
	return nil
}

// now is the whole-second time written into issued and revoked badges.
func (m *Manager) now() time.Time {
	return m.clock().Truncate(time.Second)
}

// clock is the exact current time. Expiry is judged against it, never against
// the truncated issuance time.
func (m *Manager) clock() time.Time {
	return m.cfg.Now().UTC()
}

// storeError passes store sentinels through and maps every other failure,
// timeouts included, to ErrCodeUnavailable.
func storeError(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateToken) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrCodeUnavailable, "badge store "+op+" timed out", err)
	}
	return WrapError(ErrCodeUnavailable, "badge store "+op+" failed", err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
