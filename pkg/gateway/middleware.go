// Package gateway is the relying-party enforcement point for trust badges:
// middleware and a reverse proxy that admit only requests carrying a valid
// badge of a sufficient clearance.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/scoring"
)

// Request headers. HeaderBadge carries the presented badge; the others are set
// from the verified badge before the request is forwarded.
const (
	HeaderBadge      = "X-Anchor-Badge"
	HeaderSubject    = "X-Anchor-Subject"
	HeaderTrustScore = "X-Anchor-Trust-Score"
	HeaderClearance  = "X-Anchor-Clearance"
)

// ErrNoBadge is returned by ExtractBadge when the request carries no badge.
var ErrNoBadge = errors.New("no trust badge presented")

// Verifier checks a presented badge. *badge.OfflineVerifier and *badge.Client implement it.
type Verifier interface {
	Verify(ctx context.Context, b *badge.Badge) (*badge.VerifyResult, error)
}

var (
	_ Verifier = (*badge.OfflineVerifier)(nil)
	_ Verifier = (*badge.Client)(nil)
)

// Option configures the middleware.
type Option func(*options)

type options struct {
	minClearance scoring.Clearance
	logger       *slog.Logger
}

// WithMinClearance rejects valid badges below c. The default admits every valid badge.
func WithMinClearance(c scoring.Clearance) Option {
	return func(o *options) { o.minClearance = c }
}

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// EncodeBadge renders b for the X-Anchor-Badge header: unpadded base64url JSON.
func EncodeBadge(b *badge.Badge) (string, error) {
	raw, err := json.Marshal(b.Portable())
	if err != nil {
		return "", fmt.Errorf("failed to encode badge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ExtractBadge decodes the badge from X-Anchor-Badge, falling back to
// "Authorization: Badge <encoded>".
func ExtractBadge(r *http.Request) (*badge.Badge, error) {
	encoded := r.Header.Get(HeaderBadge)
	if encoded == "" {
		auth := r.Header.Get("Authorization")
		const prefix = "Badge "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			encoded = strings.TrimSpace(auth[len(prefix):])
		}
	}
	if encoded == "" {
		return nil, ErrNoBadge
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("badge is not base64url: %w", err)
	}
	var b badge.Badge
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("badge is not valid JSON: %w", err)
	}
	if b.Token == "" {
		return nil, errors.New("badge has no badge_token")
	}
	return &b, nil
}

// NewAuthMiddleware creates a middleware that enforces badge validity and the
// minimum clearance. Headers describing the verified badge replace any the
// client sent.
func NewAuthMiddleware(verifier Verifier, next http.Handler, opts ...Option) http.Handler {
	o := options{minClearance: scoring.ClearanceSpectator, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderSubject)
		r.Header.Del(HeaderTrustScore)
		r.Header.Del(HeaderClearance)

		b, err := ExtractBadge(r)
		if errors.Is(err, ErrNoBadge) {
			reject(w, http.StatusUnauthorized, "missing_badge", err.Error())
			return
		}
		if err != nil {
			reject(w, http.StatusBadRequest, "malformed_badge", err.Error())
			return
		}

		res, err := verifier.Verify(r.Context(), b)
		if err != nil {
			o.logger.ErrorContext(r.Context(), "badge verifier unavailable", "error", err, "badge_token", b.Token)
			reject(w, http.StatusBadGateway, "verifier_unavailable", "badge could not be verified")
			return
		}
		if !res.Valid {
			o.logger.DebugContext(r.Context(), "badge rejected", "badge_token", b.Token, "reason", res.Reason)
			reject(w, http.StatusUnauthorized, "invalid_badge", string(res.Reason))
			return
		}

		score := b.Payload.TrustScore
		if res.TrustScore != nil {
			score = *res.TrustScore
		}
		clearance := scoring.ClearanceFor(score)
		if !clearance.AtLeast(o.minClearance) {
			reject(w, http.StatusForbidden, "insufficient_clearance",
				fmt.Sprintf("clearance %s is below %s", clearance.Label, o.minClearance.Label))
			return
		}

		r.Header.Set(HeaderSubject, b.Payload.Subject)
		r.Header.Set(HeaderTrustScore, strconv.Itoa(score))
		r.Header.Set(HeaderClearance, clearance.Label)
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
