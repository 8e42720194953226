// Package anchor models identity anchors: verified links from a subject to an
// external identity provider. Anchors are produced by the OAuth integration and
// consumed read-only by the trust score engine.
package anchor

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Provider names an external identity provider.
type Provider string

// Known providers.
const (
	ProviderGmail    Provider = "gmail"
	ProviderLinkedIn Provider = "linkedin"
)

// ErrInvalidAnchor is returned when an anchor is missing required fields.
var ErrInvalidAnchor = errors.New("invalid identity anchor")

// IdentityAnchor is a connected identity provider account for a subject.
// At most one anchor exists per (subject, provider).
type IdentityAnchor struct {
	SubjectID string   `json:"subject_id,omitempty"`
	Provider  Provider `json:"provider"`

	// ProviderAccountCreatedAt is when the upstream account was opened, if known.
	ProviderAccountCreatedAt *time.Time `json:"provider_account_created_at,omitempty"`

	// ConnectionCount is the upstream network size, if the provider reports one.
	ConnectionCount *int `json:"connection_count,omitempty"`

	// IsEduVerified is set by the OAuth step when the account's email belongs
	// to a verified educational institution.
	IsEduVerified bool `json:"is_edu_verified"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the anchor carries a provider.
func (a IdentityAnchor) Validate() error {
	if a.Provider == "" {
		return errors.Join(ErrInvalidAnchor, errors.New("provider is required"))
	}
	return nil
}

// Store is the read side of the external anchor store.
type Store interface {
	// GetAnchors returns every anchor currently connected for the subject.
	GetAnchors(ctx context.Context, subjectID string) ([]IdentityAnchor, error)
}

// Providers returns the distinct providers present in anchors, sorted by name.
func Providers(anchors []IdentityAnchor) []Provider {
	seen := make(map[Provider]struct{}, len(anchors))
	out := make([]Provider, 0, len(anchors))
	for _, a := range anchors {
		if _, ok := seen[a.Provider]; ok {
			continue
		}
		seen[a.Provider] = struct{}{}
		out = append(out, a.Provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
