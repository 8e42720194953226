package badge

import (
	"time"
)

// Outcome is the result of a verification attempt.
type Outcome string

// Verification outcomes, in the order they are checked.
const (
	OutcomeNotFound         Outcome = "not_found"
	OutcomeRevoked          Outcome = "revoked"
	OutcomeExpired          Outcome = "expired"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeValid            Outcome = "valid"
)

// Payload is the signed claim of a badge. Changing any field invalidates the signature.
type Payload struct {
	// Subject is the id of the subject the badge was issued to.
	Subject string `json:"sub"`

	// Issuer identifies the issuing service.
	Issuer string `json:"iss"`

	// IssuedAt is the issuance time in unix seconds.
	IssuedAt int64 `json:"iat"`

	// ExpiresAt is the expiry time in unix seconds.
	ExpiresAt int64 `json:"exp"`

	// TrustScore is the score at issuance, in [0, 100]. It is never recomputed.
	TrustScore int `json:"trust_score"`

	// Token is the badge's unique opaque token.
	Token string `json:"badge_token"`

	// EduVerified reports whether the institutional email bonus was earned.
	EduVerified bool `json:"edu_verified"`
}

// Badge is a persisted badge. Without the revocation fields it is also the
// portable wire format handed to the subject.
type Badge struct {
	Token       string    `json:"badge_token"`
	Payload     Payload   `json:"payload"`
	Signature   string    `json:"signature"`
	PublicKeyID string    `json:"public_key_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`

	// RevokedAt is set once by Revoke and never cleared.
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

// IsRevoked reports whether the badge has been revoked.
func (b *Badge) IsRevoked() bool {
	return b.RevokedAt != nil
}

// IsExpired reports whether now is strictly past the expiry.
func (b *Badge) IsExpired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// IsActive reports whether the badge is unrevoked and expires after now.
func (b *Badge) IsActive(now time.Time) bool {
	return !b.IsRevoked() && b.ExpiresAt.After(now)
}

// Portable returns a copy stripped of the issuer-side revocation state.
func (b *Badge) Portable() *Badge {
	out := *b
	out.RevokedAt = nil
	out.RevocationReason = ""
	return &out
}

// Clone returns a deep copy of b.
func (b *Badge) Clone() *Badge {
	out := *b
	if b.RevokedAt != nil {
		t := *b.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}

// VerifyResult is the answer to a verification request.
type VerifyResult struct {
	Valid  bool    `json:"valid"`
	Reason Outcome `json:"reason,omitempty"`

	// RevocationReason is set for revoked badges when a reason was given.
	RevocationReason string `json:"revocation_reason,omitempty"`

	// Set only for valid badges, taken from the signed payload.
	TrustScore *int       `json:"trust_score,omitempty"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Outcome returns the verification outcome, including OutcomeValid.
func (r *VerifyResult) Outcome() Outcome {
	if r.Valid {
		return OutcomeValid
	}
	return r.Reason
}

func failed(reason Outcome) *VerifyResult {
	return &VerifyResult{Valid: false, Reason: reason}
}

func succeeded(p Payload) *VerifyResult {
	score := p.TrustScore
	iat := time.Unix(p.IssuedAt, 0).UTC()
	exp := time.Unix(p.ExpiresAt, 0).UTC()
	return &VerifyResult{Valid: true, TrustScore: &score, IssuedAt: &iat, ExpiresAt: &exp}
}

// Revocation is one entry of the revocation feed.
type Revocation struct {
	Token     string    `json:"badge_token"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason,omitempty"`
}

// PublicKeyInfo is the distributable description of the issuer key.
type PublicKeyInfo struct {
	KeyID     string `json:"key_id"`
	PublicKey string `json:"public_key"`
	Algorithm string `json:"algorithm"`
}

// VerifyRequest is the body of a verification call: what the holder presents.
type VerifyRequest struct {
	Token     string  `json:"badge_token"`
	Payload   Payload `json:"payload"`
	Signature string  `json:"signature"`
}
