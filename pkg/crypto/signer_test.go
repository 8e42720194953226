package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Subject     string `json:"sub"`
	Issuer      string `json:"iss"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
	TrustScore  int    `json:"trust_score"`
	BadgeToken  string `json:"badge_token"`
	EduVerified bool   `json:"edu_verified"`
}

func samplePayload() testPayload {
	return testPayload{
		Subject:     "user-42",
		Issuer:      "anchorbadge",
		IssuedAt:    1700000000,
		ExpiresAt:   1702592000,
		TrustScore:  75,
		BadgeToken:  "3f8a2c8e-6d0b-4a43-9d56-7f0f2f1f1d11",
		EduVerified: true,
	}
}

func TestSigner_RoundTrip(t *testing.T) {
	signer := NewSigner(newTestKeyManager(t))
	payload := samplePayload()

	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Len(t, raw, ed25519.SignatureSize)

	assert.True(t, signer.Verify(payload, sig))
	assert.True(t, Verify(payload, sig, signer.PublicKey()))
}

func TestSigner_Deterministic(t *testing.T) {
	signer := NewSigner(newTestKeyManager(t))

	a, err := signer.Sign(samplePayload())
	require.NoError(t, err)
	b, err := signer.Sign(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerify_TamperDetection(t *testing.T) {
	signer := NewSigner(newTestKeyManager(t))
	sig, err := signer.Sign(samplePayload())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *testPayload)
	}{
		{"subject", func(p *testPayload) { p.Subject = "user-43" }},
		{"issuer", func(p *testPayload) { p.Issuer = "someone-else" }},
		{"issued_at", func(p *testPayload) { p.IssuedAt++ }},
		{"expiry", func(p *testPayload) { p.ExpiresAt += 3600 }},
		{"trust_score", func(p *testPayload) { p.TrustScore = 100 }},
		{"badge_token", func(p *testPayload) { p.BadgeToken = "other" }},
		{"edu_verified", func(p *testPayload) { p.EduVerified = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(&p)
			assert.False(t, signer.Verify(p, sig))
		})
	}
}

func TestVerify_MalformedInputReturnsFalse(t *testing.T) {
	signer := NewSigner(newTestKeyManager(t))
	payload := samplePayload()
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	assert.False(t, Verify(payload, "not base64!", signer.PublicKey()))
	assert.False(t, Verify(payload, base64.StdEncoding.EncodeToString([]byte("short")), signer.PublicKey()))
	assert.False(t, Verify(payload, sig, otherPub))
	assert.False(t, Verify(payload, sig, ed25519.PublicKey([]byte{1, 2, 3})))
	assert.False(t, Verify(make(chan int), sig, signer.PublicKey()))
}

func TestDecodePublicKey(t *testing.T) {
	km := newTestKeyManager(t)

	pub, err := DecodePublicKey(km.PublicKeyBase64())
	require.NoError(t, err)
	assert.True(t, pub.Equal(km.PublicKey()))

	_, err = DecodePublicKey(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}
