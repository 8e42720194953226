package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	km, err := NewKeyManager(seed)
	require.NoError(t, err)
	return km
}

func TestNewKeyManager_SeedAndPrivateKeyAgree(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	fromSeed, err := NewKeyManager(priv.Seed())
	require.NoError(t, err)
	fromPriv, err := NewKeyManager(priv)
	require.NoError(t, err)

	assert.Equal(t, fromSeed.KeyID(), fromPriv.KeyID())
	assert.True(t, fromSeed.PublicKey().Equal(priv.Public()))
}

func TestNewKeyManager_RejectsBadLength(t *testing.T) {
	_, err := NewKeyManager([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestNewKeyManager_RejectsMismatchedHalves(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tampered := make([]byte, ed25519.PrivateKeySize)
	copy(tampered, priv.Seed())
	copy(tampered[ed25519.SeedSize:], other)

	_, err = NewKeyManager(tampered)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestKeyID_IsSHA256Prefix(t *testing.T) {
	km := newTestKeyManager(t)

	sum := sha256.Sum256(km.PublicKey())
	assert.Equal(t, hex.EncodeToString(sum[:8]), km.KeyID())
	assert.Len(t, km.KeyID(), KeyIDLength)
}

func TestPublicKey_ReturnsCopy(t *testing.T) {
	km := newTestKeyManager(t)
	pub := km.PublicKey()
	pub[0] ^= 0xff
	assert.NotEqual(t, pub, km.PublicKey())
}

func TestNewKeyManagerFromBase64(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	km, err := NewKeyManagerFromBase64(base64.StdEncoding.EncodeToString(priv.Seed()))
	require.NoError(t, err)
	assert.Equal(t, PublicKeyID(priv.Public().(ed25519.PublicKey)), km.KeyID())

	_, err = NewKeyManagerFromBase64("%%%")
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestLoadKeyManagerFromJWK(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	data, err := json.Marshal(jose.JSONWebKey{Key: priv, KeyID: "k", Algorithm: string(jose.EdDSA), Use: "sig"})
	require.NoError(t, err)

	km, err := LoadKeyManagerFromJWK(data)
	require.NoError(t, err)
	assert.True(t, km.PublicKey().Equal(priv.Public()))

	pubOnly, err := json.Marshal(jose.JSONWebKey{Key: priv.Public(), KeyID: "k", Algorithm: string(jose.EdDSA)})
	require.NoError(t, err)
	_, err = LoadKeyManagerFromJWK(pubOnly)
	assert.ErrorIs(t, err, ErrNotPrivateKey)
}

func TestJWKS_PublishesOnlyPublicKey(t *testing.T) {
	km := newTestKeyManager(t)
	set := km.JWKS()
	require.Len(t, set.Keys, 1)
	assert.Equal(t, km.KeyID(), set.Keys[0].KeyID)
	assert.True(t, set.Keys[0].IsPublic())

	keys := Ed25519Keys(&set)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(km.PublicKey()))
}
