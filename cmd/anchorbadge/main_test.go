package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "github.com/anchorbadge/anchorbadge-core/internal/transport/http"
	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
	"github.com/anchorbadge/anchorbadge-core/pkg/revocation"
	"github.com/anchorbadge/anchorbadge-core/pkg/store"
)

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores flag variables, which cobra keeps between executions.
func resetFlags() {
	trustFromJWKS, trustIssuer, trustDir = "", "", ""
	verifyOffline, verifyIssuerURL, verifyTrustDir, verifyCachePath = false, "", "", ""
	revIssuerURL, revCachePath, revWatch, revInterval = "", "", false, revocation.DefaultPollInterval
	scoreJSON = false
}

type issuerFixture struct {
	dir     string
	keys    *crypto.KeyManager
	mgr     *badge.Manager
	pubPath string
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()
	dir := t.TempDir()
	privPath := filepath.Join(dir, "issuer.key.jwk")
	pubPath := filepath.Join(dir, "issuer.pub.jwk")

	out, err := runCLI(t, "", "key", "gen", "--out-priv", privPath, "--out-pub", pubPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Key ID:")

	data, err := os.ReadFile(privPath)
	require.NoError(t, err)
	keys, err := crypto.LoadKeyManagerFromJWK(data)
	require.NoError(t, err)

	cfg := badge.DefaultManagerConfig()
	cfg.Validity = time.Hour
	mgr, err := badge.NewManager(cfg, store.NewMemoryStore(), crypto.NewSigner(keys), nil)
	require.NoError(t, err)

	return &issuerFixture{dir: dir, keys: keys, mgr: mgr, pubPath: pubPath}
}

func (f *issuerFixture) issueToFile(t *testing.T, subjectID string) (*badge.Badge, string) {
	t.Helper()
	b, err := f.mgr.Issue(context.Background(), subjectID, []anchor.IdentityAnchor{{Provider: anchor.ProviderGmail}})
	require.NoError(t, err)
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	path := filepath.Join(f.dir, subjectID+".badge.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return b, path
}

func TestKeyShow(t *testing.T) {
	f := newIssuerFixture(t)

	out, err := runCLI(t, "", "key", "show", f.pubPath)
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())
	assert.Contains(t, out, f.keys.PublicKeyBase64())
}

func TestOfflineVerifyFlow(t *testing.T) {
	f := newIssuerFixture(t)
	trustDir := filepath.Join(f.dir, "trust")
	cachePath := filepath.Join(f.dir, "cache", "revocations.json")
	b, badgePath := f.issueToFile(t, "alice")

	_, err := runCLI(t, "", "badge", "verify", badgePath, "--offline", "--trust-dir", trustDir, "--cache", cachePath)
	require.Error(t, err, "issuer key is not trusted yet")
	assert.Contains(t, err.Error(), string(badge.OutcomeInvalidSignature))

	out, err := runCLI(t, "", "trust", "add", f.pubPath, "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())

	out, err = runCLI(t, "", "trust", "list", "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())

	out, err = runCLI(t, "", "badge", "verify", badgePath, "--offline", "--trust-dir", trustDir, "--cache", cachePath)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "Trust Score: 45")

	cache, err := revocation.NewFileCache(cachePath)
	require.NoError(t, err)
	require.NoError(t, cache.Add(b.Token, time.Now()))

	out, err = runCLI(t, "", "badge", "verify", badgePath, "--offline", "--trust-dir", trustDir, "--cache", cachePath)
	require.Error(t, err)
	assert.Contains(t, out, string(badge.OutcomeRevoked))

	_, err = runCLI(t, "", "trust", "remove", f.keys.KeyID(), "--dir", trustDir)
	require.NoError(t, err)
	_, err = runCLI(t, "", "trust", "remove", f.keys.KeyID(), "--dir", trustDir)
	assert.ErrorContains(t, err, "key not found")
}

func TestOnlineVerifyAndRevocationSync(t *testing.T) {
	f := newIssuerFixture(t)
	srv := httptest.NewServer(httptransport.NewRouter(httptransport.Config{Service: f.mgr, JWKS: f.keys.JWKS}))
	t.Cleanup(srv.Close)

	b, badgePath := f.issueToFile(t, "bob")
	cachePath := filepath.Join(f.dir, "revocations.json")

	out, err := runCLI(t, "", "badge", "verify", badgePath, "--issuer", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	revoked, err := f.mgr.Revoke(context.Background(), b.Token, "compromised")
	require.NoError(t, err)
	require.True(t, revoked)

	_, err = runCLI(t, "", "badge", "verify", "-", "--issuer", srv.URL)
	require.ErrorContains(t, err, "failed to parse badge")

	raw, err := os.ReadFile(badgePath)
	require.NoError(t, err)
	out, err = runCLI(t, string(raw), "badge", "verify", "-", "--issuer", srv.URL)
	require.Error(t, err)
	assert.Contains(t, out, "Revocation reason: compromised")

	out, err = runCLI(t, "", "revocation", "sync", "--issuer", srv.URL, "--cache", cachePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 revocation(s)")

	out, err = runCLI(t, "", "revocation", "status", "--cache", cachePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Revocations: 1")

	cache, err := revocation.NewFileCache(cachePath)
	require.NoError(t, err)
	assert.True(t, cache.IsRevoked(b.Token))

	out, err = runCLI(t, "", "trust", "add", "--from-jwks", srv.URL+"/.well-known/jwks.json", "--dir", filepath.Join(f.dir, "trust"))
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())
	assert.Contains(t, out, "Mapped to issuer: "+srv.URL)
}

func TestTrustByIssuer(t *testing.T) {
	f := newIssuerFixture(t)
	srv := httptest.NewServer(httptransport.NewRouter(httptransport.Config{Service: f.mgr, JWKS: f.keys.JWKS}))
	t.Cleanup(srv.Close)
	trustDir := filepath.Join(f.dir, "trust")

	out, err := runCLI(t, "", "trust", "add", "--issuer", srv.URL+"/", "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())
	assert.Contains(t, out, "Mapped to issuer: "+srv.URL)

	out, err = runCLI(t, "", "trust", "list", "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Issuer: "+srv.URL)

	out, err = runCLI(t, "", "trust", "list", "--issuer", srv.URL, "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, f.keys.KeyID())

	out, err = runCLI(t, "", "trust", "list", "--issuer", "https://elsewhere.example", "--dir", trustDir)
	require.NoError(t, err)
	assert.Contains(t, out, "No trusted keys")
}

func TestScore(t *testing.T) {
	out, err := runCLI(t, `[{"provider":"gmail","is_edu_verified":true},{"provider":"linkedin"}]`, "score", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Trust Score: 100/100")
	assert.Contains(t, out, "Clearance:   Elite")

	out, err = runCLI(t, `[{"provider":"gmail"}]`, "score", "-", "--json")
	require.NoError(t, err)
	var res struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 45, res.Score)

	_, err = runCLI(t, `[{"provider":""}]`, "score", "-")
	assert.ErrorContains(t, err, "anchor 0")
}
