package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/anchorbadge/anchorbadge-core/pkg/audit"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name       string
		adminToken string
		subject    string
		auth       string
		want       Caller
	}{
		{"anonymous", "secret", "", "", Caller{}},
		{"subject", "secret", "alice", "", Caller{SubjectID: "alice"}},
		{"admin", "secret", "", "Bearer secret", Caller{Admin: true}},
		{"lowercase scheme", "secret", "", "bearer secret", Caller{Admin: true}},
		{"wrong token", "secret", "", "Bearer nope", Caller{}},
		{"basic auth", "secret", "", "Basic secret", Caller{}},
		{"admin disabled", "", "", "Bearer ", Caller{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Caller
			h := Identity(tt.adminToken)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = GetCaller(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.subject != "" {
				req.Header.Set(HeaderSubjectID, tt.subject)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaller_CanActFor(t *testing.T) {
	assert.True(t, Caller{SubjectID: "alice"}.CanActFor("alice"))
	assert.False(t, Caller{SubjectID: "alice"}.CanActFor("bob"))
	assert.False(t, Caller{}.CanActFor(""))
	assert.True(t, Caller{Admin: true}.CanActFor("bob"))
}

func TestAuditContext_FallsBackToSubject(t *testing.T) {
	var got audit.Context
	h := RequestID(AuditContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = audit.FromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderSubjectID, "alice")
	req.Header.Set(HeaderRequestID, "r-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", got.Verifier)
	assert.Equal(t, "r-1", got.RequestID)
	assert.Equal(t, req.RemoteAddr, got.RemoteAddr)
}

func TestTimeout(t *testing.T) {
	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
