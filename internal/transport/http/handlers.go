package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/scoring"
)

// Service is the badge lifecycle the handlers expose. *badge.Manager implements it.
type Service interface {
	Issue(ctx context.Context, subjectID string, anchors []anchor.IdentityAnchor) (*badge.Badge, error)
	IssueForSubject(ctx context.Context, subjectID string) (*badge.Badge, error)
	Verify(ctx context.Context, token string, payload badge.Payload, signature string) (*badge.VerifyResult, error)
	Revoke(ctx context.Context, token, reason string) (bool, error)
	Lookup(ctx context.Context, token string) (*badge.Badge, error)
	ListActive(ctx context.Context, subjectID string) ([]*badge.Badge, error)
	Revocations(ctx context.Context, since time.Time) ([]badge.Revocation, error)
	PublicKey() badge.PublicKeyInfo
	ScorePreview(ctx context.Context, subjectID string) (scoring.Result, error)
}

var _ Service = (*badge.Manager)(nil)

// IssueRequest is the body of POST /v1/badges.
type IssueRequest struct {
	SubjectID string `json:"subject_id"`

	// Anchors overrides the anchor store lookup. Administrators only.
	Anchors []anchor.IdentityAnchor `json:"anchors,omitempty"`
}

// RevokeRequest is the body of POST /v1/badges/{token}/revoke.
type RevokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RevokeResponse reports whether the call changed the badge.
type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// BadgeList is the body of GET /v1/subjects/{subjectID}/badges.
type BadgeList struct {
	Badges []*badge.Badge `json:"badges"`
}

// RevocationFeed is the body of GET /v1/revocations.
type RevocationFeed struct {
	Revocations []badge.Revocation `json:"revocations"`
}

// Handler serves the badge API.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the badge routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/badges", h.HandleIssue)
		r.Post("/badges/verify", h.HandleVerify)
		r.Post("/badges/{token}/revoke", h.HandleRevoke)
		r.Get("/subjects/{subjectID}/badges", h.HandleListActive)
		r.Get("/subjects/{subjectID}/score", h.HandleScore)
		r.Get("/public-key", h.HandlePublicKey)
		r.Get("/revocations", h.HandleRevocations)
	})
}

// HandleIssue issues a badge for the subject in the body.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, badge.ErrInvalidSubject)
		return
	}

	caller := GetCaller(r.Context())
	if !caller.CanActFor(req.SubjectID) || (len(req.Anchors) > 0 && !caller.Admin) {
		writeError(w, badge.ErrForbidden)
		return
	}

	var (
		b   *badge.Badge
		err error
	)
	if len(req.Anchors) > 0 {
		b, err = h.svc.Issue(r.Context(), req.SubjectID, req.Anchors)
	} else {
		b, err = h.svc.IssueForSubject(r.Context(), req.SubjectID)
	}
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleVerify verifies a presented badge. The endpoint is public; any failure
// to verify, a blank badge_token included, is a 200 with valid=false.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req badge.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	// A blank token names no badge; it is still an attempt and is answered
	// and recorded as not_found.
	res, err := h.svc.Verify(r.Context(), req.Token, req.Payload, req.Signature)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRevoke revokes a badge. Only its subject or an administrator may revoke;
// unknown and already revoked badges answer revoked=false.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req RevokeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	caller := GetCaller(r.Context())
	if !caller.Admin {
		b, err := h.svc.Lookup(r.Context(), token)
		switch {
		case errors.Is(err, badge.ErrNotFound):
			writeJSON(w, http.StatusOK, RevokeResponse{Revoked: false})
			return
		case err != nil:
			h.fail(w, r, "revoke", err)
			return
		case !caller.CanActFor(b.Payload.Subject):
			writeError(w, badge.ErrForbidden)
			return
		}
	}

	revoked, err := h.svc.Revoke(r.Context(), token, req.Reason)
	if err != nil {
		h.fail(w, r, "revoke", err)
		return
	}
	writeJSON(w, http.StatusOK, RevokeResponse{Revoked: revoked})
}

// HandleListActive lists the subject's active badges, newest first.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if !GetCaller(r.Context()).CanActFor(subjectID) {
		writeError(w, badge.ErrForbidden)
		return
	}

	badges, err := h.svc.ListActive(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "list active", err)
		return
	}
	writeJSON(w, http.StatusOK, BadgeList{Badges: badges})
}

// HandleScore previews the subject's trust score without issuing.
func (h *Handler) HandleScore(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if !GetCaller(r.Context()).CanActFor(subjectID) {
		writeError(w, badge.ErrForbidden)
		return
	}

	res, err := h.svc.ScorePreview(r.Context(), subjectID)
	if err != nil {
		h.fail(w, r, "score preview", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePublicKey publishes the signing key.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.PublicKey())
}

// HandleRevocations serves the revocation feed, optionally from ?since=RFC3339.
func (h *Handler) HandleRevocations(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, badge.WrapError(badge.ErrCodeInvalidInput, "since must be an RFC 3339 timestamp", err))
			return
		}
		since = t
	}

	revs, err := h.svc.Revocations(r.Context(), since)
	if err != nil {
		h.fail(w, r, "revocations", err)
		return
	}
	writeJSON(w, http.StatusOK, RevocationFeed{Revocations: revs})
}

// fail writes err. Caller errors are routine and only logged at debug.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	level := slog.LevelError
	if badge.IsValidation(err) || errors.Is(err, badge.ErrForbidden) || errors.Is(err, badge.ErrNotFound) {
		level = slog.LevelDebug
	}
	h.logger.Log(r.Context(), level, "request failed",
		"operation", op,
		"error", err,
		"request_id", GetRequestID(r.Context()),
	)
	writeError(w, err)
}
