package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
)

// maxBodyBytes bounds request bodies; a badge is well under a kilobyte.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// writeError translates badge errors into HTTP status codes and error bodies.
func writeError(w http.ResponseWriter, err error) {
	if be, ok := badge.AsError(err); ok {
		writeJSON(w, codeToStatus(be.Code), errorBody{
			Error:       codeToHTTPCode(be.Code),
			Description: be.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
}

func codeToStatus(code string) int {
	switch code {
	case badge.ErrCodeInvalidInput, badge.ErrCodeNoAnchors:
		return http.StatusBadRequest
	case badge.ErrCodeNotFound:
		return http.StatusNotFound
	case badge.ErrCodeForbidden:
		return http.StatusForbidden
	case badge.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeToHTTPCode(code string) string {
	switch code {
	case badge.ErrCodeInvalidInput:
		return "invalid_input"
	case badge.ErrCodeNoAnchors:
		return "no_anchors"
	case badge.ErrCodeNotFound:
		return "not_found"
	case badge.ErrCodeForbidden:
		return "forbidden"
	case badge.ErrCodeUnavailable:
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields,
// trailing data and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for bodies that may be absent. An empty
// body, chunked or not, leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return badge.WrapError(badge.ErrCodeInvalidInput, "malformed request body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badge.NewError(badge.ErrCodeInvalidInput, "request body must hold a single JSON object")
	}
	return nil
}
