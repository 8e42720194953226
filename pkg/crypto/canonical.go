// Package crypto provides the canonical encoding, key management and Ed25519
// signing primitives used by AnchorBadge.
package crypto

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 (JCS) canonical form of v.
//
// The value is first marshaled with encoding/json so struct tags are honored,
// then transformed so that object members are ordered at every depth, numbers
// use the ES6 shortest form and no insignificant whitespace remains. Two values
// that are semantically identical always encode to the same bytes.
func Canonicalize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return CanonicalizeJSON(data)
}

// CanonicalizeJSON returns the canonical form of an already serialized JSON document.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create canonical json: %w", err)
	}
	return canonical, nil
}
