// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing. Every content ID, commitment,
// receipt signature and digest in the system is a SHA-256 over canonical
// bytes produced here, so two honest replicas always hash the same value.
package canonical

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Encode returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshalled with encoding/json (so struct tags are honored),
// then transformed: keys sorted lexicographically by UTF-8 bytes, no HTML
// escaping, shortest-form numbers.
func Encode(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 of the canonical encoding of v.
func Hash(v interface{}) (identifiers.Hash32, error) {
	b, err := Encode(v)
	if err != nil {
		return identifiers.Hash32{}, err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 of raw bytes.
func HashBytes(data []byte) identifiers.Hash32 {
	return identifiers.Hash32(sha256.Sum256(data))
}

// MustHash is Hash for values that cannot fail to marshal (fixed structs of
// scalars). It panics on error and is reserved for internal invariants.
func MustHash(v interface{}) identifiers.Hash32 {
	h, err := Hash(v)
	if err != nil {
		panic(fmt.Sprintf("canonical: %v", err))
	}
	return h
}
