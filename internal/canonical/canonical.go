// Package canonical produces the deterministic JSON form used for hashing
// and signing message payloads. Two logically identical values always encode
// to identical bytes, so hashes and signatures are stable regardless of how
// the value was assembled.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON encoding of v: object keys sorted
// lexicographically, no insignificant whitespace, numeric literals preserved
// as written.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	// Round-trip through an untyped tree. encoding/json writes map keys in
	// sorted order, and UseNumber keeps numeric literals intact instead of
	// reformatting them through float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return out, nil
}

// Hash returns the hex-encoded SHA-256 digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
