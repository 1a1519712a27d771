package invoicing

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultHashTailLength is the number of hex characters shown publicly
const DefaultHashTailLength = 8

// Canonicalize renders v as canonical JSON: object keys sorted at every depth,
// array order kept, no insignificant whitespace, no HTML escaping.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON re-encodes an arbitrary JSON document canonically.
// Numbers keep their literal text so integers never pass through float64.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonicalize: trailing data after JSON value")
	}

	// map[string]any is encoded with sorted keys, which gives the recursive ordering.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonicalize: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HashCanonical returns the lowercase hex SHA-256 of canonical bytes
func HashCanonical(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// HashTail returns the last n characters of hash. n outside 4..64 falls back
// to DefaultHashTailLength.
func HashTail(hash string, n int) string {
	if n < 4 || n > 64 {
		n = DefaultHashTailLength
	}
	if len(hash) <= n {
		return hash
	}
	return hash[len(hash)-n:]
}

// ComputeHash canonicalizes v and hashes it
func ComputeHash(v any) (canonical []byte, hash string, err error) {
	canonical, err = Canonicalize(v)
	if err != nil {
		return nil, "", err
	}
	return canonical, HashCanonical(canonical), nil
}

// VerificationResult is the outcome of a receipt check
type VerificationResult struct {
	Valid        bool   `json:"valid"`
	ComputedHash string `json:"computed_hash"`
}

// Verify recomputes the hash of data and compares it with expectedHash.
// It has no side effects.
func Verify(data any, expectedHash string) (VerificationResult, error) {
	_, computed, err := ComputeHash(data)
	if err != nil {
		return VerificationResult{}, err
	}
	return VerificationResult{
		Valid:        hashesEqual(computed, expectedHash),
		ComputedHash: computed,
	}, nil
}

func hashesEqual(computed, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}
