// Package canon produces RFC 8785 canonical JSON and the SHA-256 digests the
// ledger uses for content addressing and hash-chain links.
package canon

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the canonical JSON form of v: object keys sorted
// recursively, ES6 number formatting, no insignificant whitespace.
// json.RawMessage and []byte holding JSON are canonicalized as-is.
func Canonicalize(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canon: marshal: %w", err)
		}
		raw = b
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: transform: %w", err)
	}
	return out, nil
}

// CanonicalString is Canonicalize returning a string.
func CanonicalString(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Digest is SHA-256 encoded as unpadded base64url. Chain links use it.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// DigestString is Digest over the UTF-8 bytes of s.
func DigestString(s string) string {
	return Digest([]byte(s))
}

// HexDigest is SHA-256 encoded as lowercase hex. Lookup keys use it.
func HexDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentHash is the hex digest of the canonical form of v.
func ContentHash(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HexDigest(b), nil
}
