// Package crypto implements session token generation and one-way hashing.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// TokenLen is the number of random bytes in a session token (256 bits).
const TokenLen = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewToken returns a base64url-encoded random session token.
func NewToken() (string, error) {
	b, err := RandBytes(TokenLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher computes keyed BLAKE2b-256 digests of session tokens. A stolen
// sessions table cannot be replayed without both the raw token and the key.
type Hasher struct {
	key []byte
}

// NewHasher constructs a token hasher. BLAKE2b accepts keys up to 64 bytes.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.New("crypto: hash key must be 1..64 bytes")
	}
	return &Hasher{key: append([]byte(nil), key...)}, nil
}

// Hash returns the digest of token.
func (h *Hasher) Hash(token string) []byte {
	m, _ := blake2b.New256(h.key) // only fails on oversized keys, checked in NewHasher
	m.Write([]byte(token))
	return m.Sum(nil)
}
