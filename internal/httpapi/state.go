package httpapi

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/jtaw5649/barforge-registry/internal/crypto"
)

const (
	stateCookie = "__oauth_state"
	pkceCookie  = "__oauth_pkce"
	flowTTL     = 10 * time.Minute
)

var errBadState = errors.New("invalid oauth state")

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// signState returns a short-lived HS256 token naming the provider the flow started with.
func signState(key []byte, provider string, now time.Time) (string, error) {
	nonce, err := pkgcrypto.NewToken()
	if err != nil {
		return "", err
	}
	claims := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flowTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func verifyState(key []byte, token, provider string, now time.Time) error {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return errors.Join(errBadState, err)
	}
	if claims.Provider != provider {
		return errBadState
	}
	return nil
}

// newPKCE returns an RFC 7636 verifier and its S256 challenge.
func newPKCE() (verifier, challenge string, err error) {
	verifier, err = pkgcrypto.NewToken()
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
