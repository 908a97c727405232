// Package auth provides the credential-verification boundary the
// gateway's authenticate handler calls out to. The gateway itself never
// interprets tokens; it only consumes the Verifier interface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks that token proves the identity userID. A false result
// with nil error means the credentials were rejected; a non-nil error
// means verification itself could not be performed (for example the
// verifier is misconfigured or an upstream service is unreachable).
type Verifier interface {
	Verify(ctx context.Context, userID, token string) (bool, error)
}

// ErrNoSecret is returned while the HMAC verifier has no signing secret
// loaded yet.
var ErrNoSecret = errors.New("auth: no signing secret configured")

// HMACVerifier validates HS256 JWTs whose subject claim names the user.
// The secret can be swapped at runtime (see KeyWatcher), so reads and
// writes are synchronized.
type HMACVerifier struct {
	mu     sync.RWMutex
	secret []byte
}

// NewHMACVerifier creates a verifier with the given signing secret. An
// empty secret is allowed at construction; Verify fails with ErrNoSecret
// until SetSecret provides one.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	v := &HMACVerifier{}
	if len(secret) > 0 {
		v.secret = append([]byte(nil), secret...)
	}
	return v
}

// SetSecret atomically replaces the signing secret. In-flight Verify
// calls complete against whichever secret they observed.
func (v *HMACVerifier) SetSecret(secret []byte) {
	v.mu.Lock()
	v.secret = append([]byte(nil), secret...)
	v.mu.Unlock()
}

// Verify parses the token, enforces HS256 and matches the subject claim
// against userID. Expired, malformed or mis-signed tokens are a
// rejection, not an error.
func (v *HMACVerifier) Verify(_ context.Context, userID, token string) (bool, error) {
	v.mu.RLock()
	secret := v.secret
	v.mu.RUnlock()
	if len(secret) == 0 {
		return false, ErrNoSecret
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return false, nil
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return false, nil
	}
	return subject == userID, nil
}

// StaticVerifier accepts a fixed userID -> token table. Development and
// test use only.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, userID, token string) (bool, error) {
	expected, ok := v[userID]
	return ok && expected == token, nil
}
