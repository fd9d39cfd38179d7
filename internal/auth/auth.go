package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role distinguishes the two sides of a dispatch.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

// Identity is the stable identity resolved from a verified credential.
type Identity struct {
	UserID string
	Role   Role
}

// Error covers every credential failure: missing, malformed, expired,
// or failing signature verification. The connection handler terminates
// on any of them without retry.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Claims carried by dispatch credentials.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens. Issuance lives in a
// separate credential service; this side only verifies.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the credential and yields the identity it asserts.
// No side effects; safe for concurrent use.
func (v *Verifier) Verify(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, &Error{Reason: "missing credential"}
	}
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, &Error{Reason: "invalid token", Err: err}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, &Error{Reason: "invalid claims"}
	}
	if claims.UserID == "" {
		return Identity{}, &Error{Reason: "token carries no user id"}
	}
	role := Role(claims.Role)
	if role != RolePassenger && role != RoleDriver {
		return Identity{}, &Error{Reason: "unknown role " + claims.Role}
	}
	return Identity{UserID: claims.UserID, Role: role}, nil
}

// Sign issues a token for the given identity. Kept beside Verify so
// tests and local tooling can mint credentials; production issuance is
// the credential service's job.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "ride-dispatch",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
