// Package auth decides whether an incoming connection is authorized and as
// what identity. The token wire format is entirely this package's business;
// the rest of the system only sees Identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrAuthRejected = errors.New("authentication rejected")

// Connection kinds
const (
	KindDisplay = "display"
	KindAdmin   = "admin-client"
)

// Identity is the result of a successful authorization
type Identity struct {
	Subject string
	Kind    string
}

// Gate admits or rejects a connection attempt before any handler runs
type Gate interface {
	Authorize(token string) (Identity, error)
}

type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// JWTGate verifies HS256 tokens carrying a subject and a connection kind
type JWTGate struct {
	secret []byte
}

func NewJWTGate(secret []byte) *JWTGate {
	return &JWTGate{secret: secret}
}

func (g *JWTGate) Authorize(tokenString string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAuthRejected
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrAuthRejected
	}

	kind := claims.Kind
	if kind == "" {
		kind = KindDisplay
	}
	if kind != KindDisplay && kind != KindAdmin {
		return Identity{}, ErrAuthRejected
	}

	return Identity{Subject: claims.Subject, Kind: kind}, nil
}

// GenerateToken issues a token for a subject; used by the pairing flow and
// by tests
func GenerateToken(subject, kind string, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Kind: kind,
	})
	return token.SignedString(secret)
}
