// Package auth verifies the signed bearer credential presented by clients.
// Issuance lives with the login flow; the session core only calls Resolve.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watchroom/server/internal/domain"
)

// Claims mirrors the payload the login flow signs: the username under
// "name" plus a guest marker.
type Claims struct {
	Name  string `json:"name"`
	Guest bool   `json:"guest,omitempty"`
	jwt.RegisteredClaims
}

type Resolver struct {
	secret []byte
	ttl    time.Duration
}

func NewResolver(secret string, ttl time.Duration) *Resolver {
	return &Resolver{secret: []byte(secret), ttl: ttl}
}

// Resolve verifies signature and expiry and returns the identity the
// credential was issued to. Any failure, including a payload without a
// name, maps to domain.ErrUnauthenticated.
func (r *Resolver) Resolve(credential string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthenticated
		}
		return r.secret, nil
	})
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Name == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return domain.Identity{Username: claims.Name, Guest: claims.Guest}, nil
}

// Issue signs a credential for the given identity. Used by the login and
// guest-login handlers and by tests.
func (r *Resolver) Issue(id domain.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  id.Username,
		Guest: id.Guest,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
