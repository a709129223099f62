/*
auth.go - Bearer token authentication

PURPOSE:
  Turns an HS256 JWT into the generic.Principal every service operation
  takes. The token carries the principal id in "sub" and its role in
  "role".

FLOW:
  1. Authorization: Bearer <token>
  2. Parse and verify signature, algorithm and expiry
  3. Store the Principal in the request context
  4. Handlers read it back with PrincipalFrom

  Missing or invalid tokens are rejected with 401 before any handler runs.

TOKEN ISSUANCE:
  IssueToken signs tokens for the dev-only POST /api/auth/token endpoint
  and for tests. Production deployments issue tokens elsewhere with the
  same secret.

SEE ALSO:
  - server.go: Where the middleware is mounted
  - generic/types.go: Principal and roles
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/coaching-engine/generic"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 12 * time.Hour

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies tokens with a shared secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for p and returns it with its expiry.
func (a *Authenticator) IssueToken(p generic.Principal) (string, time.Time, error) {
	if p.ID == "" || !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("invalid principal %q/%q", p.ID, p.Role)
	}
	now := a.now().UTC()
	exp := now.Add(a.ttl)
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses raw and returns the principal it names.
func (a *Authenticator) Verify(raw string) (generic.Principal, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return generic.Principal{}, err
	}
	if !tok.Valid {
		return generic.Principal{}, errors.New("invalid token")
	}

	p := generic.Principal{ID: claims.Subject, Role: generic.Role(claims.Role)}
	if p.ID == "" || !p.Role.Valid() {
		return generic.Principal{}, errors.New("token has no valid subject or role")
	}
	return p, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		p, err := a.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p generic.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, or the zero Principal.
func PrincipalFrom(ctx context.Context) generic.Principal {
	p, _ := ctx.Value(principalKey{}).(generic.Principal)
	return p
}
