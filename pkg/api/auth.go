package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// PrincipalClaims binds a JWT to a pipeline principal. The subject is
// the principal string used for every gated operation.
type PrincipalClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// TokenManager signs and validates principal tokens with an HMAC secret.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT for a principal.
func (tm *TokenManager) GenerateToken(p contracts.Principal, roles []string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := PrincipalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    "vitaclaim/identity",
			Audience:  jwt.ClaimStrings{"vitaclaim"},
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken parses and validates a JWT string.
func (tm *TokenManager) ValidateToken(tokenString string) (*PrincipalClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PrincipalClaims{},
		func(t *jwt.Token) (any, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*PrincipalClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenSignatureInvalid
}

type principalKey struct{}

// CallerFromContext returns the authenticated principal placed by
// AuthMiddleware.
func CallerFromContext(ctx context.Context) (contracts.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(contracts.Principal)
	return p, ok
}

// AuthMiddleware validates the bearer token and stores the caller
// principal in the request context.
func (tm *TokenManager) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			WriteUnauthorized(w, "")
			return
		}

		claims, err := tm.ValidateToken(token)
		if err != nil {
			WriteUnauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, contracts.Principal(claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
