package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/jrsteele09/wa-session-gateway/internal/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyClaims stores the verified token claims
const ContextKeyClaims ContextKey = "claims"

// queryAccessToken carries the bearer token on websocket upgrades, where browsers cannot set headers
const queryAccessToken = "access_token"

// TenantClaims are the claims of a gateway API token. The subject is the tenant id.
// Operator tokens may act on any tenant and list sessions.
type TenantClaims struct {
	Operator bool `json:"operator,omitempty"`
	jwt.RegisteredClaims
}

// SignTenantToken issues an HS256 token for tenantID. A zero ttl issues a token without expiry.
func SignTenantToken(secret, tenantID string, operator bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TenantClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  tenantID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ClaimsFromContext returns the claims injected by the token middleware
func ClaimsFromContext(ctx context.Context) (*TenantClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*TenantClaims)
	return claims, ok
}

// RequireTenantToken validates the bearer token and checks its subject against the
// {tenantId} path segment. It is a no-op when no API secret is configured.
func (s *Server) RequireTenantToken() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireToken(func(claims *TenantClaims, r *http.Request) bool {
		return claims.Operator || claims.Subject == r.PathValue(pathTenantID)
	})
}

// RequireOperatorToken only admits operator tokens
func (s *Server) RequireOperatorToken() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireToken(func(claims *TenantClaims, _ *http.Request) bool {
		return claims.Operator
	})
}

func (s *Server) requireToken(allowed func(claims *TenantClaims, r *http.Request) bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !s.config.GetRequireAuth() {
				next(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				writeError(w, err)
				return
			}

			claims, err := s.parseToken(token)
			if err != nil {
				writeError(w, err)
				return
			}
			if !allowed(claims, r) {
				writeError(w, errors.Wrapf(errors.ErrUnauthorized, "token is not valid for this resource"))
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func (s *Server) parseToken(token string) (*TenantClaims, error) {
	claims := &TenantClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.GetJWTSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "invalid token: %v", err)
	}
	if claims.Subject == "" && !claims.Operator {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "token has no subject")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(r) {
			if token := r.URL.Query().Get(queryAccessToken); token != "" {
				return token, nil
			}
		}
		return "", errors.Wrapf(errors.ErrUnauthorized, "missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.Wrapf(errors.ErrUnauthorized, "invalid Authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.Wrapf(errors.ErrUnauthorized, "empty token")
	}
	return token, nil
}
