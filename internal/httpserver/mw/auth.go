package mw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrSnakeDoc/concierge/internal/dashboard"
	"github.com/MrSnakeDoc/concierge/internal/downstream"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/envelope"
	"github.com/MrSnakeDoc/concierge/internal/logger"
)

type callerKey struct{}

// Claims are the identity claims read from a bearer token.
// userId is preferred over the registered subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c dashboard.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller set by Authenticate.
func CallerFromContext(ctx context.Context) (dashboard.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(dashboard.Caller)
	return c, ok
}

// Authenticate resolves the caller from an HS256 bearer token and forwards the
// Authorization header to downstream calls. A token without a user id is accepted;
// endpoints needing one reject the request themselves.
func Authenticate(secret []byte, log logger.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := bearerToken(header)
			if !ok {
				envelope.Fail(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				log.Debug("rejected bearer token",
					logger.String("path", r.URL.Path),
					logger.Error(err))
				msg := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "Token expired"
				}
				envelope.Fail(w, http.StatusUnauthorized, msg, "")
				return
			}

			userID := claims.UserID
			if userID == "" {
				userID = claims.Subject
			}
			caller := dashboard.Caller{
				UserID: strings.TrimSpace(userID),
				Role:   dashboard.Role(strings.ToLower(strings.TrimSpace(claims.Role))),
			}

			ctx := WithCaller(r.Context(), caller)
			ctx = downstream.WithAuthorization(ctx, header)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through callers holding one of roles.
func RequireRole(log logger.Logger, roles ...dashboard.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				envelope.Fail(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Debug("role not allowed",
				logger.String("path", r.URL.Path),
				logger.String("role", string(caller.Role)))
			envelope.Fail(w, http.StatusForbidden, "Insufficient permissions", "")
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
