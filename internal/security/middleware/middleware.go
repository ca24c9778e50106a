package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ridewatch/onboarding/internal/security/audit"
	"github.com/ridewatch/onboarding/internal/security/auth"
	"github.com/ridewatch/onboarding/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// publicPath reports whether a request may be served without a session.
// Registration, sign-in, invitation lookup and acceptance, and the outbound
// email endpoints are all reachable before the caller has an account.
func publicPath(r *http.Request) bool {
	p := r.URL.Path
	switch p {
	case "/healthz", "/readyz", "/metrics",
		"/api/auth/register", "/api/auth/verify", "/api/auth/login",
		"/api/send-verification-email", "/api/send-driver-invitation", "/api/send-contact-email":
		return true
	}
	if strings.HasPrefix(p, "/api/invites/") {
		return true
	}
	return false
}

// authPath reports whether a request targets a credential endpoint that
// gets the strict per-IP rate limit.
func authPath(r *http.Request) bool {
	switch r.URL.Path {
	case "/api/auth/register", "/api/auth/verify", "/api/auth/login":
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/accept") && strings.HasPrefix(r.URL.Path, "/api/invites/")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies the default limit keyed by user and a strict
// per-IP limit on credential endpoints, where the caller has no session yet.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authPath(r) {
				if !limiter.AllowStrict(clientIP(r), 10, time.Minute) {
					log.Warn("rate limit exceeded on auth endpoint",
						slog.String("path", r.URL.Path),
						slog.String("ip", clientIP(r)),
					)
					http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if publicPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			userID := ""
			if c := r.Context().Value(ClaimsContextKey{}); c != nil {
				userID = c.(*auth.Claims).UserID
			}

			if !limiter.Allow(userID) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if c := r.Context().Value(ClaimsContextKey{}); c != nil {
				userID = c.(*auth.Claims).UserID
			}

			if r.Method == http.MethodPost {
				switch {
				case r.URL.Path == "/api/auth/register":
					auditLog.LogRegistration(r.Context(), userID, "initiated", "")
				case r.URL.Path == "/api/invites":
					auditLog.LogInvitation(r.Context(), userID, "", "initiated", "")
				case strings.HasPrefix(r.URL.Path, "/api/invites/") && strings.HasSuffix(r.URL.Path, "/accept"):
					// Runs before mux routing, so the token comes from the
					// raw path rather than r.PathValue.
					tok := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/invites/"), "/accept")
					auditLog.LogAction(r.Context(), userID, "accept", "invitation", tok, "initiated", "")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}
