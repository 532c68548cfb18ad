/*-------------------------------------------------------------------------
 *
 * middleware.go
 *    HTTP middleware for the bastion gateway API
 *
 * Provides authentication, CORS, and logging middleware. The gateway
 * serves two trust domains: the agent surface authenticated by a shared
 * key, and the approver surface authenticated by password or session
 * token. Neither credential grants access to the other surface.
 *
 * IDENTIFICATION
 *    internal/api/middleware.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/joshuaohana/the-bastion/internal/auth"
	"github.com/joshuaohana/the-bastion/internal/metrics"
)

/* bearerToken extracts the credential from an Authorization header
 * (format: "Bearer <credential>") */
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

/* agentAuth authenticates the agent surface with the shared agent key */
func (h *Handlers) agentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		key := bearerToken(r)
		if key == "" || !auth.VerifyAgentKey(key, h.agentKey) {
			metrics.WarnWithContext(r.Context(), "Agent authentication failed", map[string]interface{}{
				"key_prefix": auth.KeyPrefix(key),
			})
			respondError(w, WrapError(ErrUnauthorized, requestID))
			return
		}

		if !h.limiter.CheckLimit("agent", h.rateLimitPerMin) {
			respondError(w, WrapError(NewError(http.StatusTooManyRequests, "rate limit exceeded", nil), requestID))
			return
		}

		next.ServeHTTP(w, r)
	})
}

/* adminAuth authenticates the approver surface. Accepts either the
 * approver password (verified against its bcrypt hash) or a session
 * token issued by the login endpoint. */
func (h *Handlers) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		credential := bearerToken(r)
		if credential == "" {
			respondError(w, WrapError(ErrUnauthorized, requestID))
			return
		}

		if !h.sessions.Validate(credential) && !auth.VerifyPassword(credential, h.adminPasswordHash) {
			metrics.WarnWithContext(r.Context(), "Approver authentication failed", nil)
			respondError(w, WrapError(ErrUnauthorized, requestID))
			return
		}

		if !h.limiter.CheckLimit("admin", h.rateLimitPerMin) {
			respondError(w, WrapError(NewError(http.StatusTooManyRequests, "rate limit exceeded", nil), requestID))
			return
		}

		next.ServeHTTP(w, r)
	})
}

/* CORSMiddleware adds CORS headers */
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

/* LoggingMiddleware logs requests with structured logging and metrics */
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		/* Wrap response writer to capture status code */
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		metrics.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)
		metrics.DebugWithContext(r.Context(), "Request completed", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": duration.Milliseconds(),
		})
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
