package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindtrap/maze-server/internal/adminauth"
)

type ctxKey int

const claimsKey ctxKey = iota

// SecurityLoggingMiddleware logs requests without exposing sensitive data
func (s *Server) SecurityLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// The query is left out; websocket tokens travel there.
		s.logger.Printf(
			"request_start method=%s path=%s request_id=%s remote_addr=%s user_agent=%q",
			r.Method,
			r.URL.Path,
			requestID,
			r.RemoteAddr,
			r.UserAgent(),
		)

		next.ServeHTTP(ww, r)

		s.logger.Printf(
			"request_completed method=%s path=%s status=%d duration=%v request_id=%s bytes_written=%d",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			requestID,
			ww.BytesWritten(),
		)
	})
}

// CORSMiddleware allows the configured browser origins. An empty list or
// "*" allows any origin.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	allowAll := len(s.opts.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits requests carrying a valid admin bearer token. A
// missing or invalid token is 401, a token without the admin role is 403.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.errorHandler.HandleAccessError(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "Authentication required")
			return
		}
		claims, err := s.auth.Verify(token)
		switch {
		case errors.Is(err, adminauth.ErrNotAdmin):
			s.errorHandler.HandleAccessError(w, r, http.StatusForbidden, ErrTypeForbidden, "Admin access required")
			return
		case errors.Is(err, adminauth.ErrTokenExpired):
			s.errorHandler.HandleAccessError(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "Token expired")
			return
		case err != nil:
			s.errorHandler.HandleAccessError(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// bearerToken reads the Authorization header, falling back to the
// adminToken cookie the console sets.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie("adminToken"); err == nil {
		return c.Value
	}
	return ""
}

func adminName(r *http.Request) string {
	if c, ok := r.Context().Value(claimsKey).(*adminauth.Claims); ok {
		return c.Username
	}
	return ""
}
