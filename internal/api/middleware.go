package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/scheduling"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs HTTP requests with method, path, status, duration, and request ID
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", GetRequestID(r.Context())).
				Msg("request")
		})
	}
}

// PrincipalMiddleware extracts the authenticated principal the upstream
// identity layer attached as trusted headers. Requests without one are
// rejected before any handler runs.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get("X-User-Id"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid X-User-Id")
			return
		}

		role := r.Header.Get("X-User-Role")
		switch role {
		case "patient", "doctor", "admin":
		default:
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid X-User-Role")
			return
		}

		actor := scheduling.Actor{
			UserID: userID,
			Name:   r.Header.Get("X-User-Name"),
			Role:   role,
		}

		// Patients and doctors carry a linked profile id.
		if role != "admin" {
			profileID, err := uuid.Parse(r.Header.Get("X-Profile-Id"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid X-Profile-Id")
				return
			}
			actor.ProfileID = profileID
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ActorFrom retrieves the authenticated principal from the request.
func ActorFrom(r *http.Request) (scheduling.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(scheduling.Actor)
	return actor, ok
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
