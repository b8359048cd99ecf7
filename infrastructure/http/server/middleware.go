package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"profilebook/auth"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/observability"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey int

const (
	subjectKey contextKey = iota
	credentialKey
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade go through the metrics middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Metrics records Prometheus request counters and latencies.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps identifiers out of metric labels.
func normalizePath(path string) string {
	patterns := []struct{ prefix, normalized string }{
		{"/api/messages/with/username/", "/api/messages/with/username/:username"},
		{"/api/messages/with/", "/api/messages/with/:id"},
		{"/api/messages/message/", "/api/messages/message/:id"},
		{"/api/messages/to/", "/api/messages/to/:username"},
	}
	for _, p := range patterns {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) {
			return p.normalized
		}
	}
	if strings.HasPrefix(path, "/api/notifications/") && strings.HasSuffix(path, "/read") &&
		path != "/api/notifications/read-all" {
		return "/api/notifications/:id/read"
	}
	return path
}

// Logger logs one line per request.
func Logger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Debug("Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"latency", time.Since(start),
					"request_id", chimw.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RequireAuth resolves the bearer token to a subject or answers 401.
func RequireAuth(authenticator Authenticator, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, cred, err := authenticator.Authenticate(auth.TokenFromRequest(r))
			if err != nil {
				writeError(w, log, err)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			ctx = context.WithValue(ctx, credentialKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole answers 403 unless the authenticated credential carries role.
func RequireRole(role string, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, _ := r.Context().Value(credentialKey).(auth.Credential)
			if !cred.HasRole(role) {
				writeError(w, log, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func subjectFrom(ctx context.Context) domain.SubjectID {
	subject, _ := ctx.Value(subjectKey).(domain.SubjectID)
	return subject
}
