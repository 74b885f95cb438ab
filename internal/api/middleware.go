package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
	"github.com/hidroops/represas-insights/internal/ratelimit"
)

const (
	headerRequestID = "X-Request-Id"
	headerAPIKey    = "X-API-Key"
)

type requestIDKey struct{}

// RequestIDFromContext returns the correlation id, or "unknown" outside a
// request.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// RequestContext reuses a non-blank inbound X-Request-Id or generates one,
// echoes it on the response, and scopes the request logger with it.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.NewContext(ctx, logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog writes one structured line per request.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.FromContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client", ratelimit.ClientIdentity(r),
		)
	})
}

// Recoverer converts a panic into a 500 INTERNAL_ERROR envelope.
func Recoverer(errs *ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				errs.Write(w, r, apperr.Wrap(apperr.KindInternal, "Internal Server Error", fmt.Errorf("panic: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyAuth requires X-API-Key to equal the configured key, compared in
// constant time. OPTIONS passes through for CORS preflight. An empty
// configured key rejects every request.
func APIKeyAuth(key string, errs *ErrorWriter) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			provided := []byte(r.Header.Get(headerAPIKey))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				errs.Write(w, r, apperr.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
