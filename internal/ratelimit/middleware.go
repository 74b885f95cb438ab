package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

// ClientIdentity is the first X-Forwarded-For entry, else the host part of
// RemoteAddr, else "unknown".
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// ErrorWriter renders a rejection. The api package supplies its central
// error writer so every rejection shares the error envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware limits every request passing through it and sets the
// X-RateLimit-* headers. Rejections carry Retry-After.
func (l *Limiter) Middleware(onReject ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), ClientIdentity(r))
			if err != nil {
				logger.FromContext(r.Context()).Warn("rate limit store unavailable, allowing request",
					"limiter", l.cfg.Name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				onReject(w, r, l.rejection(d))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
