package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hidroops/represas-insights/internal/apperr"
)

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", "203.0.113.7, 10.0.0.1", "10.0.0.2:1234", "203.0.113.7"},
		{"remote addr host", "", "192.0.2.4:5555", "192.0.2.4"},
		{"remote addr without port", "", "192.0.2.4", "192.0.2.4"},
		{"blank forwarded falls back", " , 10.0.0.1", "192.0.2.9:1", "192.0.2.9"},
		{"nothing", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIdentity(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	l := New(Config{Name: "global", Window: time.Minute, Max: 2}, NewMemoryStore(10), nil)

	var rejected error
	h := l.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "198.51.100.1:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	first := do()
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, do().Code)

	third := do()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.NotEmpty(t, third.Header().Get("Retry-After"))
	ae, ok := apperr.As(rejected)
	if assert.True(t, ok) {
		assert.Equal(t, apperr.KindRateLimited, ae.Kind)
	}
}
