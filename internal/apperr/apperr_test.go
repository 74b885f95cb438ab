package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindRangeTooLarge, http.StatusBadRequest},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindDB, http.StatusInternalServerError},
		{KindInvalidAPIKey, http.StatusServiceUnavailable},
		{KindUpstreamAI, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
		{Kind("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Status())
		})
	}
}

func TestFromKeepsClassifiedErrors(t *testing.T) {
	orig := DB(errors.New("pq: relation does not exist"))
	wrapped := fmt.Errorf("building dataset: %w", orig)

	got := From(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, KindDB, got.Kind)
	assert.Equal(t, http.StatusInternalServerError, got.Status())
	assert.NotContains(t, got.Message, "pq:")
}

func TestFromDefaultsToInternal(t *testing.T) {
	got := From(errors.New("nil map write"))
	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "INTERNAL_ERROR", got.Code())
	assert.Equal(t, "Internal Server Error", got.Message)
	assert.Nil(t, From(nil))
}

func TestShouldLog(t *testing.T) {
	assert.True(t, ShouldLog(New(KindInternal, "x")))
	assert.True(t, ShouldLog(New(KindUpstreamAI, "x")))
	assert.True(t, ShouldLog(RateLimited("slow down")))
	assert.True(t, ShouldLog(DB(nil)))
	assert.False(t, ShouldLog(Validation("bad date")))
	assert.False(t, ShouldLog(Unauthorized()))
	assert.False(t, ShouldLog(nil))
}

func TestCauseChain(t *testing.T) {
	root := errors.New("connection refused")
	err := DB(fmt.Errorf("query rows: %w", root))
	assert.Equal(t, []string{"query rows: connection refused", "connection refused"}, CauseChain(err))
}

func TestWithDetailsCopies(t *testing.T) {
	base := Validation("invalid body")
	withDetails := base.WithDetails(map[string]string{"field": "fecha_ini"})
	assert.Nil(t, base.Details)
	assert.NotNil(t, withDetails.Details)
}

func TestWithRetryAtCopies(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)
	base := RateLimited("Demasiadas solicitudes")
	limited := base.WithRetryAt(at).WithDetails(map[string]int{"limit": 10})

	assert.True(t, base.RetryAt.IsZero())
	assert.Equal(t, at, limited.RetryAt)
	assert.Equal(t, KindRateLimited, limited.Kind)
}
