package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/pkg/httputil"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

// errorBody is the envelope of every failed response.
type errorBody struct {
	OK        bool   `json:"ok"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Details   any    `json:"details,omitempty"`
}

// ErrorWriter turns any error into the JSON error envelope. Causes and
// stack traces stay in the server log; Details are rendered only outside
// production.
type ErrorWriter struct {
	Production bool
}

// Write classifies err and renders it.
func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	reqID := RequestIDFromContext(r.Context())

	if apperr.ShouldLog(ae) {
		log := logger.FromContext(r.Context())
		fields := []interface{}{
			"status", ae.Status(),
			"code", ae.Code(),
			"message", ae.Message,
			"method", r.Method,
			"path", r.URL.Path,
		}
		if chain := apperr.CauseChain(ae); len(chain) > 0 {
			fields = append(fields, "cause", strings.Join(chain, " <- "))
		}
		if ae.Status() >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Warn("request rejected", fields...)
		}
	}

	if !ae.RetryAt.IsZero() {
		retry := int(math.Ceil(time.Until(ae.RetryAt).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	}

	body := errorBody{
		OK:        false,
		Code:      ae.Code(),
		Message:   ae.Message,
		RequestID: reqID,
	}
	if !e.Production && ae.Details != nil {
		body.Details = ae.Details
	}
	httputil.JSON(w, ae.Status(), body)
}

// NotFound renders NOT_FOUND for unmatched routes and methods.
func (e *ErrorWriter) NotFound(w http.ResponseWriter, r *http.Request) {
	e.Write(w, r, apperr.New(apperr.KindNotFound, "Endpoint not found"))
}
