package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hidroops/represas-insights/internal/ai"
	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/insights"
	"github.com/hidroops/represas-insights/internal/pkg/httputil"
	"github.com/hidroops/represas-insights/internal/ratelimit"
)

// InsightsRunner executes one insights request. *insights.Pipeline
// satisfies it.
type InsightsRunner interface {
	Run(ctx context.Context, req insights.Request) (*insights.Result, error)
}

var errIDList = errors.New("represas must be a list of ids")

// entityIDList accepts ["1","2"], [1,2] or "1,2".
type entityIDList []string

func (l *entityIDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var csv string
		if err := json.Unmarshal(data, &csv); err != nil {
			return err
		}
		var out []string
		for _, part := range strings.Split(csv, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errIDList
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return errIDList
		}
		out = append(out, n.String())
	}
	*l = out
	return nil
}

type insightsRequest struct {
	StartDate   string       `json:"fecha_ini"`
	EndDate     string       `json:"fecha_fin"`
	EntityIDs   entityIDList `json:"represas"`
	Language    string       `json:"idioma"`
	Detail      string       `json:"nivelDetalle"`
	Granularity string       `json:"granularity"`
}

type insightsMeta struct {
	StartDate   string   `json:"fecha_ini"`
	EndDate     string   `json:"fecha_fin"`
	Entities    []string `json:"represas"`
	Model       string   `json:"modelo"`
	Cache       bool     `json:"cache"`
	Granularity string   `json:"granularity"`
	Truncated   bool     `json:"truncado"`
}

type insightsResponse struct {
	OK       bool              `json:"ok"`
	Meta     insightsMeta      `json:"meta"`
	Insights *ai.InsightResult `json:"insights"`
}

// InsightsHandler serves POST /api/v1/insights.
type InsightsHandler struct {
	runner InsightsRunner
	errs   *ErrorWriter
}

func NewInsightsHandler(runner InsightsRunner, errs *ErrorWriter) *InsightsHandler {
	return &InsightsHandler{runner: runner, errs: errs}
}

func (h *InsightsHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	var body insightsRequest
	if err := httputil.Decode(w, r, &body); err != nil {
		h.errs.Write(w, r, apperr.Validation(err.Error()))
		return
	}

	res, err := h.runner.Run(r.Context(), insights.Request{
		StartDate:   body.StartDate,
		EndDate:     body.EndDate,
		EntityIDs:   body.EntityIDs,
		Language:    body.Language,
		Detail:      body.Detail,
		Granularity: body.Granularity,
		ClientKey:   ratelimit.ClientIdentity(r),
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	names := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		name := e.Name
		if name == "" {
			name = strconv.FormatInt(e.ID, 10)
		}
		names = append(names, name)
	}

	httputil.OK(w, insightsResponse{
		OK: true,
		Meta: insightsMeta{
			StartDate:   res.Range.StartDate(),
			EndDate:     res.Range.EndDate(),
			Entities:    names,
			Model:       res.Model,
			Cache:       false,
			Granularity: string(res.Granularity),
			Truncated:   res.Truncated,
		},
		Insights: res.Insights,
	})
}
