package insights

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidroops/represas-insights/internal/ai"
	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/metrics"
)

type fakeRepo struct {
	mu        sync.Mutex
	names     []Entity
	rows      []TelemetryRow
	namesErr  error
	rowsErr   error
	nameCalls int
	rowCalls  int
	lastQuery RowsQuery
}

func (f *fakeRepo) EntityNames(ctx context.Context, ids []int64) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	return f.names, f.namesErr
}

func (f *fakeRepo) TelemetryRows(ctx context.Context, q RowsQuery) ([]TelemetryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rowCalls++
	f.lastQuery = q
	return f.rows, f.rowsErr
}

func (f *fakeRepo) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameCalls + f.rowCalls
}

type fakeLimiter struct {
	err  error
	keys []string
}

func (f *fakeLimiter) Check(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

type fakeGenerator struct {
	outcome  ai.Outcome
	calls    int
	lastOpts ai.Options
	lastData any
}

func (f *fakeGenerator) Generate(ctx context.Context, dataset any, opts ai.Options) ai.Outcome {
	f.calls++
	f.lastOpts = opts
	f.lastData = dataset
	return f.outcome
}

func okOutcome() ai.Outcome {
	return ai.Outcome{
		Model: "gemini-2.0-flash",
		Result: &ai.InsightResult{
			Summary:            "Operación normal",
			Findings:           []string{},
			Risks:              []string{},
			Recommendations:    []string{},
			Anomalies:          []ai.Anomaly{},
			SuggestedQuestions: []string{},
		},
	}
}

func newTestPipeline(repo *fakeRepo, lim *fakeLimiter, gen *fakeGenerator) *Pipeline {
	return NewPipeline(Config{MaxRangeDays: 366, MaxDailyRows: 1500, MaxPayloadBytes: 14000}, repo, lim, gen, metrics.New())
}

func validRequest() Request {
	return Request{
		StartDate: "2024-05-01",
		EndDate:   "2024-05-03",
		EntityIDs: []string{"1", "abc", "1", " 2 "},
		ClientKey: "203.0.113.9",
	}
}

func TestPipelineSuccess(t *testing.T) {
	repo := &fakeRepo{
		names: []Entity{{ID: 1, Name: "Rapel"}, {ID: 2, Name: "Colbún"}},
		rows:  series(1, "Rapel", "COTA", 1, 100, 101, 102),
	}
	lim := &fakeLimiter{}
	gen := &fakeGenerator{outcome: okOutcome()}

	res, err := newTestPipeline(repo, lim, gen).Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Range.Days)
	assert.Equal(t, GranularityDay, res.Granularity)
	assert.Equal(t, repo.names, res.Entities)
	assert.Equal(t, "gemini-2.0-flash", res.Model)
	assert.False(t, res.Truncated)
	assert.Equal(t, "Operación normal", res.Insights.Summary)

	assert.Equal(t, []int64{1, 2}, repo.lastQuery.EntityIDs)
	assert.Equal(t, VariableCodes, repo.lastQuery.Variables)
	assert.Equal(t, []string{"203.0.113.9"}, lim.keys)
	assert.Equal(t, ai.Options{Language: ai.LanguageES, Detail: ai.DetailNormal}, gen.lastOpts)

	ds, ok := gen.lastData.(*Dataset)
	require.True(t, ok)
	assert.Len(t, ds.Entities, 1)
}

func TestPipelineValidationStopsBeforeDataSource(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Request)
		want apperr.Kind
	}{
		{"no numeric ids", func(r *Request) { r.EntityIDs = []string{"x", ""} }, apperr.KindValidation},
		{"empty ids", func(r *Request) { r.EntityIDs = nil }, apperr.KindValidation},
		{"start after end", func(r *Request) { r.StartDate = "2024-06-01" }, apperr.KindValidation},
		{"range too large", func(r *Request) { r.StartDate = "2022-01-01" }, apperr.KindRangeTooLarge},
		{"bad language", func(r *Request) { r.Language = "pt" }, apperr.KindValidation},
		{"bad detail", func(r *Request) { r.Detail = "maximo" }, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			lim := &fakeLimiter{}
			gen := &fakeGenerator{outcome: okOutcome()}
			req := validRequest()
			tt.mut(&req)

			_, err := newTestPipeline(repo, lim, gen).Run(context.Background(), req)
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, ae.Kind)
			assert.Zero(t, repo.calls())
			assert.Empty(t, lim.keys)
			assert.Zero(t, gen.calls)
		})
	}
}

func TestPipelineRateLimited(t *testing.T) {
	repo := &fakeRepo{}
	lim := &fakeLimiter{err: apperr.RateLimited("Demasiadas solicitudes")}
	gen := &fakeGenerator{outcome: okOutcome()}

	_, err := newTestPipeline(repo, lim, gen).Run(context.Background(), validRequest())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRateLimited, ae.Kind)
	assert.Zero(t, repo.calls())
	assert.Zero(t, gen.calls)
}

func TestPipelineDataSourceFailure(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	repo := &fakeRepo{rowsErr: cause}
	gen := &fakeGenerator{outcome: okOutcome()}

	_, err := newTestPipeline(repo, &fakeLimiter{}, gen).Run(context.Background(), validRequest())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDB, ae.Kind)
	assert.Equal(t, 500, ae.Status())
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, ae.Message, "relation")
	assert.Zero(t, gen.calls)
}

func TestPipelineGeneratorFailurePassesThrough(t *testing.T) {
	repo := &fakeRepo{}
	gen := &fakeGenerator{outcome: ai.Outcome{Err: apperr.InvalidAPIKey(errors.New("no key"))}}

	_, err := newTestPipeline(repo, &fakeLimiter{}, gen).Run(context.Background(), validRequest())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidAPIKey, ae.Kind)
	assert.Equal(t, 503, ae.Status())
}

func TestPipelineGranularityPolicy(t *testing.T) {
	tests := []struct {
		start    string
		explicit string
		want     Granularity
	}{
		{"2024-01-01", "", GranularityWeek},  // 121 days
		{"2024-04-21", "", GranularityDay},   // 10 days
		{"2024-01-01", "month", GranularityMonth},
	}
	for _, tt := range tests {
		repo := &fakeRepo{}
		req := validRequest()
		req.StartDate, req.EndDate, req.Granularity = tt.start, "2024-04-30", tt.explicit

		res, err := newTestPipeline(repo, &fakeLimiter{}, &fakeGenerator{outcome: okOutcome()}).Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Granularity)
		assert.Equal(t, tt.want, repo.lastQuery.Granularity)
	}
}

func TestPipelineHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &fakeRepo{}

	_, err := newTestPipeline(repo, &fakeLimiter{}, &fakeGenerator{outcome: okOutcome()}).Run(ctx, validRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.calls())
}

func TestParseEntityIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1}, ParseEntityIDs([]string{"3", "1", "3", "x", "1.5", ""}))
	assert.Empty(t, ParseEntityIDs(nil))
}

func TestIllegalTransitionPanics(t *testing.T) {
	r := &run{state: StateReceived, log: nil}
	assert.Panics(t, func() { r.advance(StateSucceeded) })
}
