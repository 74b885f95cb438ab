package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/hidroops/represas-insights/internal/ai"
	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

// State is a step of one insights request.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateValidated   State = "VALIDATED"
	StateRateChecked State = "RATE_CHECKED"
	StateAggregated  State = "AGGREGATED"
	StateAIInvoked   State = "AI_INVOKED"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

var transitions = map[State][]State{
	StateReceived:    {StateValidated, StateFailed},
	StateValidated:   {StateRateChecked, StateFailed},
	StateRateChecked: {StateAggregated, StateFailed},
	StateAggregated:  {StateAIInvoked, StateFailed},
	StateAIInvoked:   {StateSucceeded, StateFailed},
}

// InsightGenerator produces insights for a dataset. *ai.Orchestrator
// satisfies it.
type InsightGenerator interface {
	Generate(ctx context.Context, dataset any, opts ai.Options) ai.Outcome
}

// RateChecker rejects a client over its quota with RATE_LIMITED.
type RateChecker interface {
	Check(ctx context.Context, key string) error
}

// Config holds the dataset limits.
type Config struct {
	MaxRangeDays    int
	MaxDailyRows    int
	MaxPayloadBytes int
}

// Request is an insights request as received from a client.
type Request struct {
	StartDate   string
	EndDate     string
	EntityIDs   []string
	Language    string
	Detail      string
	Granularity string
	// ClientKey identifies the caller for the insights rate limit.
	ClientKey string
}

// Result is a successful pipeline run.
type Result struct {
	Range       DateRange
	Granularity Granularity
	Entities    []Entity
	Truncated   bool
	Model       string
	Insights    *ai.InsightResult
}

type validated struct {
	rng         DateRange
	entityIDs   []int64
	granularity Granularity
	opts        ai.Options
}

// Pipeline runs validation, rate limiting, aggregation and generation in
// order, stopping at the first failure. It never retries.
type Pipeline struct {
	validator RangeValidator
	limiter   RateChecker
	builder   *DatasetBuilder
	generator InsightGenerator
	metrics   *metrics.Metrics
}

func NewPipeline(cfg Config, repo Repository, limiter RateChecker, gen InsightGenerator, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		validator: RangeValidator{MaxDays: cfg.MaxRangeDays},
		limiter:   limiter,
		builder: NewDatasetBuilder(repo, Aggregator{
			MaxDailyRows:    cfg.MaxDailyRows,
			MaxPayloadBytes: cfg.MaxPayloadBytes,
		}),
		generator: gen,
		metrics:   m,
	}
}

// Run executes one request. Errors are always *apperr.Error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	st := &run{
		state:   StateReceived,
		started: time.Now(),
		log:     logger.FromContext(ctx),
		metrics: p.metrics,
	}
	st.log.Debug("insights transition", "state", StateReceived)

	v, err := p.validate(req)
	if err != nil {
		return nil, st.fail(err)
	}
	st.advance(StateValidated)

	if err := checkpoint(ctx); err != nil {
		return nil, st.fail(err)
	}
	if p.limiter != nil {
		if err := p.limiter.Check(ctx, req.ClientKey); err != nil {
			return nil, st.fail(err)
		}
	}
	st.advance(StateRateChecked)

	if err := checkpoint(ctx); err != nil {
		return nil, st.fail(err)
	}
	ds, err := p.builder.Build(ctx, v.rng, v.entityIDs, v.granularity)
	if err != nil {
		return nil, st.fail(err)
	}
	if ds.Truncated {
		p.metrics.DatasetTruncated()
	}
	st.advance(StateAggregated,
		"entities", len(ds.Entities),
		"daily_points", len(ds.Daily),
		"truncated", ds.Truncated,
	)

	if err := checkpoint(ctx); err != nil {
		return nil, st.fail(err)
	}
	out := p.generator.Generate(ctx, ds, v.opts)
	if out.Err != nil {
		return nil, st.fail(out.Err)
	}
	st.advance(StateAIInvoked, "model", out.Model)

	st.advance(StateSucceeded)
	p.metrics.InsightsResult("OK")
	return &Result{
		Range:       v.rng,
		Granularity: v.granularity,
		Entities:    ds.Meta.Entities,
		Truncated:   ds.Truncated,
		Model:       out.Model,
		Insights:    out.Result,
	}, nil
}

func (p *Pipeline) validate(req Request) (validated, error) {
	rng, err := p.validator.Validate(req.StartDate, req.EndDate)
	if err != nil {
		return validated{}, err
	}

	ids := ParseEntityIDs(req.EntityIDs)
	if len(ids) == 0 {
		return validated{}, apperr.Validation("represas debe incluir al menos un id numérico").
			WithDetails(map[string]any{"represas": req.EntityIDs})
	}

	lang, ok := ai.ParseLanguage(req.Language)
	if !ok {
		return validated{}, apperr.Validation("idioma debe ser es o en").
			WithDetails(map[string]any{"idioma": req.Language})
	}
	detail, ok := ai.ParseDetail(req.Detail)
	if !ok {
		return validated{}, apperr.Validation("nivelDetalle debe ser breve, normal o tecnico").
			WithDetails(map[string]any{"nivelDetalle": req.Detail})
	}

	return validated{
		rng:         rng,
		entityIDs:   ids,
		granularity: ResolveGranularity(req.Granularity, rng.Days),
		opts:        ai.Options{Language: lang, Detail: detail},
	}, nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "Request cancelled", err)
	}
	return nil
}

type run struct {
	state   State
	started time.Time
	log     *logger.Scoped
	metrics *metrics.Metrics
}

func (r *run) advance(to State, fields ...interface{}) {
	legal := false
	for _, next := range transitions[r.state] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		panic(fmt.Sprintf("insights: illegal transition %s -> %s", r.state, to))
	}

	elapsed := time.Since(r.started)
	r.state = to
	r.metrics.StageReached(string(to), elapsed)
	r.log.Debug("insights transition",
		append([]interface{}{"state", to, "elapsed_ms", elapsed.Milliseconds()}, fields...)...)
}

func (r *run) fail(err error) *apperr.Error {
	ae := apperr.From(err)
	r.advance(StateFailed, "code", ae.Code())
	r.metrics.InsightsResult(ae.Code())
	return ae
}
