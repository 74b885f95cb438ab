package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

const (
	DefaultTimeout         = 20 * time.Second
	DefaultTemperature     = 0.4
	DefaultMaxOutputTokens = 800
)

// Outcome is either a validated result or a classified failure, never both.
type Outcome struct {
	Result *InsightResult
	Model  string
	Err    *apperr.Error
}

// OK reports whether the generation succeeded.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

func failed(err *apperr.Error) Outcome { return Outcome{Err: err} }

// OrchestratorConfig holds the per-call generation settings.
type OrchestratorConfig struct {
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// Orchestrator invokes a Generator under a deadline and validates output.
type Orchestrator struct {
	gen     Generator
	cfg     OrchestratorConfig
	metrics *metrics.Metrics
}

// NewOrchestrator fills zero settings with the package defaults.
func NewOrchestrator(gen Generator, cfg OrchestratorConfig, m *metrics.Metrics) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &Orchestrator{gen: gen, cfg: cfg, metrics: m}
}

func (o *Orchestrator) Provider() string { return o.gen.Provider() }

func (o *Orchestrator) Model() string { return o.gen.Model() }

// Generate serializes dataset into the prompt and asks the model for
// insights. It makes one attempt.
func (o *Orchestrator) Generate(ctx context.Context, dataset any, opts Options) Outcome {
	start := time.Now()
	out := o.generate(ctx, dataset, opts)

	label := "ok"
	if out.Err != nil {
		label = strings.ToLower(out.Err.Code())
	}
	o.metrics.AICall(o.gen.Provider(), label, time.Since(start))
	logger.FromContext(ctx).Debug("model call finished",
		"provider", o.gen.Provider(),
		"outcome", label,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (o *Orchestrator) generate(ctx context.Context, dataset any, opts Options) Outcome {
	if !o.gen.HasCredential() {
		return failed(apperr.InvalidAPIKey(errNoCredential))
	}

	payload, err := json.Marshal(dataset)
	if err != nil {
		return failed(apperr.Wrap(apperr.KindInternal, "Internal Server Error", err))
	}

	req := Request{
		System:          SystemInstruction(opts),
		Prompt:          BuildPrompt(payload),
		Schema:          ResponseSchema,
		Temperature:     o.cfg.Temperature,
		MaxOutputTokens: o.cfg.MaxOutputTokens,
	}
	resp, err := RaceDeadline(ctx, o.cfg.Timeout, func(ctx context.Context) (Response, error) {
		return o.gen.Generate(ctx, req)
	})
	if errors.Is(err, ErrDeadlineExceeded) {
		return failed(apperr.UpstreamAI("El modelo tardó demasiado en responder", err))
	}
	if err != nil {
		return failed(Classify(err))
	}

	result, err := ParseResult(resp.Text)
	if err != nil {
		return failed(apperr.UpstreamAI("No se pudo interpretar la respuesta del modelo", err))
	}

	model := resp.Model
	if model == "" {
		model = o.gen.Model()
	}
	return Outcome{Result: result, Model: model}
}
