package ai

import "context"

// Request is a provider-neutral generation call.
type Request struct {
	System          string
	Prompt          string
	Schema          map[string]any
	Temperature     float64
	MaxOutputTokens int
}

// Response is the raw text the model produced and the model that served it.
type Response struct {
	Text  string
	Model string
}

// Generator is a hosted model backend. Implementations perform exactly one
// upstream call per Generate and never retry.
type Generator interface {
	Provider() string
	Model() string
	// HasCredential reports whether any credential is configured at all.
	HasCredential() bool
	Generate(ctx context.Context, req Request) (Response, error)
}
