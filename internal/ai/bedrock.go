package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

const (
	DefaultBedrockModel  = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultBedrockRegion = "us-east-1"

	anthropicVersion = "bedrock-2023-05-31"

	credentialProbeTimeout = 5 * time.Second
)

// InvokeModelAPI is the subset of the Bedrock Runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig configures the AWS Bedrock generator. Static keys are
// optional; without them the default AWS credential chain is used.
type BedrockConfig struct {
	Region          string
	ModelID         string
	AccessKeyID     string
	SecretAccessKey string
}

// BedrockGenerator invokes an Anthropic model on AWS Bedrock.
type BedrockGenerator struct {
	client        InvokeModelAPI
	modelID       string
	hasCredential bool
}

// NewBedrockGenerator loads AWS configuration and builds a client with SDK
// retries disabled.
func NewBedrockGenerator(ctx context.Context, cfg BedrockConfig) (*BedrockGenerator, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultBedrockRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	g := NewBedrockGeneratorWithClient(client, cfg.ModelID)
	g.hasCredential = credentialsAvailable(ctx, awsCfg.Credentials)
	return g, nil
}

// credentialsAvailable resolves the credential chain once. LoadDefaultConfig
// always installs a chain, so only a successful Retrieve proves a credential.
func credentialsAvailable(ctx context.Context, provider aws.CredentialsProvider) bool {
	if provider == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, credentialProbeTimeout)
	defer cancel()

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		logger.Warn("no AWS credentials resolved for bedrock", "error", err)
		return false
	}
	return creds.HasKeys()
}

// NewBedrockGeneratorWithClient wraps an existing client, mainly for tests.
func NewBedrockGeneratorWithClient(client InvokeModelAPI, modelID string) *BedrockGenerator {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockGenerator{client: client, modelID: modelID, hasCredential: client != nil}
}

func (b *BedrockGenerator) Provider() string    { return "bedrock" }
func (b *BedrockGenerator) Model() string       { return b.modelID }
func (b *BedrockGenerator) HasCredential() bool { return b.hasCredential }

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate makes a single InvokeModel call. The schema travels in the
// system prompt since the messages API has no response schema field.
func (b *BedrockGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	system := req.System
	if req.Schema != nil {
		system += "\nEsquema JSON de la respuesta:\n" + SchemaJSON() +
			"\nResponde solo con el objeto JSON, sin texto adicional."
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxOutputTokens,
		System:           system,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContentBlock{{Type: "text", Text: req.Prompt}},
		}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("bedrock: encode request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Response{}, fmt.Errorf("bedrock: invoke model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Response{}, fmt.Errorf("bedrock: decode response: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return Response{Text: stripJSONFence(text.String()), Model: b.modelID}, nil
}

// stripJSONFence removes a single surrounding ```json fence, which Claude
// models add despite instructions. It is the only rewrite applied to model
// output: prose around the object, partial objects and inner fences are not
// salvaged and fail in ParseResult.
func stripJSONFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
	t = strings.TrimPrefix(t, "json")
	return strings.TrimSpace(t)
}
