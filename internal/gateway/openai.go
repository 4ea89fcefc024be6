package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// chatCompleter is the slice of *openai.Client the gateway uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures NewOpenAIGateway.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible servers
	Timeout time.Duration
}

// OpenAIGateway calls the chat completions API with strict JSON schemas.
type OpenAIGateway struct {
	client  chatCompleter
	model   string
	timeout time.Duration
	now     func() time.Time
}

// NewOpenAIGateway creates an OpenAI-backed gateway.
func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewOpenAIGateway: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAIGateway(openai.NewClientWithConfig(clientCfg), cfg), nil
}

func newOpenAIGateway(client chatCompleter, cfg OpenAIConfig) *OpenAIGateway {
	g := &OpenAIGateway{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
	if g.model == "" {
		g.model = DefaultOpenAIModel
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	return g
}

// Strict mode needs every property required, so date is always present
// and empty when unknown.
var openAICaptureSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"description": {Type: jsonschema.String},
		"amount":      {Type: jsonschema.Number},
		"category":    {Type: jsonschema.String, Description: categoryHint},
		"type":        {Type: jsonschema.String, Enum: []string{string(domain.TypeIncome), string(domain.TypeExpense)}},
		"date":        {Type: jsonschema.String, Description: "Transaction date as YYYY-MM-DD, empty string if not stated."},
	},
	Required:             []string{"description", "amount", "category", "type", "date"},
	AdditionalProperties: false,
}

var openAIAdviceSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"summary":  {Type: jsonschema.String, Description: "A concise overview of the user's financial status."},
		"tips":     {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}, Description: "Actionable tips for saving money or better budgeting."},
		"warnings": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}, Description: "Potential risks or high-spending areas."},
	},
	Required:             []string{"summary", "tips", "warnings"},
	AdditionalProperties: false,
}

// ParseFreeText implements CaptureGateway.
func (g *OpenAIGateway) ParseFreeText(ctx context.Context, text string) (*Capture, error) {
	raw, err := g.complete(ctx, "transaction", buildCapturePrompt(text, g.now()), &openAICaptureSchema)
	if err != nil {
		return nil, fmt.Errorf("ParseFreeText: %w", err)
	}
	c, err := decodeCapture(raw)
	if err != nil {
		return nil, fmt.Errorf("ParseFreeText: %w", err)
	}
	return c, nil
}

// GenerateAdvice implements AdviceGateway.
func (g *OpenAIGateway) GenerateAdvice(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error) {
	raw, err := g.complete(ctx, "financial_advice", buildAdvicePrompt(txs), &openAIAdviceSchema)
	if err != nil {
		return nil, fmt.Errorf("GenerateAdvice: %w", err)
	}
	advice, err := decodeAdvice(raw, g.now())
	if err != nil {
		return nil, fmt.Errorf("GenerateAdvice: %w", err)
	}
	return advice, nil
}

func (g *OpenAIGateway) complete(ctx context.Context, name, prompt string, schema *jsonschema.Definition) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Gateway = (*OpenAIGateway)(nil)
