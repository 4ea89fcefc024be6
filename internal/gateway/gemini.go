package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the gateway uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures NewGeminiGateway.
type GeminiConfig struct {
	APIKey       string
	CaptureModel string
	AdviceModel  string
	Timeout      time.Duration
}

// GeminiGateway calls Gemini with a JSON response schema per request.
type GeminiGateway struct {
	models       contentGenerator
	captureModel string
	adviceModel  string
	timeout      time.Duration
	now          func() time.Time
}

// NewGeminiGateway creates a Gemini API client. An empty APIKey lets the
// SDK fall back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGateway: create genai client: %w", err)
	}
	return newGeminiGateway(client.Models, cfg), nil
}

func newGeminiGateway(models contentGenerator, cfg GeminiConfig) *GeminiGateway {
	g := &GeminiGateway{
		models:       models,
		captureModel: cfg.CaptureModel,
		adviceModel:  cfg.AdviceModel,
		timeout:      cfg.Timeout,
		now:          time.Now,
	}
	if g.captureModel == "" {
		g.captureModel = DefaultGeminiCaptureModel
	}
	if g.adviceModel == "" {
		g.adviceModel = DefaultGeminiAdviceModel
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	return g
}

var geminiCaptureSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
		"amount":      {Type: genai.TypeNumber},
		"category":    {Type: genai.TypeString, Description: categoryHint},
		"type":        {Type: genai.TypeString, Enum: []string{string(domain.TypeIncome), string(domain.TypeExpense)}},
		"date":        {Type: genai.TypeString, Description: "Transaction date as YYYY-MM-DD, empty if not stated."},
	},
	Required: []string{"description", "amount", "category", "type"},
}

var geminiAdviceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString, Description: "A concise overview of the user's financial status."},
		"tips": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Actionable tips for saving money or better budgeting.",
		},
		"warnings": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Potential risks or high-spending areas.",
		},
	},
	Required: []string{"summary", "tips", "warnings"},
}

// ParseFreeText implements CaptureGateway.
func (g *GeminiGateway) ParseFreeText(ctx context.Context, text string) (*Capture, error) {
	raw, err := g.generate(ctx, g.captureModel, buildCapturePrompt(text, g.now()), geminiCaptureSchema)
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
func (g *GeminiGateway) GenerateAdvice(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error) {
	raw, err := g.generate(ctx, g.adviceModel, buildAdvicePrompt(txs), geminiAdviceSchema)
	if err != nil {
		return nil, fmt.Errorf("GenerateAdvice: %w", err)
	}
	advice, err := decodeAdvice(raw, g.now())
	if err != nil {
		return nil, fmt.Errorf("GenerateAdvice: %w", err)
	}
	return advice, nil
}

func (g *GeminiGateway) generate(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", ErrUnavailable, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response from model", ErrInvalidResponse)
	}
	return resp.Text(), nil
}

var _ Gateway = (*GeminiGateway)(nil)
