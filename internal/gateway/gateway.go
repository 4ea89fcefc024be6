// Package gateway adapts a generative-AI service into two typed calls:
// free-text transaction capture and financial advice.
package gateway

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable wraps transport and service failures.
	ErrUnavailable = errors.New("ai service unavailable")
	// ErrInvalidResponse wraps responses that do not satisfy the schema.
	ErrInvalidResponse = errors.New("ai service returned an invalid response")
)

// Capture is the structured reading of a free-text transaction. Date is
// nil when the text did not state one.
type Capture struct {
	Description string
	Amount      decimal.Decimal
	Category    string
	Type        domain.TransactionType
	Date        *civil.Date
}

// CaptureGateway turns free text into transaction fields.
type CaptureGateway interface {
	ParseFreeText(ctx context.Context, text string) (*Capture, error)
}

// AdviceGateway turns a ledger snapshot into advice.
type AdviceGateway interface {
	GenerateAdvice(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error)
}

// Gateway is a provider that serves both calls.
type Gateway interface {
	CaptureGateway
	AdviceGateway
}

// Default model names per provider.
const (
	DefaultGeminiCaptureModel = "gemini-2.5-flash"
	DefaultGeminiAdviceModel  = "gemini-2.5-pro"
	DefaultOpenAIModel        = "gpt-4o-mini"
)
