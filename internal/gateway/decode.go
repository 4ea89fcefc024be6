package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

// captureResponse mirrors the capture schema. Pointers tell a missing
// field apart from a zero value.
type captureResponse struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Category    *string  `json:"category"`
	Type        *string  `json:"type"`
	Date        string   `json:"date"`
}

type adviceResponse struct {
	Summary  *string   `json:"summary"`
	Tips     *[]string `json:"tips"`
	Warnings *[]string `json:"warnings"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}

// decodeCapture validates a capture response. An empty or unparseable
// date is dropped so the caller's default applies.
func decodeCapture(raw string) (*Capture, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, invalid("empty response")
	}

	var resp captureResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, invalid("unmarshal capture: %v", err)
	}

	switch {
	case resp.Description == nil:
		return nil, invalid("missing description")
	case resp.Amount == nil:
		return nil, invalid("missing amount")
	case resp.Category == nil:
		return nil, invalid("missing category")
	case resp.Type == nil:
		return nil, invalid("missing type")
	}

	desc := strings.TrimSpace(*resp.Description)
	category := strings.TrimSpace(*resp.Category)
	if desc == "" {
		return nil, invalid("empty description")
	}
	if category == "" {
		return nil, invalid("empty category")
	}

	amount := *resp.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, invalid("amount is not finite")
	}
	if amount < 0 {
		return nil, invalid("negative amount %v", amount)
	}

	typ, err := domain.ParseTransactionType(strings.TrimSpace(*resp.Type))
	if err != nil {
		return nil, invalid("%v", err)
	}

	c := &Capture{
		Description: desc,
		Amount:      decimal.NewFromFloat(amount),
		Category:    category,
		Type:        typ,
	}
	if s := strings.TrimSpace(resp.Date); s != "" {
		if d, err := civil.ParseDate(s); err == nil && d.IsValid() {
			c.Date = &d
		}
	}
	return c, nil
}

// decodeAdvice validates an advice response.
func decodeAdvice(raw string, now time.Time) (*domain.FinancialAdvice, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, invalid("empty response")
	}

	var resp adviceResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, invalid("unmarshal advice: %v", err)
	}

	switch {
	case resp.Summary == nil || strings.TrimSpace(*resp.Summary) == "":
		return nil, invalid("missing summary")
	case resp.Tips == nil:
		return nil, invalid("missing tips")
	case resp.Warnings == nil:
		return nil, invalid("missing warnings")
	}

	return &domain.FinancialAdvice{
		Summary:     strings.TrimSpace(*resp.Summary),
		Tips:        nonEmpty(*resp.Tips),
		Warnings:    nonEmpty(*resp.Warnings),
		GeneratedAt: now,
	}, nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object, for models that ignore the response MIME type.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
