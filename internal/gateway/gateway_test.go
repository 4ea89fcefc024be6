package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	text   string
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}},
		},
	}, nil
}

type fakeChat struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
	}, nil
}

var fixedNow = time.Date(2024, time.June, 20, 9, 30, 0, 0, time.UTC)

func TestDecodeCapture(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantDesc string
		wantAmt  string
		wantType domain.TransactionType
		wantDate *civil.Date
	}{
		{
			name:     "complete",
			raw:      `{"description":"Coffee","amount":5.5,"category":"Food","type":"expense","date":"2024-06-19"}`,
			wantDesc: "Coffee",
			wantAmt:  "5.5",
			wantType: domain.TypeExpense,
			wantDate: &civil.Date{Year: 2024, Month: time.June, Day: 19},
		},
		{
			name:     "fenced with empty date",
			raw:      "```json\n{\"description\":\" Paycheck \",\"amount\":2000,\"category\":\"Salary\",\"type\":\"income\",\"date\":\"\"}\n```",
			wantDesc: "Paycheck",
			wantAmt:  "2000",
			wantType: domain.TypeIncome,
		},
		{
			name:     "unparseable date dropped",
			raw:      `{"description":"Taxi","amount":12,"category":"Transport","type":"expense","date":"yesterday"}`,
			wantDesc: "Taxi",
			wantAmt:  "12",
			wantType: domain.TypeExpense,
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "not json", raw: "I could not parse that", wantErr: true},
		{name: "missing amount", raw: `{"description":"x","category":"Food","type":"expense"}`, wantErr: true},
		{name: "missing type", raw: `{"description":"x","amount":1,"category":"Food"}`, wantErr: true},
		{name: "negative amount", raw: `{"description":"x","amount":-3,"category":"Food","type":"expense"}`, wantErr: true},
		{name: "unknown type", raw: `{"description":"x","amount":3,"category":"Food","type":"transfer"}`, wantErr: true},
		{name: "uppercase type", raw: `{"description":"x","amount":3,"category":"Food","type":"Expense"}`, wantErr: true},
		{name: "blank description", raw: `{"description":"  ","amount":3,"category":"Food","type":"expense"}`, wantErr: true},
		{name: "blank category", raw: `{"description":"x","amount":3,"category":"","type":"expense"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeCapture(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDesc, got.Description)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.wantAmt)), "amount %s", got.Amount)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantDate, got.Date)
		})
	}
}

func TestDecodeAdvice(t *testing.T) {
	got, err := decodeAdvice(`{"summary":"You are fine.","tips":["Save more",""],"warnings":[]}`, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "You are fine.", got.Summary)
	assert.Equal(t, []string{"Save more"}, got.Tips)
	assert.NotNil(t, got.Warnings)
	assert.Empty(t, got.Warnings)
	assert.Equal(t, fixedNow, got.GeneratedAt)

	for _, raw := range []string{
		``,
		`{"tips":[],"warnings":[]}`,
		`{"summary":"","tips":[],"warnings":[]}`,
		`{"summary":"ok","warnings":[]}`,
		`{"summary":"ok","tips":[]}`,
		`{"summary":"ok","tips":"save","warnings":[]}`,
	} {
		_, err := decodeAdvice(raw, fixedNow)
		assert.ErrorIs(t, err, ErrInvalidResponse, "raw %q", raw)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"```", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanModelJSON(tt.in), "input %q", tt.in)
	}
}

func TestPrompts(t *testing.T) {
	capture := buildCapturePrompt("Spent 20 on lunch", fixedNow)
	assert.Contains(t, capture, `"Spent 20 on lunch"`)
	assert.Contains(t, capture, "If the date isn't mentioned, assume today.")
	assert.Contains(t, capture, "Today is 2024-06-20.")

	txs := []domain.Transaction{
		{ID: "1", Description: "Monthly Salary", Amount: decimal.NewFromInt(5000), Date: civil.Date{Year: 2024, Month: time.June, Day: 1}, Type: domain.TypeIncome, Category: "Salary"},
		{ID: "2", Description: "Rent Payment", Amount: decimal.NewFromInt(1500), Date: civil.Date{Year: 2024, Month: time.June, Day: 2}, Type: domain.TypeExpense, Category: "Housing"},
	}
	assert.Equal(t,
		"2024-06-01: income of 5000 for Monthly Salary (Salary)\n2024-06-02: expense of 1500 for Rent Payment (Housing)",
		HistoryString(txs))

	advice := buildAdvicePrompt(txs)
	assert.True(t, strings.HasPrefix(advice, "Acting as a professional financial advisor"))
	assert.True(t, strings.HasSuffix(advice, HistoryString(txs)))
}

func TestGeminiGateway_ParseFreeText(t *testing.T) {
	gen := &fakeGenerator{text: `{"description":"Lunch","amount":20,"category":"Food","type":"expense","date":""}`}
	g := newGeminiGateway(gen, GeminiConfig{})
	g.now = func() time.Time { return fixedNow }

	got, err := g.ParseFreeText(context.Background(), "Spent 20 on lunch")
	require.NoError(t, err)
	assert.Equal(t, "Lunch", got.Description)
	assert.Nil(t, got.Date)

	assert.Equal(t, DefaultGeminiCaptureModel, gen.model)
	require.NotNil(t, gen.config)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.Same(t, geminiCaptureSchema, gen.config.ResponseSchema)
	assert.Contains(t, gen.prompt, "Spent 20 on lunch")
}

func TestGeminiGateway_GenerateAdvice(t *testing.T) {
	gen := &fakeGenerator{text: `{"summary":"Balanced.","tips":["Cook at home"],"warnings":["Rent is high"]}`}
	g := newGeminiGateway(gen, GeminiConfig{AdviceModel: "custom-model"})
	g.now = func() time.Time { return fixedNow }

	got, err := g.GenerateAdvice(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Balanced.", got.Summary)
	assert.Equal(t, []string{"Cook at home"}, got.Tips)
	assert.Equal(t, []string{"Rent is high"}, got.Warnings)
	assert.Equal(t, "custom-model", gen.model)
}

func TestGeminiGateway_Errors(t *testing.T) {
	g := newGeminiGateway(&fakeGenerator{err: errors.New("quota exceeded")}, GeminiConfig{})
	_, err := g.ParseFreeText(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	g = newGeminiGateway(&fakeGenerator{text: "sorry"}, GeminiConfig{})
	_, err = g.GenerateAdvice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestOpenAIGateway(t *testing.T) {
	chat := &fakeChat{content: `{"description":"Bonus","amount":300,"category":"Salary","type":"income","date":"2024-06-18"}`}
	g := newOpenAIGateway(chat, OpenAIConfig{})
	g.now = func() time.Time { return fixedNow }

	got, err := g.ParseFreeText(context.Background(), "got a 300 bonus")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeIncome, got.Type)
	require.NotNil(t, got.Date)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 18}, *got.Date)

	assert.Equal(t, DefaultOpenAIModel, chat.req.Model)
	require.NotNil(t, chat.req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, chat.req.ResponseFormat.Type)
	require.NotNil(t, chat.req.ResponseFormat.JSONSchema)
	assert.True(t, chat.req.ResponseFormat.JSONSchema.Strict)
	assert.Equal(t, "transaction", chat.req.ResponseFormat.JSONSchema.Name)

	_, err = newOpenAIGateway(&fakeChat{err: errors.New("timeout")}, OpenAIConfig{}).GenerateAdvice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = newOpenAIGateway(&fakeChat{content: `{"summary":"ok"}`}, OpenAIConfig{}).GenerateAdvice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestNew(t *testing.T) {
	g, err := New(context.Background(), ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGateway{}, g)

	_, err = New(context.Background(), ProviderConfig{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = New(context.Background(), ProviderConfig{Provider: "claude"})
	assert.Error(t, err)

	assert.True(t, ProviderGemini.IsValid())
	assert.False(t, Provider("").IsValid())
}

func TestFake(t *testing.T) {
	f := &Fake{}
	_, err := f.ParseFreeText(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	f.AdviceFunc = func(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error) {
		return &domain.FinancialAdvice{Summary: "ok"}, nil
	}
	got, err := f.GenerateAdvice(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Summary)

	capture, advice := f.Calls()
	assert.Equal(t, 1, capture)
	assert.Equal(t, 1, advice)
}
