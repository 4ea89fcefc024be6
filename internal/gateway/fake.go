package gateway

import (
	"context"
	"sync"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Fake is a deterministic Gateway for tests and offline runs. Its funcs
// may be swapped between calls; calls are counted.
type Fake struct {
	mu sync.Mutex

	CaptureFunc func(ctx context.Context, text string) (*Capture, error)
	AdviceFunc  func(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error)

	CaptureCalls int
	AdviceCalls  int
}

// ParseFreeText implements CaptureGateway.
func (f *Fake) ParseFreeText(ctx context.Context, text string) (*Capture, error) {
	f.mu.Lock()
	f.CaptureCalls++
	fn := f.CaptureFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, ErrUnavailable
	}
	return fn(ctx, text)
}

// GenerateAdvice implements AdviceGateway.
func (f *Fake) GenerateAdvice(ctx context.Context, txs []domain.Transaction) (*domain.FinancialAdvice, error) {
	f.mu.Lock()
	f.AdviceCalls++
	fn := f.AdviceFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, ErrUnavailable
	}
	return fn(ctx, txs)
}

// Calls returns the capture and advice call counts.
func (f *Fake) Calls() (capture, advice int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CaptureCalls, f.AdviceCalls
}

var _ Gateway = (*Fake)(nil)
