// Package dashboard coordinates the ledger, the AI gateway, the job queue
// and ledger events behind the operations the API and CLI expose.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/events"
	"github.com/dvloznov/finance-dashboard/internal/gateway"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTrendMonths is the monthly trend window when none is requested.
const DefaultTrendMonths = 6

// Messages recorded on failed jobs. The underlying error is only logged.
const (
	CaptureFailedMessage = "AI couldn't process that. Try: 'Spent $12 on lunch at Taco Bell'"
	AdviceFailedMessage  = "The AI is currently contemplating market fluctuations. Please try again."
)

var (
	// ErrBusy is returned when the same AI action is already in flight.
	ErrBusy = errors.New("request already in progress")
	// ErrEmptyText is returned for blank capture input.
	ErrEmptyText = errors.New("text is required")
	// ErrEmptyLedger is returned when advice is requested with no transactions.
	ErrEmptyLedger = errors.New("no transactions to analyze")
	// ErrInvalidTransaction wraps domain validation failures of new input.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrNoQueue is returned by Submit calls on a service built without a job publisher.
	ErrNoQueue = errors.New("job queue not configured")
)

// Ledger is the subset of *ledger.Store the service needs.
type Ledger interface {
	Add(ctx context.Context, tx domain.Transaction) []domain.Transaction
	Remove(ctx context.Context, id string) ([]domain.Transaction, bool)
	List() []domain.Transaction
	Len() int
}

// NewTransaction is manual or captured input before an id is assigned.
// A nil Date means today.
type NewTransaction struct {
	Description string                 `json:"description"`
	Amount      decimal.Decimal        `json:"amount"`
	Date        *civil.Date            `json:"date,omitempty"`
	Type        domain.TransactionType `json:"type"`
	Category    string                 `json:"category"`
}

// Service is safe for concurrent use.
type Service struct {
	ledger      Ledger
	gw          gateway.Gateway
	queue       jobs.Publisher
	events      events.Publisher
	log         zerolog.Logger
	now         func() time.Time
	trendMonths int

	busyMu sync.Mutex
	busy   map[jobs.JobType]bool

	adviceMu sync.RWMutex
	advice   *domain.FinancialAdvice
}

// Option configures a Service.
type Option func(*Service)

// WithQueue sets the publisher used by SubmitCapture and SubmitAdvice.
func WithQueue(p jobs.Publisher) Option {
	return func(s *Service) { s.queue = p }
}

// WithEvents sets the ledger event publisher.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTrendMonths sets the default trend window.
func WithTrendMonths(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.trendMonths = n
		}
	}
}

// New creates a Service over l and gw.
func New(l Ledger, gw gateway.Gateway, opts ...Option) *Service {
	s := &Service{
		ledger:      l,
		gw:          gw,
		events:      events.Nop{},
		log:         zerolog.Nop(),
		now:         time.Now,
		trendMonths: DefaultTrendMonths,
		busy:        make(map[jobs.JobType]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transactions returns the ledger, newest first.
func (s *Service) Transactions() []domain.Transaction {
	return s.ledger.List()
}

// Summary computes dashboard metrics. months ≤ 0 selects the default window.
func (s *Service) Summary(months int) (metrics.Summary, error) {
	if months <= 0 {
		months = s.trendMonths
	}
	return metrics.Summarize(s.ledger.List(), s.now(), months)
}

// AddTransaction validates nt, assigns an id and creation time, and adds
// it to the ledger.
func (s *Service) AddTransaction(ctx context.Context, nt NewTransaction) (domain.Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: generate id: %w", err)
	}

	now := s.now()
	tx := domain.Transaction{
		ID:          id.String(),
		Description: strings.TrimSpace(nt.Description),
		Amount:      nt.Amount,
		Date:        domain.Today(now),
		Type:        nt.Type,
		Category:    strings.TrimSpace(nt.Category),
		CreatedAt:   now.UTC(),
	}
	if nt.Date != nil && nt.Date.IsValid() {
		tx.Date = *nt.Date
	}
	if err := tx.ValidateNew(); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	snapshot := s.ledger.Add(ctx, tx)
	s.log.Info().Str("transaction_id", tx.ID).Str("type", string(tx.Type)).Msg("transaction added")

	s.publish(ctx, events.Event{
		Kind:          events.KindTransactionAdded,
		TransactionID: tx.ID,
		Transaction:   &tx,
		LedgerSize:    len(snapshot),
		OccurredAt:    now,
	})
	return tx, nil
}

// RemoveTransaction deletes the transaction with id. It reports whether
// one was removed; an unknown id is not an error.
func (s *Service) RemoveTransaction(ctx context.Context, id string) bool {
	snapshot, removed := s.ledger.Remove(ctx, id)
	if !removed {
		return false
	}
	s.log.Info().Str("transaction_id", id).Msg("transaction removed")

	s.publish(ctx, events.Event{
		Kind:          events.KindTransactionRemoved,
		TransactionID: id,
		LedgerSize:    len(snapshot),
		OccurredAt:    s.now(),
	})
	return true
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("kind", string(e.Kind)).Str("transaction_id", e.TransactionID).Msg("publish ledger event")
	}
}

// Capture interprets text with the gateway and adds the result. The
// ledger is unchanged on any error.
func (s *Service) Capture(ctx context.Context, text string) (domain.Transaction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Transaction{}, ErrEmptyText
	}

	c, err := s.gw.ParseFreeText(ctx, text)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Capture: %w", err)
	}

	return s.AddTransaction(ctx, NewTransaction{
		Description: c.Description,
		Amount:      c.Amount,
		Date:        c.Date,
		Type:        c.Type,
		Category:    c.Category,
	})
}

// Advise requests advice for the current ledger and keeps it as the
// latest advice.
func (s *Service) Advise(ctx context.Context) (*domain.FinancialAdvice, error) {
	txs := s.ledger.List()
	if len(txs) == 0 {
		return nil, ErrEmptyLedger
	}

	advice, err := s.gw.GenerateAdvice(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("Advise: %w", err)
	}

	s.adviceMu.Lock()
	s.advice = advice
	s.adviceMu.Unlock()
	return copyAdvice(advice), nil
}

// LatestAdvice returns the most recent successful advice.
func (s *Service) LatestAdvice() (*domain.FinancialAdvice, bool) {
	s.adviceMu.RLock()
	defer s.adviceMu.RUnlock()
	if s.advice == nil {
		return nil, false
	}
	return copyAdvice(s.advice), true
}

func copyAdvice(a *domain.FinancialAdvice) *domain.FinancialAdvice {
	c := *a
	c.Tips = slices.Clone(a.Tips)
	c.Warnings = slices.Clone(a.Warnings)
	return &c
}

// Busy reports whether a job of type t is in flight.
func (s *Service) Busy(t jobs.JobType) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	return s.busy[t]
}

func (s *Service) acquire(t jobs.JobType) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[t] {
		return false
	}
	s.busy[t] = true
	return true
}

func (s *Service) release(t jobs.JobType) {
	s.busyMu.Lock()
	delete(s.busy, t)
	s.busyMu.Unlock()
}

// SubmitCapture queues a capture job for text.
func (s *Service) SubmitCapture(ctx context.Context, text string) (*jobs.GatewayJob, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	return s.submit(ctx, &jobs.GatewayJob{Type: jobs.JobTypeCaptureTransaction, Input: text})
}

// SubmitAdvice queues an advice job for the current ledger.
func (s *Service) SubmitAdvice(ctx context.Context) (*jobs.GatewayJob, error) {
	if s.ledger.Len() == 0 {
		return nil, ErrEmptyLedger
	}
	return s.submit(ctx, &jobs.GatewayJob{Type: jobs.JobTypeGenerateAdvice})
}

func (s *Service) submit(ctx context.Context, job *jobs.GatewayJob) (*jobs.GatewayJob, error) {
	if s.queue == nil {
		return nil, ErrNoQueue
	}
	if !s.acquire(job.Type) {
		return nil, ErrBusy
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.release(job.Type)
		return nil, fmt.Errorf("submit %s: job id: %w", job.Type, err)
	}
	job.JobID = id.String()
	job.Status = jobs.JobStatusPending
	job.CreatedAt = s.now()

	// A worker may own job as soon as Publish hands it over.
	snapshot := *job
	if err := s.queue.Publish(ctx, job); err != nil {
		s.release(job.Type)
		return nil, fmt.Errorf("submit %s: %w", job.Type, err)
	}

	s.log.Debug().Str("job_id", snapshot.JobID).Str("job_type", string(snapshot.Type)).Msg("job submitted")
	return &snapshot, nil
}

// HandleJob is the jobs.JobHandler for gateway jobs. It always clears the
// busy flag of the job's type.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	gj, ok := job.(*jobs.GatewayJob)
	if !ok {
		return fmt.Errorf("HandleJob: unexpected job %T", job)
	}
	defer s.release(gj.Type)

	log := s.log.With().Str("job_id", gj.JobID).Str("job_type", string(gj.Type)).Logger()

	switch gj.Type {
	case jobs.JobTypeCaptureTransaction:
		tx, err := s.Capture(ctx, gj.Input)
		if err != nil {
			log.Error().Err(err).Msg("capture failed")
			gj.Error = CaptureFailedMessage
			return err
		}
		return gj.SetResult(tx)

	case jobs.JobTypeGenerateAdvice:
		advice, err := s.Advise(ctx)
		if err != nil {
			log.Error().Err(err).Msg("advice failed")
			gj.Error = AdviceFailedMessage
			return err
		}
		return gj.SetResult(advice)

	default:
		gj.Error = "unsupported job type"
		return fmt.Errorf("HandleJob: unsupported job type %q", gj.Type)
	}
}
