// Package ledger owns the session's transactions and persists every
// snapshot through a kvstore.Store.
package ledger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/kvstore"
	"github.com/rs/zerolog"
)

// DefaultKey is the key the whole ledger is stored under.
const DefaultKey = "transactions"

// ErrMalformedSnapshot is returned by DecodeSnapshot for data that cannot
// be accepted whole.
var ErrMalformedSnapshot = errors.New("malformed ledger snapshot")

// Store is the in-memory ledger. The in-memory state is authoritative for
// the running process; persistence is best effort.
type Store struct {
	kv           kvstore.Store
	key          string
	log          zerolog.Logger
	writeTimeout time.Duration

	mu  sync.RWMutex
	txs []domain.Transaction // insertion order; replaced, never edited

	// writeMu serializes writes so an older snapshot never lands after a
	// newer one.
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithWriteTimeout bounds each snapshot write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.writeTimeout = d }
}

// Open hydrates a Store from kv. An absent or malformed snapshot is
// replaced by Seed() and written back. Any other read error is returned
// and kv is left untouched.
func Open(ctx context.Context, kv kvstore.Store, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("ledger.Open: kv store is required")
	}

	s := &Store{
		kv:           kv,
		key:          DefaultKey,
		log:          zerolog.Nop(),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	txs, err := s.load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, kvstore.ErrNotFound):
		s.log.Info().Str("key", s.key).Msg("No persisted ledger, starting from seed data")
		return s.seed(ctx), nil
	case errors.Is(err, ErrMalformedSnapshot):
		s.log.Warn().Err(err).Str("key", s.key).Msg("Discarding unreadable ledger, starting from seed data")
		return s.seed(ctx), nil
	default:
		return nil, fmt.Errorf("ledger.Open: read %q: %w", s.key, err)
	}

	s.txs = txs
	s.log.Info().Str("key", s.key).Int("transactions", len(txs)).Msg("Ledger loaded")
	return s, nil
}

func (s *Store) seed(ctx context.Context) *Store {
	s.txs = Seed()
	s.persist(ctx)
	return s
}

func (s *Store) load(ctx context.Context) ([]domain.Transaction, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot parses a persisted ledger. The snapshot is accepted only
// if every row is valid and ids are unique.
func DecodeSnapshot(data []byte) ([]domain.Transaction, error) {
	var txs *[]domain.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if txs == nil {
		return nil, fmt.Errorf("%w: null snapshot", ErrMalformedSnapshot)
	}

	seen := make(map[string]struct{}, len(*txs))
	for i, tx := range *txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedSnapshot, i, err)
		}
		if _, dup := seen[tx.ID]; dup {
			return nil, fmt.Errorf("%w: row %d: duplicate id %q", ErrMalformedSnapshot, i, tx.ID)
		}
		seen[tx.ID] = struct{}{}
	}
	return *txs, nil
}

// EncodeSnapshot serializes txs in the format DecodeSnapshot reads.
func EncodeSnapshot(txs []domain.Transaction) ([]byte, error) {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return json.Marshal(txs)
}

// Add appends tx and returns the new snapshot. The caller guarantees a
// unique id and a non-negative amount.
func (s *Store) Add(ctx context.Context, tx domain.Transaction) []domain.Transaction {
	s.mu.Lock()
	next := make([]domain.Transaction, len(s.txs), len(s.txs)+1)
	copy(next, s.txs)
	s.txs = append(next, tx)
	s.mu.Unlock()

	s.persist(ctx)
	return s.List()
}

// Remove deletes the transaction with id and returns the snapshot and
// whether anything was removed. An unknown id changes nothing.
func (s *Store) Remove(ctx context.Context, id string) ([]domain.Transaction, bool) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.txs, func(tx domain.Transaction) bool { return tx.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return s.List(), false
	}
	next := make([]domain.Transaction, 0, len(s.txs)-1)
	next = append(next, s.txs[:idx]...)
	next = append(next, s.txs[idx+1:]...)
	s.txs = next
	s.mu.Unlock()

	s.persist(ctx)
	return s.List(), true
}

// List returns a copy of the ledger, newest first: created_at descending,
// then id descending. It never returns nil.
func (s *Store) List() []domain.Transaction {
	s.mu.RLock()
	out := make([]domain.Transaction, len(s.txs))
	copy(out, s.txs)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// Get returns the transaction with id.
func (s *Store) Get(id string) (domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

// Len returns the number of transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// persist writes the latest snapshot. Failures are logged and dropped.
func (s *Store) persist(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	data, err := EncodeSnapshot(s.txs)
	n := len(s.txs)
	s.mu.RUnlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode ledger snapshot")
		return
	}

	// The request that triggered the write may already be finished.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := s.kv.Put(ctx, s.key, data); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Int("transactions", n).Msg("Failed to persist ledger snapshot")
		return
	}
	s.log.Debug().Str("key", s.key).Int("transactions", n).Msg("Ledger snapshot persisted")
}
