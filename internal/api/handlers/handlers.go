package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// LedgerService is the ledger side of dashboard.Service.
type LedgerService interface {
	Transactions() []domain.Transaction
	AddTransaction(ctx context.Context, nt dashboard.NewTransaction) (domain.Transaction, error)
	RemoveTransaction(ctx context.Context, id string) bool
	Summary(months int) (metrics.Summary, error)
}

// TransactionsHandler handles ledger endpoints.
type TransactionsHandler struct {
	svc LedgerService
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc LedgerService, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		svc: svc,
		log: log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.svc.Transactions()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

type createTransactionRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	nt := dashboard.NewTransaction{
		Description: req.Description,
		Amount:      req.Amount,
		Type:        domain.TransactionType(req.Type),
		Category:    req.Category,
	}
	if s := strings.TrimSpace(req.Date); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Date must be YYYY-MM-DD")
			return
		}
		nt.Date = &d
	}

	tx, err := h.svc.AddTransaction(r.Context(), nt)
	if err != nil {
		if errors.Is(err, dashboard.ErrInvalidTransaction) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to add transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to add transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}. Unknown ids
// also answer 204.
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if !h.svc.RemoveTransaction(r.Context(), id) {
		h.log.Debug().Str("transaction_id", id).Msg("Delete of unknown transaction")
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDashboard handles GET /api/dashboard
func (h *TransactionsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	var months int
	if s := r.URL.Query().Get("months"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 120 {
			middleware.WriteError(w, http.StatusBadRequest, "months must be between 1 and 120")
			return
		}
		months = n
	}

	summary, err := h.svc.Summary(months)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}
