package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finvault/transaction-service/internal/models"
	service "github.com/finvault/transaction-service/internal/services"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service service.TransactionService
}

func NewHandler(s service.TransactionService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps the service error taxonomy onto HTTP statuses. Unknown
// errors stay 500 so transport details never leak as client faults.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrAccountNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrUnauthorizedUser):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrTransactionProcessing),
		errors.Is(err, pkgerrors.ErrLedgerUnavailable),
		errors.Is(err, pkgerrors.ErrIdentityUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes attaches the transaction endpoints to a router already
// rooted at /transactions.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/deposit", h.Deposit).Methods("POST")
	r.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	r.HandleFunc("/transfer", h.Transfer).Methods("POST")
	r.HandleFunc("/account/{accountId}", h.ListByAccount).Methods("GET")
	r.HandleFunc("/{transactionId}", h.GetTransaction).Methods("GET")
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string          `json:"account_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AccountID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("account_id is required"))
		return
	}

	tx, err := h.service.Deposit(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string          `json:"account_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AccountID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("account_id is required"))
		return
	}

	tx, err := h.service.Withdraw(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromAccountNumber string          `json:"from_account_number"`
		ToAccountNumber   string          `json:"to_account_number"`
		Amount            decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.FromAccountNumber == "" || req.ToAccountNumber == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("from_account_number and to_account_number are required"))
		return
	}

	tx, err := h.service.Transfer(r.Context(), req.FromAccountNumber, req.ToAccountNumber, req.Amount)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["transactionId"]

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	transactions, err := h.service.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, transactions)
}
