package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/resilience"
	"github.com/finvault/transaction-service/internal/models"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(attempts int) *resilience.Policy {
	retryable := func(err error) bool { return err != nil && !pkgerrors.IsDomain(err) }
	return resilience.NewPolicy("account-service-test", attempts, time.Millisecond, 100, time.Second, retryable)
}

func TestClient_GetAccount(t *testing.T) {
	t.Run("decodes the snapshot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/A1", r.URL.Path)
			json.NewEncoder(w).Encode(models.AccountSnapshot{
				AccountID:     "A1",
				UserID:        "u1",
				AccountNumber: "1111",
				Balance:       decimal.NewFromInt(1000),
				Status:        models.AccountActive,
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, testPolicy(1))
		account, err := client.GetAccount(context.Background(), "A1")
		require.NoError(t, err)
		assert.Equal(t, "u1", account.UserID)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("404 surfaces not found without retrying", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, testPolicy(3))
		_, err := client.GetAccount(context.Background(), "missing")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
		assert.NotErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("5xx retries then reports the ledger unavailable", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, testPolicy(3))
		_, err := client.GetAccount(context.Background(), "A1")
		assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestClient_Withdraw(t *testing.T) {
	t.Run("posts the transaction id for deduplication", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/accounts/A1/withdraw", r.URL.Path)
			var req mutationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "tx-1", req.TransactionID)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(250)))
			json.NewEncoder(w).Encode(models.AccountSnapshot{AccountID: "A1", Balance: decimal.NewFromInt(750)})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, testPolicy(1))
		account, err := client.Withdraw(context.Background(), "A1", "tx-1", decimal.NewFromInt(250))
		require.NoError(t, err)
		assert.True(t, account.Balance.Equal(decimal.NewFromInt(750)))
	})

	t.Run("422 surfaces insufficient funds", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, testPolicy(3))
		_, err := client.Withdraw(context.Background(), "A1", "tx-1", decimal.NewFromInt(250))
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	})
}

func TestClient_BreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	retryable := func(err error) bool { return err != nil && !pkgerrors.IsDomain(err) }
	policy := resilience.NewPolicy("account-service-breaker", 1, time.Millisecond, 2, time.Minute, retryable)
	client := NewClient(srv.URL, time.Second, policy)

	_, err := client.GetAccount(context.Background(), "A1")
	assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
	_, err = client.GetAccount(context.Background(), "A1")
	assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)

	// Threshold reached: the breaker now rejects without touching the server.
	_, err = client.GetAccount(context.Background(), "A1")
	assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
