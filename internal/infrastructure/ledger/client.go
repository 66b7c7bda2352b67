package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/observability"
	"github.com/finvault/transaction-service/internal/infrastructure/resilience"
	"github.com/finvault/transaction-service/internal/models"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// AccountLedger is the typed facade over the external Account service, the
// system of record for balances.
type AccountLedger interface {
	GetAccount(ctx context.Context, accountID string) (*models.AccountSnapshot, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error)
	Deposit(ctx context.Context, accountID, transactionID string, amount decimal.Decimal) (*models.AccountSnapshot, error)
	Withdraw(ctx context.Context, accountID, transactionID string, amount decimal.Decimal) (*models.AccountSnapshot, error)
}

// mutationRequest carries the transaction id so the Account service can
// deduplicate applies by transaction id.
type mutationRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type Client struct {
	baseURL string
	httpc   *http.Client
	policy  *resilience.Policy
}

func NewClient(baseURL string, timeout time.Duration, policy *resilience.Policy) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		policy:  policy,
	}
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*models.AccountSnapshot, error) {
	return c.fetch(ctx, "GetAccount", fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(accountID)))
}

func (c *Client) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.AccountSnapshot, error) {
	return c.fetch(ctx, "GetAccountByNumber", fmt.Sprintf("%s/accounts/number/%s", c.baseURL, url.PathEscape(accountNumber)))
}

func (c *Client) Deposit(ctx context.Context, accountID, transactionID string, amount decimal.Decimal) (*models.AccountSnapshot, error) {
	return c.apply(ctx, "Deposit", fmt.Sprintf("%s/accounts/%s/deposit", c.baseURL, url.PathEscape(accountID)), transactionID, amount)
}

func (c *Client) Withdraw(ctx context.Context, accountID, transactionID string, amount decimal.Decimal) (*models.AccountSnapshot, error) {
	return c.apply(ctx, "Withdraw", fmt.Sprintf("%s/accounts/%s/withdraw", c.baseURL, url.PathEscape(accountID)), transactionID, amount)
}

func (c *Client) fetch(ctx context.Context, method, endpoint string) (*models.AccountSnapshot, error) {
	var account *models.AccountSnapshot
	err := c.policy.Do(ctx, method, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		var callErr error
		account, callErr = c.decode(req)
		return callErr
	})
	c.count(method, err)
	return account, c.surface(method, err)
}

func (c *Client) apply(ctx context.Context, method, endpoint, transactionID string, amount decimal.Decimal) (*models.AccountSnapshot, error) {
	body, err := json.Marshal(mutationRequest{TransactionID: transactionID, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", pkgerrors.ErrInternal, err)
	}

	var account *models.AccountSnapshot
	err = c.policy.Do(ctx, method, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		var callErr error
		account, callErr = c.decode(req)
		return callErr
	})
	c.count(method, err)
	return account, c.surface(method, err)
}

func (c *Client) decode(req *http.Request) (*models.AccountSnapshot, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.ErrAccountNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, pkgerrors.ErrInsufficientFunds
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("account service returned %d: %s", resp.StatusCode, payload)
	}

	var account models.AccountSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	return &account, nil
}

// surface maps exhausted retries and open circuits to a distinguishable
// "ledger unavailable" error. Domain outcomes pass through unchanged; a
// synthetic success is never fabricated.
func (c *Client) surface(method string, err error) error {
	if err == nil || pkgerrors.IsDomain(err) {
		return err
	}
	slog.Error("account service call failed", "method", method, "error", err)
	return fmt.Errorf("%w: %s: %w", pkgerrors.ErrLedgerUnavailable, method, err)
}

func (c *Client) count(method string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ClientCalls.WithLabelValues("account-service", method, status).Inc()
}
