package identity

import (
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
)

// Provider is the typed facade over the external User service. Callers must
// treat any error as "KYC not verified": the gate fails closed.
type Provider interface {
	GetIdentity(ctx context.Context, userID string) (*models.IdentitySnapshot, error)
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

func (c *Client) GetIdentity(ctx context.Context, userID string) (*models.IdentitySnapshot, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))

	var ident *models.IdentitySnapshot
	err := c.policy.Do(ctx, "GetIdentity", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return pkgerrors.ErrUserNotFound
		}
		if resp.StatusCode >= 400 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("user service returned %d: %s", resp.StatusCode, payload)
		}

		var snapshot models.IdentitySnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return fmt.Errorf("failed to decode identity response: %w", err)
		}
		ident = &snapshot
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ClientCalls.WithLabelValues("user-service", "GetIdentity", status).Inc()

	if err != nil && !pkgerrors.IsDomain(err) {
		slog.Error("user service call failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrIdentityUnavailable, err)
	}
	return ident, err
}
