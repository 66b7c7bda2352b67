package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/observability"
)

const TypeEmail = "EMAIL"

// Request mirrors the bus event payload shape; the Notification service is
// expected to be idempotent per user and transaction.
type Request struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DirectNotifier delivers a notification synchronously, bypassing the event
// bus. Used only as the fallback path when bus publication fails.
type DirectNotifier interface {
	SendEmail(ctx context.Context, req Request) error
}

type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  *TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokens *TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) SendEmail(ctx context.Context, notification Request) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications/send-email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		observability.ClientCalls.WithLabelValues("notification-service", "SendEmail", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		observability.ClientCalls.WithLabelValues("notification-service", "SendEmail", "error").Inc()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, payload)
	}
	observability.ClientCalls.WithLabelValues("notification-service", "SendEmail", "success").Inc()
	return nil
}
