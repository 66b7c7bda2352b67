package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource holds the process-wide service-account token used for direct
// notification calls. It refreshes on a fixed interval via the
// client-credentials grant; on failure the cached token is cleared so stale
// credentials are never presented downstream.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	interval     time.Duration
	httpc        *http.Client

	mu    sync.RWMutex
	token string
}

func NewTokenSource(tokenURL, clientID, clientSecret string, interval time.Duration) *TokenSource {
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		interval:     interval,
		httpc:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Start refreshes immediately and then on every tick until ctx is cancelled.
func (ts *TokenSource) Start(ctx context.Context) {
	if err := ts.Refresh(ctx); err != nil {
		slog.Error("initial service token refresh failed", "error", err)
	}
	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ts.Refresh(ctx); err != nil {
				slog.Error("service token refresh failed", "error", err)
			}
		}
	}
}

func (ts *TokenSource) Refresh(ctx context.Context) error {
	if ts.tokenURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpc.Do(req)
	if err != nil {
		ts.clear()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		ts.clear()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		ts.clear()
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	ts.mu.Lock()
	ts.token = body.AccessToken
	ts.mu.Unlock()
	slog.Info("service-to-service token refreshed")
	return nil
}

func (ts *TokenSource) Token() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.token
}

func (ts *TokenSource) clear() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}
