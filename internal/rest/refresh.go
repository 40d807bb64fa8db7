package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/minhbui/trovia/internal/metrics"
	"go.uber.org/zap"
)

// refresh exchanges the stored refresh token for a new token pair.
//
// It fails fast with ErrAuthExpired when no refresh token is stored, uses an
// isolated HTTP client so the refresh call can never be intercepted
// recursively, and merges new tokens into the existing session (the
// logged-in user survives a refresh). A 401/403 from the refresh endpoint
// clears the session; any other failure leaves it untouched.
func (c *Client) refresh(ctx context.Context) (string, error) {
	st, err := c.store.Load()
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if st.RefreshToken == "" {
		metrics.RefreshesTotal.WithLabelValues("expired").Inc()
		_ = c.store.Clear()
		return "", ErrAuthExpired
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": st.RefreshToken})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/auth/refresh-token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.bare.Do(httpReq)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if isAuthStatus(resp.StatusCode) {
		metrics.RefreshesTotal.WithLabelValues("expired").Inc()
		c.logger.Warn("refresh token rejected", zap.Int("status", resp.StatusCode))
		_ = c.store.Clear()
		return "", ErrAuthExpired
	}
	if resp.StatusCode >= 400 {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return "", apiError(resp.StatusCode, body)
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tokens); err != nil {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("refresh response missing access_token")
	}

	st.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		st.RefreshToken = tokens.RefreshToken
	}
	if err := c.store.Save(st); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	metrics.RefreshesTotal.WithLabelValues("success").Inc()
	c.logger.Info("access token refreshed")
	return st.AccessToken, nil
}
