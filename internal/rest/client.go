package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/minhbui/trovia/internal/metrics"
	"github.com/minhbui/trovia/internal/session"
	"go.uber.org/zap"
)

// expirySkew is how close to its exp claim an access token may get before
// the pipeline refreshes proactively instead of burning a round trip on a
// guaranteed 401.
const expirySkew = 30 * time.Second

// Client is the authenticated request pipeline for the Trovia REST backend.
//
// Every call through Do carries the current access token from the session
// store. On a 401/403 for a non-auth endpoint the pipeline refreshes the
// token and replays the call once; concurrent calls arriving while a refresh
// is in flight are parked in arrival order and replayed in that order once
// the refresh settles. At most one refresh call is ever in flight.
type Client struct {
	base   string
	http   *http.Client
	bare   *http.Client // refresh-only client, never intercepted
	store  session.Store
	logger *zap.Logger

	onExpired func()

	mu         sync.Mutex
	refreshing bool
	pending    []*pendingCall
}

type result struct {
	body []byte
	err  error
}

// pendingCall is an outbound call captured while a refresh is in flight.
// It settles exactly once, when the refresh does. The caller's context rides
// along so a call cancelled while parked is not executed upstream.
type pendingCall struct {
	ctx  context.Context
	req  *Request
	done chan result
}

// New creates a pipeline client for the given API base URL. The session
// store is the only holder of token state; the pipeline is its only writer.
func New(baseURL string, store session.Store, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   baseURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		bare:   &http.Client{Timeout: 30 * time.Second},
		store:  store,
		logger: logger,
	}
}

// SetSessionExpiredHandler registers the callback fired exactly once when a
// refresh fails terminally (the global forced-logout hook).
func (c *Client) SetSessionExpiredHandler(fn func()) {
	c.onExpired = fn
}

// Do executes a request through the pipeline and returns the response body.
func (c *Client) Do(ctx context.Context, req *Request) ([]byte, error) {
	st, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	token := st.AccessToken

	// A token that is about to lapse gets refreshed up front; the call is
	// handled exactly like one that already came back 401.
	if token != "" && !isAuthPath(req.Path) && tokenExpired(token) {
		return c.recover(ctx, req, &APIError{Status: 401, Message: "access token expired"})
	}

	body, status, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if status < 400 {
		return body, nil
	}
	if isAuthStatus(status) && !isAuthPath(req.Path) {
		return c.recover(ctx, req, apiError(status, body))
	}
	return nil, apiError(status, body)
}

// recover handles an authorization failure for req: join an in-flight
// refresh, or start one and drain the queue when it settles.
func (c *Client) recover(ctx context.Context, req *Request, origErr *APIError) ([]byte, error) {
	c.mu.Lock()
	if c.refreshing {
		pc := &pendingCall{ctx: ctx, req: req, done: make(chan result, 1)}
		c.pending = append(c.pending, pc)
		c.mu.Unlock()
		metrics.QueuedDuringRefresh.Inc()
		select {
		case res := <-pc.done:
			return res.body, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, rerr := c.refresh(ctx)
	if rerr != nil {
		c.rejectPending(rerr)
		if errors.Is(rerr, ErrAuthExpired) {
			return nil, rerr
		}
		// Transient refresh failure: the session survives and the caller
		// sees the original authorization error.
		c.logger.Warn("token refresh failed", zap.Error(rerr))
		return nil, origErr
	}

	queue := c.takePending()
	body, err := c.replay(ctx, req, token)
	go c.drain(queue, token)
	return body, err
}

// replay resubmits a request with the fresh token. A second authorization
// failure is surfaced directly, never looped.
func (c *Client) replay(ctx context.Context, req *Request, token string) ([]byte, error) {
	metrics.RetriesTotal.Inc()
	body, status, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, apiError(status, body)
	}
	return body, nil
}

// drain replays parked calls sequentially in arrival order, each under its
// own caller's context.
func (c *Client) drain(queue []*pendingCall, token string) {
	for _, pc := range queue {
		if pc.ctx.Err() != nil {
			pc.done <- result{err: pc.ctx.Err()}
			continue
		}
		body, err := c.replay(pc.ctx, pc.req, token)
		pc.done <- result{body: body, err: err}
	}
}

// takePending snapshots and clears the queue and ends the refresh cycle.
func (c *Client) takePending() []*pendingCall {
	c.mu.Lock()
	queue := c.pending
	c.pending = nil
	c.refreshing = false
	c.mu.Unlock()
	return queue
}

// rejectPending fails every parked call with the refresh error and, on a
// terminal failure, fires the session-expired callback exactly once.
func (c *Client) rejectPending(rerr error) {
	queue := c.takePending()
	for _, pc := range queue {
		pc.done <- result{err: rerr}
	}
	if errors.Is(rerr, ErrAuthExpired) {
		c.logger.Warn("session expired, forcing logout")
		if c.onExpired != nil {
			c.onExpired()
		}
	}
}

// send performs one attempt and returns body + status. A transport error
// (no response at all) is returned as-is and never retried automatically.
func (c *Client) send(ctx context.Context, req *Request, token string) ([]byte, int, error) {
	httpReq, err := c.build(ctx, req, token)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		return nil, 0, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	metrics.RequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode/100*100)).Inc()
	return body, resp.StatusCode, nil
}

// isAuthPath reports whether the endpoint is itself part of the auth
// handshake. Such calls are never intercepted, queued or retried.
func isAuthPath(path string) bool {
	switch path {
	case "/auth/login", "/auth/google-login", "/auth/refresh-token":
		return true
	}
	return false
}

// tokenExpired inspects the access token's exp claim without verifying the
// signature; the backend remains the authority, this only saves a round trip.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < expirySkew
}
