// Package webhook implements an actor that posts messages to an HTTP
// endpoint, such as a chat incoming-webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Config configures the webhook actor.
type Config struct {
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds each request.
	// Default: 30 seconds
	Timeout time.Duration
}

// Actor posts {"text": ...} to a webhook URL.
type Actor struct {
	cfg    Config
	client ports.HTTPClient
	logger log.Logger
	ready  atomic.Bool
}

var _ ports.Actor = (*Actor)(nil)

// New creates a webhook actor. A nil client uses a default *http.Client.
func New(cfg Config, client ports.HTTPClient, logger log.Logger) (*Actor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", domain.ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Actor{cfg: cfg, client: client, logger: logger}, nil
}

type postBody struct {
	Text string `json:"text"`
}

// Initialize probes the endpoint with a HEAD request. Any response other
// than an authorization failure counts as reachable; many webhooks reject
// HEAD with 405.
func (a *Actor) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe webhook: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("probe webhook: server returned %d", resp.StatusCode)
	}
	a.ready.Store(true)
	a.logger.Info("webhook actor ready", log.Int("status", resp.StatusCode))
	return nil
}

func (a *Actor) PostMessage(ctx context.Context, text string) error {
	if !a.ready.Load() {
		return &ports.ActorError{Op: "post", Err: domain.ErrSessionLost}
	}

	body, err := json.Marshal(postBody{Text: text})
	if err != nil {
		return &ports.ActorError{Op: "post", Err: fmt.Errorf("marshal body: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return &ports.ActorError{Op: "post", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return &ports.ActorError{Op: "post", Retryable: true, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return statusError(resp.StatusCode, string(respBody))
}

// Shutdown forgets the session; there is nothing to release.
func (a *Actor) Shutdown(ctx context.Context) error {
	a.ready.Store(false)
	return nil
}

func (a *Actor) authorize(req *http.Request) {
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
}

func statusError(code int, body string) error {
	cause := fmt.Errorf("server returned %d: %s", code, body)
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusNotFound, code == http.StatusGone:
		return &ports.ActorError{Op: "post", Err: errors.Join(domain.ErrSessionLost, cause)}
	case code == http.StatusTooManyRequests, code >= 500:
		return &ports.ActorError{Op: "post", Retryable: true, Err: cause}
	default:
		return &ports.ActorError{Op: "post", Err: cause}
	}
}
