// Package client is the tracker side of the dispatch transport. It
// forwards trigger records to a zonecast server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bft-labs/zonecast/internal/adapters/transport"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Config configures the client.
type Config struct {
	ServerURL string
	AuthToken string

	// Timeout bounds a single request. The server holds /deliver open for
	// the whole retry budget, so this is generous.
	// Default: 5 minutes
	Timeout time.Duration

	// ConnectAttempts is how many times a request that never reached the
	// server is tried.
	// Default: 3
	ConnectAttempts int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Client is an HTTP ports.TriggerSink.
type Client struct {
	cfg    Config
	http   ports.HTTPClient
	logger log.Logger
	// bo is shared across calls so an unreachable server keeps being
	// backed off until a request gets through.
	bo *backoff
}

var _ ports.TriggerSink = (*Client)(nil)

// New creates a client. A nil httpClient uses a default *http.Client.
func New(cfg Config, httpClient ports.HTTPClient, logger log.Logger) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("%w: server url is required", domain.ErrInvalidConfig)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		bo:     newBackoff(cfg.BackoffInitial, cfg.BackoffMax),
	}, nil
}

// Deliver posts the record to /deliver. Non-2xx answers become a
// *domain.DeliveryError carrying the server's retryable hint.
func (c *Client) Deliver(ctx context.Context, record domain.TriggerRecord) error {
	body, err := json.Marshal(transport.NewDeliverRequest(record))
	if err != nil {
		return &domain.DeliveryError{RecordID: record.ID, Err: fmt.Errorf("marshal request: %w", err)}
	}

	resp, err := c.do(ctx, http.MethodPost, transport.DeliverPath, body)
	if err != nil {
		return &domain.DeliveryError{RecordID: record.ID, Retryable: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	var out transport.DeliverResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode/100 == 2 {
			return &domain.DeliveryError{RecordID: record.ID, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	if resp.StatusCode/100 == 2 {
		c.logger.Debug("record delivered",
			log.String("record", record.ID),
			log.String("message", out.Message),
			log.Bool("duplicate", out.Duplicate),
		)
		return nil
	}

	msg := out.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	cause := fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	if resp.StatusCode == http.StatusServiceUnavailable {
		cause = fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, cause)
	}
	return &domain.DeliveryError{
		RecordID:  record.ID,
		Attempts:  1,
		Retryable: out.Retryable || resp.StatusCode == http.StatusTooManyRequests,
		Err:       cause,
	}
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (transport.StatusResponse, error) {
	var out transport.StatusResponse
	resp, err := c.do(ctx, http.MethodGet, transport.StatusPath, nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return out, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode status: %w", err)
	}
	return out, nil
}

// do sends a request, retrying with backoff while the server cannot be
// reached. Any HTTP response, whatever its status, ends the loop.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		resp, err := c.send(ctx, method, path, body)
		if err == nil {
			c.bo.Reset()
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt == c.cfg.ConnectAttempts {
			break
		}
		c.logger.Warn("server unreachable, backing off",
			log.String("path", path),
			log.Int("attempt", attempt),
			log.Duration("backoff", c.bo.Current()),
			log.Err(err),
		)
		if err := c.bo.Sleep(ctx); err != nil {
			return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ServerURL+path, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send request: %w", err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the request timeout once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
