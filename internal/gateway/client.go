// ABOUTME: HTTP client for the gateway's session endpoints
// ABOUTME: Folds transport failures into status snapshots instead of surfacing them

package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/status"
)

// maxBodyBytes caps how much of a gateway response we read.
const maxBodyBytes = 1 << 20

// Client talks to the gateway's session endpoints over HTTPS.
//
// The gateway serves a self-signed certificate by default, so verification
// is skipped unless a CA bundle is configured.
type Client struct {
	baseURL string
	routes  Routes

	httpClient *http.Client
	retries    int
	logger     *slog.Logger
}

// Routes holds the gateway route paths, relative to the base URL.
type Routes struct {
	Auth           string
	Tickle         string
	Validate       string
	Logout         string
	Reauthenticate string
	Initialise     string
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) (*Client, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: true} //nolint:gosec // gateway uses a self-signed cert
	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertPath)
		}
		tlsCfg = &tls.Config{RootCAs: pool}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		routes: Routes{
			Auth:           cfg.RouteAuth,
			Tickle:         cfg.RouteTickle,
			Validate:       cfg.RouteValidate,
			Logout:         cfg.RouteLogout,
			Reauthenticate: cfg.RouteReauthenticate,
			Initialise:     cfg.RouteInitialise,
		},
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		retries: cfg.RequestRetries,
		logger:  logger.With("component", "gateway"),
	}, nil
}

// BaseURL returns the configured gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginURL returns the absolute URL of the browser login page.
func (c *Client) LoginURL() string {
	return c.baseURL + c.routes.Auth
}

// Status fetches the tickle endpoint and classifies the result.
//
// Transport failures never surface as errors. A refused connection means the
// gateway process is down; a timeout means the process is up but the API is
// unresponsive; a 401 or a no-session body means there is no brokerage
// session. Each of those maps onto the returned snapshot.
func (c *Client) Status(ctx context.Context) status.Status {
	base := status.Status{Running: true, Session: true}

	body, err := c.get(ctx, c.routes.Tickle)
	if err != nil {
		return c.classifyRequestError(err)
	}

	if string(bytes.TrimSpace(body)) == status.NoSessionSentinel {
		return status.Status{Running: true, Session: false, Raw: body}
	}

	st, err := status.ParseTickle(base, body)
	if err != nil {
		c.logger.Error("Malformed tickle response", "error", err, "body", truncate(body))
		return status.Status{Running: true, Session: false, Raw: body}
	}
	return st
}

// Validate checks whether the SSO session is valid.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, c.routes.Validate)
	if err != nil {
		var httpErr *statusError
		if errors.As(err, &httpErr) {
			c.logger.Debug("Validate returned non-OK status", "status", httpErr.code)
			return false, nil
		}
		return false, fmt.Errorf("validating session: %w", err)
	}
	c.logger.Debug("Session validated", "body", truncate(body))
	return true, nil
}

// Logout terminates the current brokerage session. It reports whether the
// gateway confirmed the logout.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, c.routes.Logout)
	if err != nil {
		var httpErr *statusError
		if errors.As(err, &httpErr) {
			c.logger.Warn("Logout rejected", "status", httpErr.code)
			return false, nil
		}
		return false, fmt.Errorf("logging out: %w", err)
	}
	return bytes.Contains(body, []byte("true")), nil
}

// Reauthenticate asks the gateway to re-establish the brokerage session
// using its existing SSO session.
func (c *Client) Reauthenticate(ctx context.Context) error {
	if _, err := c.get(ctx, c.routes.Reauthenticate); err != nil {
		return fmt.Errorf("reauthenticating: %w", err)
	}
	c.logger.Info("Reauthentication requested")
	return nil
}

// Initialise asks the gateway to (re)initialise the brokerage session.
func (c *Client) Initialise(ctx context.Context) error {
	payload := []byte(`{"publish":true,"compete":true}`)
	if _, err := c.do(ctx, http.MethodPost, c.routes.Initialise, payload); err != nil {
		return fmt.Errorf("initialising session: %w", err)
	}
	c.logger.Info("Session initialisation requested")
	return nil
}

// classifyRequestError maps a failed tickle request onto a status snapshot.
func (c *Client) classifyRequestError(err error) status.Status {
	var httpErr *statusError
	if errors.As(err, &httpErr) {
		switch httpErr.code {
		case http.StatusUnauthorized:
			// Gateway is up but nobody is signed in.
			return status.Status{Running: true, Session: false, Raw: httpErr.body}
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			c.logger.Error("Gateway returned server error", "status", httpErr.code, "body", truncate(httpErr.body))
			return status.Status{Running: true, Session: false, Raw: httpErr.body}
		default:
			c.logger.Error("Unexpected gateway response", "status", httpErr.code, "body", truncate(httpErr.body))
			return status.Status{Running: true, Session: false, Raw: httpErr.body}
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EADDRNOTAVAIL) {
		return status.Status{Running: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Warn("Gateway request timed out, process appears hung", "error", err)
		return status.Status{Running: true, Session: false}
	}

	// Anything else (DNS failures, TLS oddities) does not prove the process
	// is down, so treat the gateway as running but unhealthy.
	c.logger.Warn("Unrecognised error while polling gateway", "error", err)
	return status.Status{Running: true, Session: false}
}

// statusError is returned by do for non-2xx responses.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.code)
}

func (c *Client) get(ctx context.Context, route string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, route, nil)
}

// do performs a request with bounded retries on transient failures. Transport
// errors and 5xx responses are retried; 4xx responses are not.
func (c *Client) do(ctx context.Context, method, route string, payload []byte) ([]byte, error) {
	url := c.baseURL + route

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying gateway request", "route", route, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		body, err := c.doOnce(ctx, method, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.code < 500 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "gateway-sentry")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, body: body}
	}
	return body, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
