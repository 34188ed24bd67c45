// ABOUTME: External-request two-factor handler fetching the code over HTTP
// ABOUTME: The response body is the code; an empty body means none is available yet

package twofa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
)

type externalRequestHandler struct {
	method  string
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

func newExternalRequest(cfg config.TwoFAConfig, logger *slog.Logger) (Handler, error) {
	if cfg.ExternalRequestURL == "" {
		return nil, fmt.Errorf("EXTERNAL_REQUEST handler requires two_fa.external_request_url")
	}

	method := cfg.ExternalRequestMethod
	if method == "" {
		method = http.MethodGet
	}

	return &externalRequestHandler{
		method:  method,
		url:     cfg.ExternalRequestURL,
		headers: cfg.ExternalRequestHeaders,
		client:  &http.Client{Timeout: cfg.ExternalRequestTimeout},
		logger:  logger,
	}, nil
}

func (h *externalRequestHandler) Acquire(ctx context.Context, _ browser.Session) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("building two-factor request: %w", err)
	}
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("requesting two-factor code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Outcome{}, fmt.Errorf("reading two-factor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Error("Two-factor endpoint returned non-OK status", "status", resp.StatusCode)
		return Outcome{}, nil
	}

	return Outcome{Code: strings.TrimSpace(string(body))}, nil
}

func (h *externalRequestHandler) Name() string { return "EXTERNAL_REQUEST" }
