package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/resilience"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Adapter is an HTTP provider that delegates the wire format to a Dialect.
// Transient failures (transport errors, 429 and 5xx) are retried.
type Adapter struct {
	cfg     Config
	dialect Dialect
	client  *http.Client
}

// NewWithDialect creates an adapter for dialect.
func NewWithDialect(dialect Dialect, cfg Config) (*Adapter, error) {
	if dialect == nil {
		return nil, fmt.Errorf("llm: dialect is required")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = dialect.Name()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, dialect: dialect, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name returns the configured provider name.
func (a *Adapter) Name() string { return a.cfg.Name }

// IsAvailable reports whether the health endpoint answers with 2xx.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	hp := a.dialect.HealthPath()
	if hp == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+hp, http.NoBody)
	if err != nil {
		return false
	}
	a.setHeaders(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Complete sends req and returns the full response.
func (a *Adapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	a.applyDefaults(&req)
	body, err := a.dialect.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}
	return resilience.Retry(ctx, a.cfg.Retry, func() (*CompletionResponse, error) {
		return a.post(ctx, payload)
	})
}

func (a *Adapter) post(ctx context.Context, payload []byte) (*CompletionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+a.dialect.ChatPath(), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InvalidConfig("base_url", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ExternalServiceError(a.cfg.Name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalServiceError(a.cfg.Name, err)
	}
	if err := classifyStatus(a.cfg.Name, resp.StatusCode, data); err != nil {
		return nil, err
	}
	out, err := a.dialect.ParseResponse(data)
	if err != nil {
		perr := errors.ExternalServiceError(a.cfg.Name, fmt.Errorf("parse response: %w", err))
		perr.Retryable = false
		return nil, perr
	}
	return out, nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
}

func (a *Adapter) applyDefaults(req *CompletionRequest) {
	if req.Model == "" {
		req.Model = a.cfg.Model
	}
	if req.Temperature == 0 {
		req.Temperature = a.cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = a.cfg.MaxTokens
	}
}

func classifyStatus(service string, code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err := errors.ExternalServiceError(service, fmt.Errorf("HTTP %d: %s", code, bytes.TrimSpace(body)))
	if code != http.StatusTooManyRequests && code < 500 {
		err.Retryable = false
	}
	return err
}
