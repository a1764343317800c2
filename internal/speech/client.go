package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/tracing"
)

// DefaultMaxAudioBytes caps a synthesis response body.
const DefaultMaxAudioBytes = 32 << 20

var ErrPayloadTooLarge = errors.New("synthesis payload too large")

// StatusError is a non-2xx synthesis response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("synthesis endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("synthesis endpoint returned %d: %s", e.Code, e.Body)
}

// Synthesizer converts text to an encoded audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	Endpoint      string
	MaxAudioBytes int64
	HTTPClient    *http.Client
}

type synthesisRequest struct {
	Text string `json:"text"`
}

// HTTPClient posts {"text": ...} to the synthesis endpoint through a circuit
// breaker.
type HTTPClient struct {
	endpoint string
	maxBytes int64
	http     *circuitbreaker.HTTPWrapper
	logger   *zap.Logger
}

// NewHTTPClient creates a synthesis client
func NewHTTPClient(cfg ClientConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.HTTPClient == nil {
		// The pipeline bounds each request with its own deadline.
		cfg.HTTPClient = &http.Client{Timeout: 0}
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		maxBytes: cfg.MaxAudioBytes,
		http:     circuitbreaker.NewHTTPWrapper(cfg.HTTPClient, "synthesis", "speech", logger),
		logger:   logger,
	}
}

func (c *HTTPClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, c.endpoint)
	defer span.End()

	body, err := json.Marshal(synthesisRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav, audio/*;q=0.9")
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read synthesis payload: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, c.maxBytes)
	}

	c.logger.Debug("Synthesis response received",
		zap.Int("bytes", len(data)),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}

// BreakerOpen reports whether the synthesis breaker is rejecting calls.
func (c *HTTPClient) BreakerOpen() bool { return c.http.IsOpen() }
