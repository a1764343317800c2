package circuitbreaker

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker and records metrics
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	name    string
	service string
}

// NewHTTPWrapper creates an HTTP wrapper using the synthesis breaker settings.
func NewHTTPWrapper(client *http.Client, name, service string, logger *zap.Logger) *HTTPWrapper {
	return NewHTTPWrapperWithConfig(client, name, service, SynthesisSettings().ToConfig(), logger)
}

// NewHTTPWrapperWithConfig is NewHTTPWrapper with explicit breaker config
func NewHTTPWrapperWithConfig(client *http.Client, name, service string, cfg Config, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(name, cfg, logger)
	GlobalMetricsCollector.Register(name, service, cb)
	return &HTTPWrapper{client: client, cb: cb, name: name, service: service}
}

// Do executes the request through the breaker. 5xx responses count as
// breaker failures but are still handed back to the caller with a nil error;
// 4xx responses never trip the breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// State reports the breaker state
func (hw *HTTPWrapper) State() State { return hw.cb.State() }

// IsOpen reports whether calls are currently rejected
func (hw *HTTPWrapper) IsOpen() bool { return hw.cb.State() == StateOpen }

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return strconv.Itoa(e.code) + " " + http.StatusText(e.code)
}
