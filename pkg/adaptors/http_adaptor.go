package adaptors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"
)

// HTTPAdaptor is the base implementation for HTTP-backed adaptor variants.
// It provides connection pooling, retry with exponential backoff, timeout
// handling, and health accounting.
//
// Concrete variants embed this struct and implement the Adaptor methods
// on top of DoRequest/DoJSONRequest.
type HTTPAdaptor struct {
	// config contains the adaptor configuration
	config Config

	// client is the HTTP client with connection pooling
	client *http.Client

	// health tracks the adaptor's health status
	health Health

	// healthMu protects concurrent access to health status
	healthMu sync.RWMutex
}

// NewHTTPAdaptor creates a new base HTTP adaptor with connection pooling.
func NewHTTPAdaptor(config Config) *HTTPAdaptor {
	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPAdaptor{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		health: Health{
			IsHealthy: true, // start optimistic
			LastCheck: time.Now(),
		},
	}
}

// Name returns the endpoint slug.
func (a *HTTPAdaptor) Name() string {
	return a.config.Slug
}

// Type returns the adaptor type identifier.
func (a *HTTPAdaptor) Type() string {
	return a.config.Type
}

// Config returns the adaptor's configuration.
func (a *HTTPAdaptor) Config() Config {
	return a.config
}

// IsHealthy returns the current health status.
func (a *HTTPAdaptor) IsHealthy() bool {
	a.healthMu.RLock()
	defer a.healthMu.RUnlock()
	return a.health.IsHealthy
}

// Health returns detailed health information.
func (a *HTTPAdaptor) Health() Health {
	a.healthMu.RLock()
	defer a.healthMu.RUnlock()
	return a.health
}

// updateHealth updates the adaptor's health status after a request.
func (a *HTTPAdaptor) updateHealth(success bool, err error) {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	a.health.LastCheck = time.Now()

	if success {
		a.health.IsHealthy = true
		a.health.ConsecutiveFailures = 0
		a.health.LastError = nil
	} else {
		a.health.ConsecutiveFailures++
		a.health.LastError = err

		// Mark unhealthy after 3 consecutive failures
		if a.health.ConsecutiveFailures >= 3 {
			a.health.IsHealthy = false
			slog.Warn("endpoint marked unhealthy",
				"endpoint", a.config.Slug,
				"consecutive_failures", a.health.ConsecutiveFailures,
				"error", err,
			)
		}
	}
}

// recordRequest records request counters.
func (a *HTTPAdaptor) recordRequest(success bool) {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	a.health.TotalRequests++
	if !success {
		a.health.FailedRequests++
	}
}

// AuthHeaders returns the authorization headers for this endpoint, or an
// empty map when the endpoint requires no key.
func (a *HTTPAdaptor) AuthHeaders() map[string]string {
	if a.config.APIKey == "" {
		return map[string]string{}
	}
	return map[string]string{
		"Authorization": "Bearer " + a.config.APIKey,
	}
}

// DoRequest performs an HTTP request with retry and timeout handling.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff up to MaxRetries; 4xx failures are surfaced immediately as
// tagged errors.
func (a *HTTPAdaptor) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			slog.Debug("retrying request",
				"endpoint", a.config.Slug,
				"attempt", attempt,
				"max_retries", a.config.MaxRetries,
				"backoff", backoff,
			)

			select {
			case <-ctx.Done():
				return nil, &TimeoutError{Endpoint: a.config.Slug, Timeout: a.config.Timeout}
			case <-time.After(backoff):
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for key, value := range headers {
			req.Header.Set(key, value)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = err
			a.recordRequest(false)

			if ctx.Err() != nil {
				// Context cancelled or deadline exceeded; do not retry.
				return nil, &TimeoutError{
					Endpoint: a.config.Slug,
					Timeout:  a.config.Timeout,
				}
			}

			slog.Warn("request failed, will retry",
				"endpoint", a.config.Slug,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			a.recordRequest(true)
			a.updateHealth(true, nil)
			return resp, nil
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			a.recordRequest(false)
			a.updateHealth(false, fmt.Errorf("authentication failed"))
			return nil, &AuthError{
				Endpoint: a.config.Slug,
				Message:  string(errorBody),
			}

		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Client-side error; retrying the same payload cannot help.
			a.recordRequest(false)
			return nil, &AdaptorError{
				Endpoint:   a.config.Slug,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
				Code:       "backend_rejected",
			}

		default:
			lastErr = &AdaptorError{
				Endpoint:   a.config.Slug,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
				Code:       "backend_error",
			}
			a.recordRequest(false)

			slog.Warn("request returned error status, will retry",
				"endpoint", a.config.Slug,
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		}
	}

	a.updateHealth(false, lastErr)
	return nil, lastErr
}

// DoJSONRequest performs a JSON request and decodes the response body.
func (a *HTTPAdaptor) DoJSONRequest(ctx context.Context, method, url string, reqBody, respBody interface{}, headers map[string]string) ([]byte, error) {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := a.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ParseError{
			Endpoint: a.config.Slug,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return nil, &ParseError{
				Endpoint:    a.config.Slug,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return responseBytes, nil
}

// Close releases idle HTTP connections.
func (a *HTTPAdaptor) Close() error {
	a.client.CloseIdleConnections()
	slog.Debug("adaptor closed", "endpoint", a.config.Slug)
	return nil
}
