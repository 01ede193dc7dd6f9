// Package callwebhook provides the call_webhook action handler.
package callwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidewater/conveyor/pkg/models"
)

const (
	defaultTimeoutSeconds = 30
	maxResponseBytes      = 64 * 1024
)

var ErrURLRequired = errors.New("call_webhook requires a url")

// Action performs an HTTP request to an external endpoint with optional
// headers, body, and retry on transient failures.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig

	client *http.Client
}

// RetryConfig defines retry behavior for webhook calls.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

func NewAction(payload map[string]any) (*Action, error) {
	url, _ := payload["url"].(string)
	if url == "" {
		return nil, ErrURLRequired
	}

	method, _ := payload["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := payload["body"].(string)

	headers := make(map[string]string)

	if headersConfig, ok := payload["headers"].(map[string]any); ok {
		for key, value := range headersConfig {
			if strVal, ok := value.(string); ok {
				headers[key] = strVal
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := payload["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	action := &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   parseRetryConfig(payload["retry"]),
	}
	action.client = &http.Client{Timeout: action.Timeout}

	return action, nil
}

func parseRetryConfig(value any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := value.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delaySeconds, ok := retryMap["delay"].(float64); ok && delaySeconds > 0 {
		retry.Delay = time.Duration(delaySeconds) * time.Second
	}

	return retry
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "call_webhook_action", "method", a.Method, "url", a.URL)
	logger.InfoContext(ctx, "Calling webhook")

	var lastErr error

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("Webhook retry attempt %d/%d", attempt, a.Retry.Attempts))

			select {
			case <-time.After(a.Retry.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := a.call(ctx, logger)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("webhook call failed after %d attempt(s): %w", a.Retry.Attempts, lastErr)
}

// call performs one request. The second return reports whether the failure
// was transient (network error or 5xx) and worth retrying.
func (a *Action) call(ctx context.Context, logger *slog.Logger) (map[string]any, bool, error) {
	var bodyReader io.Reader
	if a.Body != "" {
		bodyReader = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build webhook request: %w", err)
	}

	if a.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			logger.ErrorContext(ctx, "failed to close webhook response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
	}

	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(raw)
	}

	return result, false, nil
}
