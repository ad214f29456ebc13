package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// postJSONWithRetry posts a JSON body and decodes the JSON response,
// retrying transient failures with jittered exponential backoff. A
// canceled caller context stops the loop immediately.
func postJSONWithRetry(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, reqBody interface{}, respBody interface{}, maxRetries int) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isRetryableErr(err) {
				continue
			}
			return err
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpErr := &aiHTTPError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
			lastErr = httpErr
			if isRetryableHTTP(resp.StatusCode) {
				continue
			}
			return httpErr
		}

		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("decode %s response: %w", provider, err)
		}
		return nil
	}
	return fmt.Errorf("%s: retries exhausted: %w", provider, lastErr)
}
