package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// call wraps doRequest with the transport policy: a circuit breaker that
// opens after consecutive failures, and exponential-backoff retries up to
// maxAttempts. Client errors (4xx other than 429) are permanent and not
// retried.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, auth bool, out any) error {
	operation := func() (struct{}, error) {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doRequest(ctx, method, path, params, auth, out)
		})
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
	)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth bool, out any) error {
	urlStr := c.baseURL + path
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	if auth {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		recvWindow := "5000"
		query := ""
		if method == http.MethodGet && len(params) > 0 {
			query = params.Encode()
		}
		signature := sign(c.secret, timestamp+c.apiKey+recvWindow+query)

		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("bad status %s: %s", resp.Status, string(data))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if rc, ok := out.(retCoder); ok {
		if code, msg := rc.ret(); code != 0 {
			return fmt.Errorf("bybit error: %s (code=%d)", msg, code)
		}
	}

	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
