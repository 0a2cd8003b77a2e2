// SPDX-License-Identifier: Apache-2.0

// Package fileservice is the HTTP client for the external file storage
// service. Only the lock operation is needed here: once a step
// completes, its artifacts become immutable.
package fileservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	lockRetryAttempts = 3
	lockRetryBase     = 300 * time.Millisecond

	headerInternalToken = "X-Internal-Token"
)

type Client struct {
	baseURL       string
	internalToken string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(baseURL, internalToken string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		internalToken: internalToken,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// LockFile marks the referenced file immutable. Transient failures are
// retried with exponential backoff; the last error is returned after the
// attempts are exhausted.
func (c *Client) LockFile(ctx context.Context, refID string) error {
	if strings.TrimSpace(refID) == "" {
		return fmt.Errorf("empty file ref id")
	}

	lockURL := fmt.Sprintf("%s/v1/files/%s/lock", c.baseURL, url.PathEscape(refID))

	var lastErr error
	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, lockURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set(headerInternalToken, c.internalToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("file lock failure",
				"ref_id", refID,
				"attempt", attempt,
				"error", err,
			)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				return nil
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			c.logger.Warn("file lock failure",
				"ref_id", refID,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
		}

		if attempt < lockRetryAttempts {
			wait := lockRetryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("lock file %s: %w", refID, lastErr)
}
