// SPDX-License-Identifier: Apache-2.0

// Package userdir resolves user records from the directory service.
package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aiqx/core-service/internal/domain"
)

const headerInternalToken = "X-Internal-Token"

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
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		logger:        logger,
	}
}

// GetUserByID fetches mail address and language for a user id.
func (c *Client) GetUserByID(ctx context.Context, id string) (domain.DirectoryUser, error) {
	userURL := fmt.Sprintf("%s/v1/users/%s", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userURL, nil)
	if err != nil {
		return domain.DirectoryUser{}, err
	}
	req.Header.Set(headerInternalToken, c.internalToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.DirectoryUser{}, fmt.Errorf("user lookup: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.DirectoryUser{}, domain.ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return domain.DirectoryUser{}, fmt.Errorf("user lookup: non-200 response: %d", resp.StatusCode)
	}

	var user domain.DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return domain.DirectoryUser{}, fmt.Errorf("decode user record: %w", err)
	}
	if user.Mail == "" {
		return domain.DirectoryUser{}, fmt.Errorf("user record %s has no mail address", id)
	}

	return user, nil
}
