// Package client talks to the identity-verification provider.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"likeness/internal/verification/models"
	dErrors "likeness/pkg/domain-errors"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

func New(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		timeout: timeout,
	}
}

// Session fetches the current state of a verification session. Every call is
// bounded by the client timeout; a timeout is reported as CodeTimeout and any
// other transport or provider failure as CodeUpstream.
func (c *Client) Session(ctx context.Context, sessionID string) (models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/v1/sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build verification request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Session{}, dErrors.Wrap(err, dErrors.CodeTimeout, "verification provider timed out")
		}
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeUpstream, "verification provider unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Session{}, dErrors.New(dErrors.CodeNotFound, "verification session not found")
	case resp.StatusCode != http.StatusOK:
		return models.Session{}, dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("verification provider responded %d", resp.StatusCode))
	}

	var session models.Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&session); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Session{}, dErrors.Wrap(err, dErrors.CodeTimeout, "verification provider timed out")
		}
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeUpstream, "malformed verification response")
	}
	if !session.Status.IsValid() {
		return models.Session{}, dErrors.New(dErrors.CodeUpstream, "unknown verification status")
	}
	return session, nil
}
