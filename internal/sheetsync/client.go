package sheetsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RemoteClient talks to the user's spreadsheet webhook. The endpoint URL
// lives in settings and may change between calls, so it is a parameter
// rather than client state.
type RemoteClient interface {
	Push(ctx context.Context, endpoint string, payload ExportPayload) error
	Fetch(ctx context.Context, endpoint string) ([]byte, error)
}

const maxFetchBody = 8 << 20

// WebhookClient implements RemoteClient against a Google Apps Script style
// webhook: POST for uploads, GET with ?action=get for downloads.
type WebhookClient struct {
	httpClient *http.Client
}

func NewWebhookClient(httpClient *http.Client) *WebhookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookClient{httpClient: httpClient}
}

// Push uploads the payload. The webhook's response body carries nothing we
// act on, so it is drained and discarded; any status below 400 counts as
// accepted because Apps Script answers uploads with a redirect.
func (c *WebhookClient) Push(ctx context.Context, endpoint string, payload ExportPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxFetchBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push: remote returned %s", resp.Status)
	}
	return nil
}

// Fetch downloads the remote state as raw JSON.
func (c *WebhookClient) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := u.Query()
	query.Set("action", "get")
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxFetchBody))
		return nil, fmt.Errorf("fetch: remote returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read fetch body: %w", err)
	}
	return data, nil
}
