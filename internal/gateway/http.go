package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

type poster struct {
	client *http.Client
}

func newPoster(timeout time.Duration) poster {
	return poster{client: &http.Client{Timeout: timeout}}
}

func (p poster) postJSON(ctx context.Context, endpoint string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return p.post(ctx, endpoint, "application/json", bytes.NewReader(payload), headers)
}

func (p poster) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	return p.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

func (p poster) post(ctx context.Context, endpoint, contentType string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, truncate(raw, 256))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNoResponse
	}
	return raw, nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnreachable, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
