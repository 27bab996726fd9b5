package connectivity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBody caps what is read from a remote endpoint (10 MiB).
const maxResponseBody int64 = 10 << 20

// HTTPHandler returns a Handler that POSTs the payload as JSON to endpoint
// with the given extra headers. Non-2xx responses become *StatusError.
func HTTPHandler(client *http.Client, endpoint string, headers map[string]string) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: do request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: body}
		}
		return body, nil
	}
}
