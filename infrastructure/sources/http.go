package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahrav/go-mqm/internal/ports"
)

// HTTPSource fetches ratings with a GET request.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source for url. A nil client uses http.DefaultClient.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

// Name returns the URL.
func (h *HTTPSource) Name() string { return h.url }

// Fetch issues the request and returns the body. Status codes map to the
// ports sentinels: 429 to ErrRateLimited, 5xx to ErrSourceUnavailable and any
// other non-2xx to ErrInvalidResponse.
func (h *HTTPSource) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", ports.NewSourceFetchError(h.url, err)
	}
	req.Header.Set("Accept", "text/tab-separated-values, text/plain;q=0.9, */*;q=0.1")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ports.ErrTimeout, err)
		} else if ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ports.ErrSourceUnavailable, err)
		}
		return "", ports.NewSourceFetchError(h.url, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return "", ports.NewSourceFetchError(h.url, err)
	}

	text, err := readAll(ctx, resp.Body)
	if err != nil {
		return "", ports.NewSourceFetchError(h.url, err)
	}
	return text, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ports.ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d", ports.ErrSourceUnavailable, code)
	default:
		return fmt.Errorf("%w: status %d", ports.ErrInvalidResponse, code)
	}
}
