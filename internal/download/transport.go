package download

import (
	"context"
	"io"
	"net/http"
)

// Transport moves the bytes of one remote file into w.
type Transport interface {
	Fetch(ctx context.Context, remoteURL string, w io.Writer) (int64, error)
}

// HTTPTransport fetches files with plain GET requests.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client; a nil client means http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, remoteURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return 0, err
	}
	res, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return 0, &HTTPStatusError{URL: remoteURL, StatusCode: res.StatusCode}
	}
	return io.Copy(w, res.Body)
}
