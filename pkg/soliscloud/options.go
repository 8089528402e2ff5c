package soliscloud

import (
	"errors"
	"net/http"
	"time"
)

type OptionFunc func(*Client) error

// WithBaseURL points the client at a different API host. An empty value
// is a noop so callers can pass config fields straight through.
func WithBaseURL(baseURL string) OptionFunc {
	return func(client *Client) error {
		if baseURL == "" {
			return nil
		}
		client.baseURL = baseURL
		return nil
	}
}

// WithTimeout bounds every call. Expiry surfaces as ErrTransport.
func WithTimeout(timeout time.Duration) OptionFunc {
	return func(client *Client) error {
		if timeout <= 0 {
			return errors.New("soliscloud: timeout must be positive")
		}
		client.httpClient.Timeout = timeout
		return nil
	}
}

// WithHTTPClient replaces the underlying transport entirely. The
// caller becomes responsible for its timeout.
func WithHTTPClient(hc *http.Client) OptionFunc {
	return func(client *Client) error {
		if hc == nil {
			return errors.New("soliscloud: http client must not be nil")
		}
		client.httpClient = hc
		return nil
	}
}

// WithClock fixes the timestamp source used for signing. Tests use this
// to make signatures reproducible.
func WithClock(now func() time.Time) OptionFunc {
	return func(client *Client) error {
		if now == nil {
			return errors.New("soliscloud: clock must not be nil")
		}
		client.now = now
		return nil
	}
}
