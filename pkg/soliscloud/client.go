// Package soliscloud is a client for the SolisCloud inverter control
// API. Every call is independently authenticated with the platform's
// HMAC-SHA1 request signing scheme; no session state is kept. The
// client deliberately never retries: a write that timed out may still
// have reached the inverter, and a duplicate physical write is worse
// than a missed one.
package soliscloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the public SolisCloud control endpoint.
	DefaultBaseURL = "https://www.soliscloud.com:13333"

	readPath    = "/v2/api/atRead"
	controlPath = "/v2/api/control"

	defaultTimeout = 15 * time.Second
)

const readSuccessCode = "0"

// Config holds the credentials issued by the vendor portal. All three
// are required and immutable for the life of the client.
type Config struct {
	KeyID      string
	KeySecret  string
	InverterID string
}

// Client issues signed read and write calls for a single inverter.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// New validates cfg and applies options. The zero client talks to
// DefaultBaseURL with a 15s per-call timeout.
func New(cfg Config, opts ...OptionFunc) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" || cfg.InverterID == "" {
		return nil, errors.New("soliscloud: key id, key secret and inverter id are required")
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Read fetches the current value of one register (cid). A code other
// than "0" in the envelope is a *RemoteError; an undecodable envelope
// or a missing data.msg is ErrMalformedResponse.
func (c *Client) Read(ctx context.Context, cid int) (string, error) {
	raw, err := c.post(ctx, readPath, readRequest{InverterID: c.cfg.InverterID, Cid: cid})
	if err != nil {
		return "", err
	}

	var env readEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Code != readSuccessCode {
		return "", &RemoteError{Code: env.Code, Msg: env.Msg}
	}
	if env.Data == nil || len(env.Data.Msg) == 0 {
		return "", fmt.Errorf("%w: missing data.msg", ErrMalformedResponse)
	}
	return decodeValue(env.Data.Msg)
}

// Write sets one register (cid) to value. This is a real mutation
// attempt on inverter hardware; there is no dry run and no retry. A
// numeric envelope code of 0 is success, any other numeric code is a
// *RemoteError, and a missing or non-numeric code is
// ErrMalformedResponse.
func (c *Client) Write(ctx context.Context, cid int, value string) error {
	raw, err := c.post(ctx, controlPath, writeRequest{InverterID: c.cfg.InverterID, Cid: cid, Value: value})
	if err != nil {
		return err
	}

	var env writeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var code json.Number
	if err := json.Unmarshal(env.Code, &code); err != nil {
		return fmt.Errorf("%w: code %s is not numeric", ErrMalformedResponse, rawOrMissing(env.Code))
	}
	if code.String() != "0" {
		return &RemoteError{Code: code.String(), Msg: env.Msg}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	sig := Sign(http.MethodPost, path, body, c.cfg.KeyID, c.cfg.KeySecret, c.now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Content-MD5", sig.ContentMD5)
	req.Header.Set("Date", sig.Date)
	req.Header.Set("Authorization", sig.Authorization)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	return raw, nil
}

// decodeValue normalises data.msg to its textual form whether the API
// sent it as a JSON string or a bare number. Unmarshalling a JSON null
// is a silent no-op for both, so pointers are used to tell "null" apart
// from a decoded value.
func decodeValue(raw json.RawMessage) (string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err == nil && s != nil {
		return *s, nil
	}
	var n *json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: data.msg %s is neither string nor number", ErrMalformedResponse, raw)
}

func rawOrMissing(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<missing>"
	}
	return string(raw)
}
