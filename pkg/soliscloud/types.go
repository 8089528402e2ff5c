package soliscloud

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps connection, DNS, timeout and unexpected HTTP
	// status failures. The call may or may not have reached the device;
	// callers must not retry writes on it.
	ErrTransport = errors.New("soliscloud: transport failure")

	// ErrMalformedResponse marks a reachable API that answered with a
	// body this client cannot interpret.
	ErrMalformedResponse = errors.New("soliscloud: malformed response")
)

// RemoteError is a reachable API answering with a non-success code.
type RemoteError struct {
	Code string
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("soliscloud: remote rejected: code=%s msg=%q", e.Code, e.Msg)
}

type readRequest struct {
	InverterID string `json:"inverterId"`
	Cid        int    `json:"cid"`
}

type writeRequest struct {
	InverterID string `json:"inverterId"`
	Cid        int    `json:"cid"`
	Value      string `json:"value"`
}

// readEnvelope is the atRead response. The code arrives as a string and
// the decoded register value lives at data.msg; it has been observed as
// both a JSON string and a bare number.
type readEnvelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Msg json.RawMessage `json:"msg"`
	} `json:"data"`
}

// writeEnvelope is the control response. Unlike reads, the success code
// is a JSON number; it is kept raw so non-numeric codes can be told
// apart from rejections.
type writeEnvelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
}
