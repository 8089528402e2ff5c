package model

import (
	"errors"
	"time"
)

var (
	// ErrInvalidPayload rejects a command before any network call.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotImplemented marks parameters whose upstream write sequence
	// is not supported yet.
	ErrNotImplemented = errors.New("not implemented")
)

type CommandKind string

func (k CommandKind) String() string {
	return string(k)
}

const (
	SetCommand     CommandKind = "set"
	RefreshCommand CommandKind = "refresh"
)

// Command is one unit of work for the bridge worker. Set commands carry
// the resolved parameter and the raw payload; refresh commands carry
// neither.
type Command struct {
	Kind    CommandKind
	Param   Parameter
	Payload string
	Topic   string // origin of the command, used for logging
}

// StateUpdate is a confirmed parameter value on its way to the
// registered publishers.
type StateUpdate struct {
	Param     Parameter
	Value     string
	Origin    string
	Timestamp time.Time
}

// StateRecord is one persisted confirmed-state row.
type StateRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit_of_measurement"`
	Origin    string    `json:"origin"`
}

type StateRecords []StateRecord
