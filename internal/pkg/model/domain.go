package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Domain is the validation rule attached to a settable parameter.
// Validation is pure: no network calls, no partial application of
// multi-field commands.
type Domain interface {
	Validate(payload string) error
}

var (
	integerPattern = regexp.MustCompile(`^\d+$`)
	clockPattern   = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// IntRange accepts plain non-negative integers up to Max inclusive.
type IntRange struct {
	Min int
	Max int
}

func (d IntRange) Validate(payload string) error {
	if !integerPattern.MatchString(payload) {
		return fmt.Errorf("%w: %q is not a plain non-negative integer", ErrInvalidPayload, payload)
	}
	v, err := strconv.Atoi(payload)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPayload, payload, err)
	}
	if v < d.Min || v > d.Max {
		return fmt.Errorf("%w: %d outside range %d..%d", ErrInvalidPayload, v, d.Min, d.Max)
	}
	return nil
}

// Boolean accepts exactly "0" or "1".
type Boolean struct{}

func (Boolean) Validate(payload string) error {
	if payload != "0" && payload != "1" {
		return fmt.Errorf(`%w: %q must be "0" or "1"`, ErrInvalidPayload, payload)
	}
	return nil
}

// ScheduleCommand is the self-use charge/discharge program: two
// currents and two daily time windows.
type ScheduleCommand struct {
	ChargeCurrent    int    `json:"charge_current"`
	DischargeCurrent int    `json:"discharge_current"`
	ChargeStart      string `json:"charge_start"`
	ChargeEnd        string `json:"charge_end"`
	DischargeStart   string `json:"discharge_start"`
	DischargeEnd     string `json:"discharge_end"`
}

// Schedule validates a ScheduleCommand encoded as JSON. Rejections name
// the offending field.
type Schedule struct {
	MaxCurrent int
}

func (d Schedule) Validate(payload string) error {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()

	var cmd ScheduleCommand
	if err := dec.Decode(&cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	for _, current := range []struct {
		field string
		value int
	}{
		{"charge_current", cmd.ChargeCurrent},
		{"discharge_current", cmd.DischargeCurrent},
	} {
		if current.value < 0 || current.value > d.MaxCurrent {
			return fmt.Errorf("%w: %s %d outside range 0..%d", ErrInvalidPayload, current.field, current.value, d.MaxCurrent)
		}
	}

	for _, window := range []struct {
		field string
		value string
	}{
		{"charge_start", cmd.ChargeStart},
		{"charge_end", cmd.ChargeEnd},
		{"discharge_start", cmd.DischargeStart},
		{"discharge_end", cmd.DischargeEnd},
	} {
		if !clockPattern.MatchString(window.value) {
			return fmt.Errorf("%w: %s %q is not a valid HH:MM time", ErrInvalidPayload, window.field, window.value)
		}
	}
	return nil
}
