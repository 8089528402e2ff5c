package model

import (
	"strings"

	"github.com/gosimple/slug"
)

// Device identifies the physical inverter in discovery payloads.
type Device struct {
	SerialNumber string
	Model        string
	Manufacturer string
}

// Node is the stable discovery node id for the device.
func (d Device) Node() string {
	return strings.Replace(slug.Make(d.Model+"_"+d.SerialNumber), "-", "_", -1)
}

// Entity is one advertisable parameter of a device. MaxOverride narrows
// the advertised upper bound below the parameter's static domain; it is
// how the ForcechargeSoc ceiling follows OverdischargeSoc.
type Entity struct {
	Device      Device
	Parameter   Parameter
	MaxOverride *int
}

func (e Entity) ObjectID() string {
	return e.Parameter.Slug()
}

func (e Entity) UniqueID() string {
	return e.Device.Node() + "_" + e.Parameter.Slug()
}

// Min returns the advertised lower bound, nil for non-numeric entities.
func (e Entity) Min() *int {
	d, ok := e.Parameter.Domain.(IntRange)
	if !ok {
		return nil
	}
	return &d.Min
}

// Max returns the advertised upper bound, nil for non-numeric entities.
func (e Entity) Max() *int {
	if e.MaxOverride != nil {
		return e.MaxOverride
	}
	d, ok := e.Parameter.Domain.(IntRange)
	if !ok {
		return nil
	}
	return &d.Max
}

type DiscoveryDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// DiscoveryMessage is the retained per-entity config payload consumed
// by the home-automation UI layer.
type DiscoveryMessage struct {
	Name              string          `json:"name"`
	ID                string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	CommandTopic      string          `json:"command_topic,omitempty"`
	AvailabilityTopic string          `json:"availability_topic,omitempty"`
	Min               *int            `json:"min,omitempty"`
	Max               *int            `json:"max,omitempty"`
	Step              *int            `json:"step,omitempty"`
	Mode              string          `json:"mode,omitempty"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}
