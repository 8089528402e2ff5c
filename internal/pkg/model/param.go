package model

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
)

type ParameterName string

func (p ParameterName) String() string {
	return string(p)
}

const (
	OverdischargeSoc   ParameterName = "OverdischargeSoc"
	ForcechargeSoc     ParameterName = "ForcechargeSoc"
	MaxGridPower       ParameterName = "MaxGridPower"
	ChargeAndDischarge ParameterName = "ChargeAndDischarge"
	AllowGridCharging  ParameterName = "AllowGridCharging"
)

// Component is the home-automation entity class a parameter is
// advertised as.
type Component string

func (c Component) String() string {
	return string(c)
}

const (
	ComponentNumber Component = "number"
	ComponentSensor Component = "sensor"
)

// DefaultForcechargeMax is ForcechargeSoc's static domain ceiling. The
// effective ceiling is narrowed further by the confirmed
// OverdischargeSoc value, see EffectiveForcechargeBound.
const DefaultForcechargeMax = 20

// Parameter is one controllable (or at least readable) inverter
// setting, addressed upstream by its register id (cid) and on the bus
// by its topic suffix.
type Parameter struct {
	Name        ParameterName
	Cid         int
	TopicSuffix string
	Domain      Domain
	Unit        string
	Component   Component
	// Settable parameters own a .../set command topic.
	Settable bool
	// Implemented parameters have a working upstream read/write path.
	// Settable but unimplemented parameters are validated and then
	// reported as not implemented.
	Implemented bool
}

// Parameters is the closed set of registers this bridge knows about.
var Parameters = []Parameter{
	{
		Name:        OverdischargeSoc,
		Cid:         158,
		TopicSuffix: "battery/OverdischargeSoc",
		Domain:      IntRange{Max: 40},
		Unit:        "%",
		Component:   ComponentNumber,
		Settable:    true,
		Implemented: true,
	},
	{
		Name:        ForcechargeSoc,
		Cid:         160,
		TopicSuffix: "battery/ForcechargeSoc",
		Domain:      IntRange{Max: DefaultForcechargeMax},
		Unit:        "%",
		Component:   ComponentNumber,
		Settable:    true,
		Implemented: true,
	},
	{
		Name:        MaxGridPower,
		Cid:         676,
		TopicSuffix: "inverter/MaxGridPower",
		Unit:        "W",
		Component:   ComponentSensor,
		Settable:    false,
		Implemented: true,
	},
	{
		Name:        ChargeAndDischarge,
		Cid:         4643,
		TopicSuffix: "selfuse/ChargeAndDischarge",
		Domain:      Schedule{MaxCurrent: 100},
		Settable:    true,
		Implemented: false,
	},
	{
		Name:        AllowGridCharging,
		Cid:         109,
		TopicSuffix: "selfuse/AllowGridCharging",
		Domain:      Boolean{},
		Settable:    true,
		Implemented: false,
	},
}

// StateTopic is where the confirmed value is published.
func (p Parameter) StateTopic(prefix string) string {
	return prefix + "/" + p.TopicSuffix
}

// SetTopic is the inbound command topic for settable parameters.
func (p Parameter) SetTopic(prefix string) string {
	return p.StateTopic(prefix) + "/set"
}

func (p Parameter) Slug() string {
	return strings.Replace(slug.Make(p.Name.String()), "-", "_", -1)
}

// EffectiveForcechargeBound narrows ForcechargeSoc's writable ceiling:
// force-charging above the overdischarge floor would immediately
// discharge again, so the bound follows OverdischargeSoc below 20.
func EffectiveForcechargeBound(overdischargeSoc int) int {
	return min(DefaultForcechargeMax, overdischargeSoc)
}

// ParameterBySetTopic resolves an inbound command topic. Topics that
// match no settable parameter are the caller's unknown-topic outcome.
func ParameterBySetTopic(prefix, topic string) (Parameter, bool) {
	return lo.Find(Parameters, func(p Parameter) bool {
		return p.Settable && p.SetTopic(prefix) == topic
	})
}

func ParameterByName(name string) (Parameter, bool) {
	return lo.Find(Parameters, func(p Parameter) bool {
		return strings.EqualFold(p.Name.String(), name)
	})
}
