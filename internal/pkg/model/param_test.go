package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisctl/solis-integration/internal/pkg/model"
)

func TestParameterTopics(t *testing.T) {
	t.Parallel()
	param, ok := model.ParameterByName("OverdischargeSoc")
	require.True(t, ok)

	assert.Equal(t, "solar/battery/OverdischargeSoc", param.StateTopic("solar"))
	assert.Equal(t, "solar/battery/OverdischargeSoc/set", param.SetTopic("solar"))
}

func TestParameterBySetTopic(t *testing.T) {
	t.Parallel()

	for topic, want := range map[string]model.ParameterName{
		"solar/battery/OverdischargeSoc/set":   model.OverdischargeSoc,
		"solar/battery/ForcechargeSoc/set":     model.ForcechargeSoc,
		"solar/selfuse/ChargeAndDischarge/set": model.ChargeAndDischarge,
		"solar/selfuse/AllowGridCharging/set":  model.AllowGridCharging,
	} {
		param, ok := model.ParameterBySetTopic("solar", topic)
		require.True(t, ok, "topic %s", topic)
		assert.Equal(t, want, param.Name)
	}
}

func TestParameterBySetTopicUnknown(t *testing.T) {
	t.Parallel()

	for _, topic := range []string{
		"solar/foo/set",
		"solar/battery/OverdischargeSoc", // state topic, not a command
		"other/battery/OverdischargeSoc/set",
		"solar/inverter/MaxGridPower/set", // read-only register
	} {
		_, ok := model.ParameterBySetTopic("solar", topic)
		assert.False(t, ok, "topic %s", topic)
	}
}

func TestParameterByNameCaseInsensitive(t *testing.T) {
	t.Parallel()
	param, ok := model.ParameterByName("overdischargesoc")
	require.True(t, ok)
	assert.Equal(t, model.OverdischargeSoc, param.Name)

	_, ok = model.ParameterByName("NoSuchParameter")
	assert.False(t, ok)
}

func TestRegistryRegisterIds(t *testing.T) {
	t.Parallel()
	want := map[model.ParameterName]int{
		model.OverdischargeSoc:   158,
		model.ForcechargeSoc:     160,
		model.MaxGridPower:       676,
		model.ChargeAndDischarge: 4643,
		model.AllowGridCharging:  109,
	}
	for name, cid := range want {
		param, ok := model.ParameterByName(name.String())
		require.True(t, ok, "parameter %s", name)
		assert.Equal(t, cid, param.Cid, "parameter %s", name)
	}
}

func TestEffectiveForcechargeBound(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 15, model.EffectiveForcechargeBound(15))
	assert.Equal(t, 20, model.EffectiveForcechargeBound(30))
	assert.Equal(t, 20, model.EffectiveForcechargeBound(20))
	assert.Equal(t, 0, model.EffectiveForcechargeBound(0))
}

func TestParameterSlug(t *testing.T) {
	t.Parallel()
	param, ok := model.ParameterByName("ForcechargeSoc")
	require.True(t, ok)
	assert.Equal(t, "forcechargesoc", param.Slug())
}

func TestEntityBounds(t *testing.T) {
	t.Parallel()
	device := model.Device{SerialNumber: "1308675217944611083", Model: "SolisCloud", Manufacturer: "Solis"}

	forcecharge, ok := model.ParameterByName("ForcechargeSoc")
	require.True(t, ok)

	entity := model.Entity{Device: device, Parameter: forcecharge}
	require.NotNil(t, entity.Max())
	assert.Equal(t, 20, *entity.Max())
	require.NotNil(t, entity.Min())
	assert.Equal(t, 0, *entity.Min())

	bound := 15
	narrowed := model.Entity{Device: device, Parameter: forcecharge, MaxOverride: &bound}
	require.NotNil(t, narrowed.Max())
	assert.Equal(t, 15, *narrowed.Max())

	sensor, ok := model.ParameterByName("MaxGridPower")
	require.True(t, ok)
	assert.Nil(t, model.Entity{Device: device, Parameter: sensor}.Max())
	assert.Nil(t, model.Entity{Device: device, Parameter: sensor}.Min())
}

func TestDeviceNode(t *testing.T) {
	t.Parallel()
	device := model.Device{SerialNumber: "1308675217944611083", Model: "SolisCloud", Manufacturer: "Solis"}
	assert.Equal(t, "soliscloud_1308675217944611083", device.Node())

	entity := model.Entity{Device: device, Parameter: model.Parameters[0]}
	assert.Equal(t, "soliscloud_1308675217944611083_overdischargesoc", entity.UniqueID())
}
