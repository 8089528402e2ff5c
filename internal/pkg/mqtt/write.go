package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/solisctl/solis-integration/internal/pkg/model"
)

// Write publishes confirmed values to their state topics. Retained so
// late subscribers see the last confirmed state without a refresh.
func (s *service) Write(ctx context.Context, data []model.StateUpdate) error {
	for _, update := range data {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic := update.Param.StateTopic(s.cfg.Prefix)
		if err := s.publish(topic, update.Value, 0, true); err != nil {
			return err
		}
		s.logger.Debug("published state",
			zap.String("topic", topic),
			zap.String("value", update.Value))
	}
	return nil
}

// RegisterEntity advertises one parameter on the discovery channel.
// Unlike plain state, configs are published every time: a narrowed
// ForcechargeSoc bound is propagated by re-advertising with a new max.
func (s *service) RegisterEntity(entity *model.Entity) error {
	topic, registerMessage := DiscoveryFor(entity, s.cfg.Prefix, s.AvailabilityTopic())

	payload, err := json.Marshal(registerMessage)
	if err != nil {
		return err
	}
	return s.publish(topic, payload, 1, true)
}

// DiscoveryFor builds the retained config payload for one entity.
func DiscoveryFor(entity *model.Entity, prefix, availabilityTopic string) (string, model.DiscoveryMessage) {
	param := entity.Parameter
	topic := fmt.Sprintf("homeassistant/%s/%s/%s/config",
		param.Component, entity.Device.Node(), entity.ObjectID())

	msg := model.DiscoveryMessage{
		Name:              param.Name.String(),
		ID:                entity.UniqueID(),
		StateTopic:        param.StateTopic(prefix),
		AvailabilityTopic: availabilityTopic,
		Unit:              param.Unit,
		Device: model.DiscoveryDevice{
			Name:         fmt.Sprintf("%s %s", entity.Device.Model, entity.Device.SerialNumber),
			Identifiers:  []string{entity.Device.Node()},
			Model:        entity.Device.Model,
			Manufacturer: entity.Device.Manufacturer,
		},
	}
	if param.Settable && param.Implemented {
		msg.CommandTopic = param.SetTopic(prefix)
	}
	if param.Component == model.ComponentNumber {
		step := 1
		msg.Min = entity.Min()
		msg.Max = entity.Max()
		msg.Step = &step
		msg.Mode = "slider"
	}
	return topic, msg
}
