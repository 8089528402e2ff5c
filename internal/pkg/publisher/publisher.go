package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/solisctl/solis-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

type publisher interface {
	// Write publishes confirmed values to the registered adapter.
	Write(ctx context.Context, data []model.StateUpdate) error
	RegisterEntity(entity *model.Entity) error
}

// Registry fans confirmed state and discovery configs out to every
// registered adapter (broker, database). A failing adapter is logged
// and skipped, it never blocks the others.
type Registry struct {
	publishers map[string]publisher
	sensors    sync.Map
	logger     *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		publishers: make(map[string]publisher),
		logger:     logger,
	}
}

// Register adds an adapter. All registration happens before the worker
// starts, so the map needs no lock.
func (r *Registry) Register(name string, p publisher) error {
	if _, ok := r.publishers[name]; ok {
		return errAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

// Publish pushes updates to every adapter unconditionally. Confirmed
// command results always go out, even when the value did not move.
func (r *Registry) Publish(ctx context.Context, updates ...model.StateUpdate) {
	for _, update := range updates {
		r.sensors.Store(update.Param.Slug(), update.Value)
	}
	r.fanout(ctx, updates)
}

// PublishChanged drops updates whose value matches the last published
// one. Refresh sweeps use it to keep quiet periods quiet.
func (r *Registry) PublishChanged(ctx context.Context, updates ...model.StateUpdate) {
	changed := make([]model.StateUpdate, 0, len(updates))
	for _, update := range updates {
		if !r.shouldUpdate(update.Param.Slug(), update.Value) {
			continue
		}
		changed = append(changed, update)
	}
	r.fanout(ctx, changed)
}

func (r *Registry) Advertise(entity *model.Entity) {
	for name, pub := range r.publishers {
		if err := pub.RegisterEntity(entity); err != nil {
			r.logger.Error("failed to register entity", zap.Error(err),
				zap.String("publisher", name), zap.String("entity", entity.UniqueID()))
			continue
		}
		r.logger.Debug("registered entity",
			zap.String("entity", entity.UniqueID()), zap.String("publisher", name))
	}
}

// Snapshot returns the last published value per parameter slug.
func (r *Registry) Snapshot() map[string]string {
	out := make(map[string]string)
	r.sensors.Range(func(key, value any) bool {
		out[key.(string)] = value.(string)
		return true
	})
	return out
}

func (r *Registry) fanout(ctx context.Context, updates []model.StateUpdate) {
	if len(updates) == 0 {
		return
	}
	for name, pub := range r.publishers {
		if err := pub.Write(ctx, updates); err != nil {
			r.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		r.logger.Debug("updated sensors", zap.Int("count", len(updates)), zap.String("publisher", name))
	}
}

func (r *Registry) shouldUpdate(slug, newValue string) bool {
	oldValue, exists := r.sensors.Load(slug)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		r.logger.Info("configured sensor", zap.String("sensor", slug), zap.String("value", newValue))
	}
	r.sensors.Store(slug, newValue)
	return true
}
