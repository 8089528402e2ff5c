// Package bridge is the single worker between the command topics and
// the SolisCloud API. One goroutine owns all command handling: writes
// to the same physical inverter must never race, so serialization here
// is a correctness requirement, not a convenience.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solisctl/solis-integration/internal/pkg/config"
	"github.com/solisctl/solis-integration/internal/pkg/model"
)

const (
	reconnectDelay = 5 * time.Second
	commandBuffer  = 64
)

// ErrQueueFull rejects an enqueue when the worker is backed up. The
// message is dropped rather than blocking paho's callback goroutine.
var ErrQueueFull = errors.New("command queue full")

type remote interface {
	Read(ctx context.Context, cid int) (string, error)
	Write(ctx context.Context, cid int, value string) error
}

type bus interface {
	Connect() error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Lost() <-chan error
	Connected() bool
	Disconnect()
}

type statePublisher interface {
	Publish(ctx context.Context, updates ...model.StateUpdate)
	PublishChanged(ctx context.Context, updates ...model.StateUpdate)
	Advertise(entity *model.Entity)
}

type service struct {
	cfg       *config.Config
	remote    remote
	bus       bus
	publisher statePublisher
	device    model.Device
	errChan   chan error
	logger    *zap.Logger
	commands  chan model.Command
	// forcecharge ceiling, min(20, confirmed OverdischargeSoc). Written
	// by the worker, read by the ops server.
	bound atomic.Int64

	reconnectDelay time.Duration
	startedAt      time.Time
}

func New(cfg *config.Config, remote remote, bus bus, publisher statePublisher, errChan chan error) *service {
	s := &service{
		cfg:       cfg,
		remote:    remote,
		bus:       bus,
		publisher: publisher,
		device: model.Device{
			SerialNumber: cfg.Solis.InverterID,
			Model:        "SolisCloud",
			Manufacturer: "Solis",
		},
		errChan:        errChan,
		logger:         zap.L(), // returns the global logger.
		commands:       make(chan model.Command, commandBuffer),
		reconnectDelay: reconnectDelay,
		startedAt:      time.Now(),
	}
	s.bound.Store(model.DefaultForcechargeMax)
	return s
}

// Enqueue hands a command to the worker. Safe from any goroutine; the
// paho callback and the ops server only ever call this.
func (s *service) Enqueue(cmd model.Command) error {
	select {
	case s.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s command from %s", ErrQueueFull, cmd.Kind, cmd.Topic)
	}
}

// Bound reports the current effective ForcechargeSoc ceiling.
func (s *service) Bound() int {
	return int(s.bound.Load())
}

func (s *service) Connected() bool {
	return s.bus.Connected()
}

func (s *service) StartedAt() time.Time {
	return s.startedAt
}

// Run supervises the bus session until ctx is cancelled: connect, run
// the startup reads, subscribe, then wait for a drop. Any failure is
// retried after a fixed delay with no backoff; a down broker is
// transient and operator-visible in the logs.
func (s *service) Run(ctx context.Context) error {
	go s.worker(ctx)

	for {
		if err := s.session(ctx); err != nil {
			s.logger.Error("bus session failed", zap.Error(err))
		} else {
			select {
			case <-ctx.Done():
				s.bus.Disconnect()
				return ctx.Err()
			case err := <-s.bus.Lost():
				s.logger.Warn("bus connection lost", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *service) session(ctx context.Context) error {
	if err := s.bus.Connect(); err != nil {
		return err
	}
	if s.cfg.Discovery {
		s.startup(ctx)
	}
	return s.subscribe()
}

// startup seeds the bus before the first command arrives: read
// OverdischargeSoc, derive and advertise the ForcechargeSoc ceiling,
// then read and publish ForcechargeSoc itself. Failures are reported
// and skipped, a cloud blip must not keep the bridge off the bus.
func (s *service) startup(ctx context.Context) {
	overdischarge, ok := s.readParameter(ctx, model.OverdischargeSoc, "startup")
	if ok {
		if v, err := strconv.Atoi(overdischarge.Value); err == nil {
			s.bound.Store(int64(model.EffectiveForcechargeBound(v)))
		}
	}

	for _, entity := range s.entities() {
		s.publisher.Advertise(entity)
	}

	if ok {
		s.publisher.Publish(ctx, overdischarge)
	}
	if forcecharge, ok := s.readParameter(ctx, model.ForcechargeSoc, "startup"); ok {
		s.publisher.Publish(ctx, forcecharge)
	}
}

func (s *service) subscribe() error {
	for _, filter := range []string{
		s.cfg.Mqtt.Prefix + "/battery/+/set",
		s.cfg.Mqtt.Prefix + "/selfuse/+/set",
	} {
		err := s.bus.Subscribe(filter, func(topic string, payload []byte) {
			cmd := model.Command{Kind: model.SetCommand, Topic: topic, Payload: string(payload)}
			if err := s.Enqueue(cmd); err != nil {
				s.sendIfErr(err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(ctx, cmd)
		}
	}
}

func (s *service) handle(ctx context.Context, cmd model.Command) {
	switch cmd.Kind {
	case model.RefreshCommand:
		s.refresh(ctx)
	case model.SetCommand:
		s.handleSet(ctx, cmd)
	default:
		s.sendIfErr(fmt.Errorf("unknown command kind %q", cmd.Kind))
	}
}

// handleSet is the per-parameter protocol: validate, write, read back,
// publish the confirmed value. The published state is what the device
// reports, not what was requested; the inverter may clamp internally.
func (s *service) handleSet(ctx context.Context, cmd model.Command) {
	param := cmd.Param
	if param.Name == "" {
		var ok bool
		if param, ok = model.ParameterBySetTopic(s.cfg.Mqtt.Prefix, cmd.Topic); !ok {
			// Dropped, not an error: a stray retained message or a
			// mistyped topic must not pollute the error stream.
			s.logger.Warn("ignoring unknown topic", zap.String("topic", cmd.Topic))
			return
		}
	}

	if err := s.validate(param, cmd.Payload); err != nil {
		s.sendIfErr(fmt.Errorf("%s: %w", param.Name, err))
		return
	}

	if !param.Implemented {
		// The upstream API rejects these writes pending a read-before-set
		// sequence; spending a signed call on a known rejection helps nobody.
		s.sendIfErr(fmt.Errorf("%w: %s requires an upstream read-before-set sequence", model.ErrNotImplemented, param.Name))
		return
	}

	if err := s.remote.Write(ctx, param.Cid, cmd.Payload); err != nil {
		s.sendIfErr(fmt.Errorf("write %s=%s: %w", param.Name, cmd.Payload, err))
		return
	}

	confirmed, err := s.remote.Read(ctx, param.Cid)
	if err != nil {
		s.sendIfErr(fmt.Errorf("read back %s: %w", param.Name, err))
		return
	}

	s.publisher.Publish(ctx, model.StateUpdate{
		Param:     param,
		Value:     confirmed,
		Origin:    cmd.Topic,
		Timestamp: time.Now(),
	})
	s.logger.Info("parameter confirmed",
		zap.String("parameter", param.Name.String()),
		zap.String("requested", cmd.Payload),
		zap.String("confirmed", confirmed))

	if param.Name == model.OverdischargeSoc {
		s.propagateBound(confirmed)
	}
}

// validate checks the payload against the parameter's domain.
// ForcechargeSoc's ceiling is dynamic, so its static domain is swapped
// for the current effective bound.
func (s *service) validate(param model.Parameter, payload string) error {
	domain := param.Domain
	if param.Name == model.ForcechargeSoc {
		domain = model.IntRange{Max: s.Bound()}
	}
	if domain == nil {
		return fmt.Errorf("%w: %s is not settable", model.ErrInvalidPayload, param.Name)
	}
	return domain.Validate(payload)
}

// propagateBound re-evaluates the ForcechargeSoc ceiling after a
// confirmed OverdischargeSoc change and re-advertises its discovery
// config with the new max. The stored ForcechargeSoc value is not
// touched, only the declared writable range.
func (s *service) propagateBound(confirmed string) {
	v, err := strconv.Atoi(confirmed)
	if err != nil {
		s.sendIfErr(fmt.Errorf("confirmed OverdischargeSoc %q is not numeric: %v", confirmed, err))
		return
	}
	bound := model.EffectiveForcechargeBound(v)
	s.bound.Store(int64(bound))
	s.logger.Info("forcecharge ceiling updated", zap.Int("max", bound))

	if !s.cfg.Discovery {
		return
	}
	if param, ok := model.ParameterByName(model.ForcechargeSoc.String()); ok {
		s.publisher.Advertise(&model.Entity{Device: s.device, Parameter: param, MaxOverride: &bound})
	}
}

// refresh reads every readable register and publishes the values that
// moved. Scheduled by cron through Enqueue, so it shares the worker and
// never races a command.
func (s *service) refresh(ctx context.Context) {
	updates := make([]model.StateUpdate, 0, 3)
	for _, name := range []model.ParameterName{model.OverdischargeSoc, model.ForcechargeSoc, model.MaxGridPower} {
		if update, ok := s.readParameter(ctx, name, "refresh"); ok {
			updates = append(updates, update)
		}
	}
	s.publisher.PublishChanged(ctx, updates...)
}

func (s *service) readParameter(ctx context.Context, name model.ParameterName, origin string) (model.StateUpdate, bool) {
	param, ok := model.ParameterByName(name.String())
	if !ok {
		return model.StateUpdate{}, false
	}
	value, err := s.remote.Read(ctx, param.Cid)
	if err != nil {
		s.sendIfErr(fmt.Errorf("read %s: %w", name, err))
		return model.StateUpdate{}, false
	}
	return model.StateUpdate{
		Param:     param,
		Value:     value,
		Origin:    origin,
		Timestamp: time.Now(),
	}, true
}

// entities lists the advertisable parameters, ForcechargeSoc with its
// current effective ceiling.
func (s *service) entities() []*model.Entity {
	out := make([]*model.Entity, 0, len(model.Parameters))
	for _, param := range model.Parameters {
		if param.Component == "" {
			continue
		}
		entity := &model.Entity{Device: s.device, Parameter: param}
		if param.Name == model.ForcechargeSoc {
			bound := s.Bound()
			entity.MaxOverride = &bound
		}
		out = append(out, entity)
	}
	return out
}

func (s *service) sendIfErr(err error) {
	if err != nil {
		s.errChan <- err
	}
}
