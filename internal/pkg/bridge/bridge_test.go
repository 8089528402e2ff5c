package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/solisctl/solis-integration/internal/pkg/config"
	"github.com/solisctl/solis-integration/internal/pkg/model"
	"github.com/solisctl/solis-integration/pkg/soliscloud"
)

type mockRemote struct {
	ReadFunc  func(ctx context.Context, cid int) (string, error)
	WriteFunc func(ctx context.Context, cid int, value string) error

	writes []string
}

func (m *mockRemote) Read(ctx context.Context, cid int) (string, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, cid)
	}
	return "", errors.New("unexpected read")
}

func (m *mockRemote) Write(ctx context.Context, cid int, value string) error {
	m.writes = append(m.writes, value)
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, cid, value)
	}
	return errors.New("unexpected write")
}

type mockBus struct {
	ConnectFunc   func() error
	SubscribeFunc func(topic string, handler func(topic string, payload []byte)) error

	lost      chan error
	connected bool
	filters   []string
	handlers  []func(topic string, payload []byte)
}

func newMockBus() *mockBus {
	return &mockBus{lost: make(chan error, 1), connected: true}
}

func (m *mockBus) Connect() error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return nil
}

func (m *mockBus) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	m.filters = append(m.filters, topic)
	m.handlers = append(m.handlers, handler)
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(topic, handler)
	}
	return nil
}

func (m *mockBus) Lost() <-chan error { return m.lost }
func (m *mockBus) Connected() bool    { return m.connected }
func (m *mockBus) Disconnect()        { m.connected = false }

type mockStatePublisher struct {
	published  []model.StateUpdate
	changed    []model.StateUpdate
	advertised []*model.Entity
}

func (m *mockStatePublisher) Publish(_ context.Context, updates ...model.StateUpdate) {
	m.published = append(m.published, updates...)
}

func (m *mockStatePublisher) PublishChanged(_ context.Context, updates ...model.StateUpdate) {
	m.changed = append(m.changed, updates...)
}

func (m *mockStatePublisher) Advertise(entity *model.Entity) {
	m.advertised = append(m.advertised, entity)
}

func testConfig(discovery bool) *config.Config {
	return &config.Config{
		Solis: &config.SolisConfig{
			KeyID:      "1300386381676488357",
			KeySecret:  "8e10bb9fd5714c34a34a5d1600d4e28f",
			InverterID: "1308675217944611083",
		},
		Mqtt:      &config.MqttConfig{Host: "tcp://127.0.0.1:1883", Prefix: "solar"},
		Discovery: discovery,
		LogLevel:  "INFO",
	}
}

func newTestService(t *testing.T, discovery bool, remote *mockRemote) (*service, *mockBus, *mockStatePublisher, chan error) {
	t.Helper()
	bus := newMockBus()
	pub := &mockStatePublisher{}
	errChan := make(chan error, 100)
	svc := New(testConfig(discovery), remote, bus, pub, errChan)
	svc.logger = zaptest.NewLogger(t)
	return svc, bus, pub, errChan
}

func drainErrors(errChan chan error) []error {
	var out []error
	for {
		select {
		case err := <-errChan:
			out = append(out, err)
		default:
			return out
		}
	}
}

func setCommand(topic, payload string) model.Command {
	return model.Command{Kind: model.SetCommand, Topic: topic, Payload: payload}
}

func TestHandleSetWriteThenReadBack(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, cid int, value string) error {
			assert.Equal(t, 158, cid)
			assert.Equal(t, "25", value)
			return nil
		},
		// The device clamps internally; the published state must be the
		// read-back value, not the requested one.
		ReadFunc: func(_ context.Context, cid int) (string, error) {
			return "24", nil
		},
	}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "25"))

	require.Len(t, pub.published, 1)
	assert.Equal(t, model.OverdischargeSoc, pub.published[0].Param.Name)
	assert.Equal(t, "24", pub.published[0].Value)
	assert.Empty(t, drainErrors(errChan))
}

func TestHandleSetInvalidPayloadNeverReachesNetwork(t *testing.T) {
	for _, payload := range []string{"41", "-1", "abc", "", "12.5"} {
		remote := &mockRemote{}
		svc, _, pub, errChan := newTestService(t, false, remote)

		svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", payload))

		assert.Empty(t, remote.writes, "payload %q", payload)
		assert.Empty(t, pub.published, "payload %q", payload)
		errs := drainErrors(errChan)
		require.Len(t, errs, 1, "payload %q", payload)
		assert.ErrorIs(t, errs[0], model.ErrInvalidPayload)
	}
}

func TestHandleSetWriteFailureSkipsRepublish(t *testing.T) {
	remoteErr := &soliscloud.RemoteError{Code: "B0115", Msg: "device offline"}
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error {
			return remoteErr
		},
	}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "25"))

	assert.Empty(t, pub.published, "rejected write must not republish state")
	errs := drainErrors(errChan)
	require.Len(t, errs, 1)
	var re *soliscloud.RemoteError
	assert.ErrorAs(t, errs[0], &re)
}

func TestHandleSetReadBackFailureSkipsRepublish(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc: func(_ context.Context, _ int) (string, error) {
			return "", soliscloud.ErrTransport
		},
	}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "25"))

	assert.Empty(t, pub.published)
	errs := drainErrors(errChan)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], soliscloud.ErrTransport)
}

// Unrecognized topics are logged and dropped: no write, no publish,
// and nothing on the error channel.
func TestHandleSetUnknownTopic(t *testing.T) {
	remote := &mockRemote{}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/foo/set", "1"))

	assert.Empty(t, remote.writes)
	assert.Empty(t, pub.published)
	assert.Empty(t, drainErrors(errChan))
}

func TestHandleSetNotImplementedParameters(t *testing.T) {
	for topic, payload := range map[string]string{
		"solar/selfuse/AllowGridCharging/set": "1",
		"solar/selfuse/ChargeAndDischarge/set": `{
			"charge_current": 50, "discharge_current": 50,
			"charge_start": "01:00", "charge_end": "05:00",
			"discharge_start": "17:00", "discharge_end": "21:00"}`,
	} {
		remote := &mockRemote{}
		svc, _, pub, errChan := newTestService(t, false, remote)

		svc.handle(context.Background(), setCommand(topic, payload))

		assert.Empty(t, remote.writes, "no signed call for a known rejection")
		assert.Empty(t, pub.published)
		errs := drainErrors(errChan)
		require.Len(t, errs, 1, "topic %s", topic)
		assert.ErrorIs(t, errs[0], model.ErrNotImplemented)
	}
}

func TestHandleSetNotImplementedStillValidates(t *testing.T) {
	remote := &mockRemote{}
	svc, _, _, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/selfuse/AllowGridCharging/set", "true"))

	errs := drainErrors(errChan)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], model.ErrInvalidPayload)
}

func TestOverdischargePropagatesForcechargeBound(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc:  func(_ context.Context, _ int) (string, error) { return "15", nil },
	}
	svc, _, pub, _ := newTestService(t, true, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "15"))

	assert.Equal(t, 15, svc.Bound())
	require.Len(t, pub.advertised, 1)
	assert.Equal(t, model.ForcechargeSoc, pub.advertised[0].Parameter.Name)
	require.NotNil(t, pub.advertised[0].MaxOverride)
	assert.Equal(t, 15, *pub.advertised[0].MaxOverride)
}

func TestOverdischargeAboveTwentyCapsBoundAtTwenty(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc:  func(_ context.Context, _ int) (string, error) { return "30", nil },
	}
	svc, _, pub, _ := newTestService(t, true, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "30"))

	assert.Equal(t, 20, svc.Bound())
	require.Len(t, pub.advertised, 1)
	assert.Equal(t, 20, *pub.advertised[0].MaxOverride)
}

func TestBoundPropagationSkipsDiscoveryWhenDisabled(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc:  func(_ context.Context, _ int) (string, error) { return "10", nil },
	}
	svc, _, pub, _ := newTestService(t, false, remote)

	svc.handle(context.Background(), setCommand("solar/battery/OverdischargeSoc/set", "10"))

	assert.Equal(t, 10, svc.Bound(), "the ceiling still tightens")
	assert.Empty(t, pub.advertised, "nothing to re-advertise without discovery")
}

func TestForcechargeValidatesAgainstEffectiveBound(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc:  func(_ context.Context, _ int) (string, error) { return "15", nil },
	}
	svc, _, pub, errChan := newTestService(t, false, remote)
	svc.bound.Store(15)

	svc.handle(context.Background(), setCommand("solar/battery/ForcechargeSoc/set", "18"))
	assert.Empty(t, remote.writes, "18 exceeds the tightened ceiling of 15")
	errs := drainErrors(errChan)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], model.ErrInvalidPayload)

	svc.handle(context.Background(), setCommand("solar/battery/ForcechargeSoc/set", "15"))
	assert.Equal(t, []string{"15"}, remote.writes)
	assert.Len(t, pub.published, 1)
}

func TestRefreshPublishesChangedOnly(t *testing.T) {
	values := map[int]string{158: "25", 160: "10", 676: "5000"}
	remote := &mockRemote{
		ReadFunc: func(_ context.Context, cid int) (string, error) {
			return values[cid], nil
		},
	}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), model.Command{Kind: model.RefreshCommand, Topic: "cron"})

	require.Len(t, pub.changed, 3)
	assert.Empty(t, pub.published, "refresh goes through the changed-value path")
	assert.Empty(t, drainErrors(errChan))
}

func TestRefreshSkipsFailedReads(t *testing.T) {
	remote := &mockRemote{
		ReadFunc: func(_ context.Context, cid int) (string, error) {
			if cid == 676 {
				return "", soliscloud.ErrTransport
			}
			return "10", nil
		},
	}
	svc, _, pub, errChan := newTestService(t, false, remote)

	svc.handle(context.Background(), model.Command{Kind: model.RefreshCommand, Topic: "cron"})

	assert.Len(t, pub.changed, 2)
	errs := drainErrors(errChan)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], soliscloud.ErrTransport)
}

func TestStartupReadsAdvertisesAndPublishes(t *testing.T) {
	values := map[int]string{158: "15", 160: "10"}
	remote := &mockRemote{
		ReadFunc: func(_ context.Context, cid int) (string, error) {
			return values[cid], nil
		},
	}
	svc, _, pub, errChan := newTestService(t, true, remote)

	svc.startup(context.Background())

	assert.Equal(t, 15, svc.Bound())

	// OverdischargeSoc, ForcechargeSoc and MaxGridPower get discovery
	// configs; the unimplemented selfuse parameters do not.
	require.Len(t, pub.advertised, 3)
	var forcecharge *model.Entity
	for _, entity := range pub.advertised {
		if entity.Parameter.Name == model.ForcechargeSoc {
			forcecharge = entity
		}
	}
	require.NotNil(t, forcecharge)
	require.NotNil(t, forcecharge.MaxOverride)
	assert.Equal(t, 15, *forcecharge.MaxOverride)

	require.Len(t, pub.published, 2)
	assert.Equal(t, model.OverdischargeSoc, pub.published[0].Param.Name)
	assert.Equal(t, "15", pub.published[0].Value)
	assert.Equal(t, model.ForcechargeSoc, pub.published[1].Param.Name)
	assert.Equal(t, "10", pub.published[1].Value)
	assert.Empty(t, drainErrors(errChan))
}

func TestStartupSurvivesFailedReads(t *testing.T) {
	remote := &mockRemote{
		ReadFunc: func(_ context.Context, _ int) (string, error) {
			return "", soliscloud.ErrTransport
		},
	}
	svc, _, pub, errChan := newTestService(t, true, remote)

	svc.startup(context.Background())

	assert.Equal(t, model.DefaultForcechargeMax, svc.Bound())
	assert.Len(t, pub.advertised, 3, "configs still go out with the static bound")
	assert.Empty(t, pub.published)
	assert.Len(t, drainErrors(errChan), 2)
}

func TestEnqueueFullQueue(t *testing.T) {
	remote := &mockRemote{}
	svc, _, _, _ := newTestService(t, false, remote)

	for i := 0; i < commandBuffer; i++ {
		require.NoError(t, svc.Enqueue(setCommand("solar/battery/OverdischargeSoc/set", "1")))
	}
	assert.ErrorIs(t, svc.Enqueue(setCommand("solar/battery/OverdischargeSoc/set", "1")), ErrQueueFull)
}

func TestSubscribeRegistersCommandFilters(t *testing.T) {
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, _ string) error { return nil },
		ReadFunc:  func(_ context.Context, _ int) (string, error) { return "25", nil },
	}
	svc, bus, _, _ := newTestService(t, false, remote)

	require.NoError(t, svc.subscribe())
	assert.Equal(t, []string{"solar/battery/+/set", "solar/selfuse/+/set"}, bus.filters)

	// Messages arriving via the bus handler only enqueue; the worker
	// picks them up later.
	bus.handlers[0]("solar/battery/OverdischargeSoc/set", []byte("25"))
	select {
	case cmd := <-svc.commands:
		assert.Equal(t, model.SetCommand, cmd.Kind)
		assert.Equal(t, "solar/battery/OverdischargeSoc/set", cmd.Topic)
		assert.Equal(t, "25", cmd.Payload)
	default:
		t.Fatal("expected an enqueued command")
	}
}

func TestWorkerHandlesCommandsInArrivalOrder(t *testing.T) {
	var order []string
	done := make(chan struct{})
	remote := &mockRemote{
		WriteFunc: func(_ context.Context, _ int, value string) error {
			order = append(order, value)
			if len(order) == 3 {
				close(done)
			}
			return nil
		},
		ReadFunc: func(_ context.Context, _ int) (string, error) { return "1", nil },
	}
	svc, _, _, _ := newTestService(t, false, remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.worker(ctx)

	for _, v := range []string{"10", "20", "30"} {
		require.NoError(t, svc.Enqueue(setCommand("solar/battery/OverdischargeSoc/set", v)))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
	assert.Equal(t, []string{"10", "20", "30"}, order)
}

func TestRunReconnectsAfterConnectionLoss(t *testing.T) {
	connects := make(chan struct{}, 10)
	bus := newMockBus()
	bus.ConnectFunc = func() error {
		connects <- struct{}{}
		return nil
	}

	pub := &mockStatePublisher{}
	errChan := make(chan error, 100)
	svc := New(testConfig(false), &mockRemote{}, bus, pub, errChan)
	svc.logger = zaptest.NewLogger(t)
	svc.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()

	waitConnect := func() {
		select {
		case <-connects:
		case <-time.After(2 * time.Second):
			t.Fatal("expected a (re)connect")
		}
	}

	waitConnect()
	bus.lost <- errors.New("broker went away")
	waitConnect()

	cancel()
	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestRunRetriesFailedConnect(t *testing.T) {
	attempts := make(chan struct{}, 10)
	bus := newMockBus()
	bus.ConnectFunc = func() error {
		attempts <- struct{}{}
		return errors.New("connection refused")
	}

	errChan := make(chan error, 100)
	svc := New(testConfig(false), &mockRemote{}, bus, &mockStatePublisher{}, errChan)
	svc.logger = zaptest.NewLogger(t)
	svc.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("expected connect retries")
		}
	}
}
