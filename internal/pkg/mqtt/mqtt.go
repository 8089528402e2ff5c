package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/solisctl/solis-integration/internal/pkg/config"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	connectTimeout = time.Second * 5
	publishTimeout = time.Second * 10
)

type service struct {
	client paho_mqtt.Client
	cfg    *config.MqttConfig
	lost   chan error
	logger *zap.Logger
}

// New prepares a broker session with the availability topic as its
// will, so a dirty disconnect flips the bridge offline without our
// help. Reconnecting is left to the caller, paho's auto reconnect
// would resubscribe without replaying our startup reads.
func New(cfg *config.MqttConfig, logger *zap.Logger) *service {
	s := &service{
		cfg:    cfg,
		lost:   make(chan error, 1),
		logger: logger,
	}
	opts := paho_mqtt.NewClientOptions()
	opts.AddBroker(cfg.Host)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetWill(s.AvailabilityTopic(), payloadOffline, 1, true)
	opts.SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
		select {
		case s.lost <- err:
		default:
		}
	})
	s.client = paho_mqtt.NewClient(opts)
	return s
}

func (s *service) AvailabilityTopic() string {
	return s.cfg.Prefix + "/bridge/state"
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(connectTimeout)
	if res {
		return s.publish(s.AvailabilityTopic(), payloadOnline, 1, true)
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

// Subscribe registers handler for every message below topic. Paho runs
// handlers on its own goroutines, so handler must only enqueue.
func (s *service) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := s.client.Subscribe(topic, 1, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	res := token.WaitTimeout(connectTimeout)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return fmt.Errorf("unable to subscribe to %s in time", topic)
}

// Lost reports connection loss once per drop.
func (s *service) Lost() <-chan error {
	return s.lost
}

func (s *service) Connected() bool {
	return s.client.IsConnectionOpen()
}

// Disconnect retracts availability first, the will only covers crash
// paths.
func (s *service) Disconnect() {
	if err := s.publish(s.AvailabilityTopic(), payloadOffline, 1, true); err != nil {
		s.logger.Warn("failed to publish offline state", zap.Error(err))
	}
	s.client.Disconnect(250)
}

func (s *service) publish(topic string, payload any, qos byte, retained bool) error {
	token := s.client.Publish(topic, qos, retained, payload)
	res := token.WaitTimeout(publishTimeout)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return fmt.Errorf("publish to %s timed out", topic)
}
