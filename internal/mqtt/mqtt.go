package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"readings-server/internal/config"
	"readings-server/internal/telemetry"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	subscribeQoS     = byte(1)
	subscribeTimeout = 5 * time.Second
)

var errStopped = errors.New("subscriber stopped")

// MessageHandler receives each valid telemetry message and the topic it arrived on.
type MessageHandler func(topic string, t telemetry.Telemetry) error

// MQTTSubscriber is what feature modules need to attach to incoming telemetry.
type MQTTSubscriber interface {
	SetMessageHandler(handler MessageHandler)
}

// Subscriber consumes device telemetry from a single topic filter.
type Subscriber struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger

	mu         sync.RWMutex
	connected  bool
	subscribed bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handler MessageHandler
}

// SetMessageHandler must be called before Connect.
func (s *Subscriber) SetMessageHandler(handler MessageHandler) {
	s.handler = handler
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) (*Subscriber, error) {
	if cfg.MQTTBroker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		topic:  cfg.MQTTTopic,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	broker := fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.MQTTClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second)

	// A clean session loses its subscription on reconnect, so it is renewed here.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", broker)
		if s.wasSubscribed() {
			go s.resubscribe(c)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect dials the broker and subscribes to the configured topic. It gives up
// when ctx is done or Disconnect has been called.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	for !token.WaitTimeout(200 * time.Millisecond) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	if err := s.subscribe(s.client); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}
	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.topic, subscribeQoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", subscribeQoS)
	return nil
}

func (s *Subscriber) resubscribe(c mqtt.Client) {
	if err := s.subscribe(c); err != nil {
		s.logger.Error("mqtt resubscribe failed", "topic", s.topic, "error", err)
	}
}

// handleMessage decodes one payload and passes it on. Bad payloads are logged
// and dropped; there is no redelivery.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var t telemetry.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		s.logger.Warn("failed to parse telemetry message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}
	t.Resolve(topic)

	if err := t.Validate(); err != nil {
		s.logger.Warn("invalid telemetry message",
			"topic", topic,
			"device_id", t.DeviceID,
			"error", err,
		)
		return
	}

	if s.handler == nil {
		return
	}
	if err := s.handler(topic, t); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"device_id", t.DeviceID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed telemetry message", "device_id", t.DeviceID)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client != nil && s.client.IsConnected()
}

// Disconnect is idempotent.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil {
		if s.IsConnected() {
			s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
		}
		s.client.Disconnect(250)
	}

	s.mu.Lock()
	s.connected = false
	s.subscribed = false
	s.mu.Unlock()
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Subscriber) wasSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}
