package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mqttClient is the part of mqtt.Client the slot uses.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTConfig configures an MQTTSlot.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	// Owner clears the retained value on Close.
	Owner   bool
	Timeout time.Duration
	Logger  *zap.Logger
}

// MQTTSlot keeps the value as a retained message on a topic, so a late
// subscriber receives the last value immediately.
type MQTTSlot struct {
	cfg    MQTTConfig
	client mqttClient
	logger *zap.Logger

	mu    sync.RWMutex
	value int64
	set   bool
}

// NewMQTTSlot connects to the broker and subscribes to the topic.
func NewMQTTSlot(cfg MQTTConfig) (*MQTTSlot, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt slot needs a broker and a topic")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "posecue-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(cfg.timeout())
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)

	s := newMQTTSlot(cfg, nil)
	opts.OnConnect = func(c mqtt.Client) { s.subscribe() }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	s.client = mqtt.NewClient(opts)

	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func newMQTTSlot(cfg MQTTConfig, client mqttClient) *MQTTSlot {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTSlot{cfg: cfg, client: client, logger: logger}
}

func (c MQTTConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

func (s *MQTTSlot) connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.timeout()) {
		return fmt.Errorf("mqtt connect to %s: timeout", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.Broker, err)
	}
	return nil
}

func (s *MQTTSlot) subscribe() {
	token := s.client.Subscribe(s.cfg.Topic, 1, s.onMessage)
	if !token.WaitTimeout(s.cfg.timeout()) {
		s.logger.Warn("mqtt subscribe timeout", zap.String("topic", s.cfg.Topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
	}
}

func (s *MQTTSlot) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.apply(msg.Payload())
}

// apply records a payload. An empty payload is a cleared retained message.
func (s *MQTTSlot) apply(payload []byte) {
	text := strings.TrimSpace(string(payload))

	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		s.set = false
		return
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		s.logger.Debug("ignoring malformed payload", zap.String("topic", s.cfg.Topic), zap.String("payload", text))
		return
	}
	s.value = v
	s.set = true
}

// Store publishes v as the retained value.
func (s *MQTTSlot) Store(ctx context.Context, v int64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	token := s.client.Publish(s.cfg.Topic, 1, true, strconv.FormatInt(v, 10))
	if err := s.wait(ctx, token); err != nil {
		return fmt.Errorf("publish to %s: %w", s.cfg.Topic, err)
	}

	s.mu.Lock()
	s.value = v
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MQTTSlot) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(s.cfg.timeout())
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLoad returns the last value seen on the topic, or ErrEmpty.
func (s *MQTTSlot) TryLoad() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return 0, ErrEmpty
	}
	return s.value, nil
}

// Close unsubscribes and disconnects. The owner first clears the retained value.
func (s *MQTTSlot) Close() error {
	var errs []error
	if s.owner() && s.client.IsConnected() {
		token := s.client.Publish(s.cfg.Topic, 1, true, []byte{})
		if err := s.wait(context.Background(), token); err != nil {
			errs = append(errs, fmt.Errorf("clear retained value: %w", err))
		}
	}
	if s.client.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(s.cfg.timeout())
		s.client.Disconnect(250)
	}
	return errors.Join(errs...)
}

func (s *MQTTSlot) owner() bool { return s.cfg.Owner }
