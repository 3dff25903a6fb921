package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const qosAtLeastOnce = byte(1)

var errStopped = errors.New("mqtt client stopped")

// MessageHandler processes one batch payload received on topic.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// MQTTSubscriber lets modules attach their handler without knowing the transport.
type MQTTSubscriber interface {
	SetMessageHandler(handler MessageHandler)
}

type Subscriber struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	// subscribed is set once the first subscription succeeded; reconnects then resubscribe.
	subscribed bool
	ctx        context.Context

	stopCh   chan struct{}
	stopOnce sync.Once

	handler MessageHandler
}

func (s *Subscriber) SetMessageHandler(handler MessageHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func NewSubscriber(o Options, logger *slog.Logger) (*Subscriber, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if o.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is not configured")
	}
	s := &Subscriber{
		opts:   o,
		logger: logger,
		ctx:    context.Background(),
		stopCh: make(chan struct{}),
	}
	s.client = mqtt.NewClient(newClientOptions(o, logger, s, s.onReconnect))
	return s, nil
}

// Connect establishes the connection and subscribes to the configured topic.
// It waits for the first connection while honoring ctx and Disconnect. Handlers
// receive ctx's values but not its deadline, which only bounds the connect.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errStopped
	default:
	}

	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if !s.IsConnected() {
		token := s.client.Connect()
		const poll = 200 * time.Millisecond
		for !token.WaitTimeout(poll) {
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
	}

	if err := s.subscribe(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}
	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

func (s *Subscriber) onReconnect() {
	s.mu.RLock()
	again := s.subscribed
	s.mu.RUnlock()
	if !again {
		return
	}
	// Clean sessions drop subscriptions; paho calls this on its own goroutine.
	go func() {
		if err := s.subscribe(); err != nil {
			s.logger.Error("mqtt resubscribe failed", "topic", s.opts.Topic, "error", err)
		}
	}()
}

func (s *Subscriber) subscribe() error {
	topic := s.opts.Topic
	token := s.client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qosAtLeastOnce)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	s.mu.RLock()
	handler, ctx := s.handler, s.ctx
	s.mu.RUnlock()
	if handler == nil {
		s.logger.Warn("no handler for mqtt message", "topic", topic)
		return
	}
	if err := handler(ctx, topic, payload); err != nil {
		s.logger.Error("message handler failed", "topic", topic, "error", err)
	}
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.opts.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	// Disconnect without holding s.mu; paho quiesces in-flight work for the given ms.
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
