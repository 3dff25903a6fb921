package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends batch payloads on behalf of a station.
type Publisher struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(o Options, logger *slog.Logger) (*Publisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		opts:   o,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.client = mqtt.NewClient(newClientOptions(o, logger, p, nil))
	return p, nil
}

// Connect waits for the initial connection, honoring ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// PublishBatch publishes a JSON batch on the station's batch topic with QoS 1.
func (p *Publisher) PublishBatch(station string, payload []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := BatchTopic(station)
	token := p.client.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish batch: %w", token.Error())
	}

	p.logger.Debug("published batch", "topic", topic, "size", len(payload))
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent; Connect afterwards fails.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
