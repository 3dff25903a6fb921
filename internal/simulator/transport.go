package simulator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender delivers one JSON batch for a station.
type Sender interface {
	Send(ctx context.Context, station string, payload []byte) error
	// Transport names the sender in statuses and metrics.
	Transport() string
}

// HTTPSender posts batches to the server's /receive_batch endpoint.
type HTTPSender struct {
	URL    string
	Client *http.Client
}

func NewHTTPSender(url string) *HTTPSender {
	return &HTTPSender{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPSender) Transport() string { return "http" }

func (s *HTTPSender) Send(ctx context.Context, _ string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post batch: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// BatchPublisher is the MQTT side of a sender.
type BatchPublisher interface {
	PublishBatch(station string, payload []byte) error
}

// MQTTSender publishes batches on the station's batch topic.
type MQTTSender struct {
	Publisher BatchPublisher
}

func (s *MQTTSender) Transport() string { return "mqtt" }

func (s *MQTTSender) Send(_ context.Context, station string, payload []byte) error {
	return s.Publisher.PublishBatch(station, payload)
}
