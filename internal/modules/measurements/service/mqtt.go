package service

import (
	"context"
	"errors"

	"stationlog/internal/mqtt"
)

// Register attaches the ingestion handler to an MQTT subscriber. Payloads carry the
// same JSON array as the HTTP endpoint. Malformed batches are logged and dropped.
func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	subscriber.SetMessageHandler(func(ctx context.Context, topic string, payload []byte) error {
		station, _ := mqtt.StationFromTopic(topic)
		n, err := s.ingestRaw(ctx, SourceMQTT, payload)
		if errors.Is(err, ErrMalformedBatch) {
			s.logger.Warn("dropping malformed mqtt batch", "topic", topic, "station", station, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		s.logger.Debug("stored mqtt batch", "station", station, "rows", n)
		return nil
	})
}
