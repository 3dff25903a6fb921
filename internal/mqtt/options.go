package mqtt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stationlog/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options locate the broker and name the session.
type Options struct {
	Broker   string
	Port     int
	ClientID string
	// Topic is the subscription filter; publishers derive their topic with BatchTopic.
	Topic string
}

// OptionsFromConfig reads the broker settings shared by the server and the simulator.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Broker:   cfg.MQTTBroker,
		Port:     cfg.MQTTPort,
		ClientID: cfg.MQTTClientID,
		Topic:    cfg.MQTTTopic,
	}
}

// BatchTopic is the topic a station publishes its batches on.
func BatchTopic(station string) string {
	return fmt.Sprintf("stations/%s/batch", station)
}

// StationFromTopic extracts the station of a "stations/<name>/batch" topic.
func StationFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "stations" || parts[2] != "batch" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// connState is the connection flag shared by the subscriber and the publisher.
type connState interface {
	setConnected(bool)
}

func newClientOptions(o Options, logger *slog.Logger, state connState, onConnect func()) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Broker, o.Port))
	opts.SetClientID(o.ClientID)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		state.setConnected(true)
		logger.Info("mqtt connected", "broker", o.Broker, "port", o.Port, "client_id", o.ClientID)
		if onConnect != nil {
			onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		state.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}
