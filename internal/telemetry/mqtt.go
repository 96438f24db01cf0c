// Package telemetry publishes observed contacts to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/util"
)

// publishTimeout bounds how long a QoS 1 publish may stay unacknowledged
// before it is logged as failed.
const publishTimeout = 10 * time.Second

// MQTTHandler publishes contacts as JSON messages.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	client   mqtt.Client
	metadata map[string]interface{}
	logger   zerolog.Logger
}

// NewMQTTHandler creates a handler for the configured broker. It does not
// connect until Start.
func NewMQTTHandler(cfg config.MQTTConfig, sysInfo util.SystemInfo) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s", util.AppName, sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	logger := log.With().Str("component", "mqtt").Logger()
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	return newMQTTHandler(cfg, mqtt.NewClient(opts), sysInfo), nil
}

func newMQTTHandler(cfg config.MQTTConfig, client mqtt.Client, sysInfo util.SystemInfo) *MQTTHandler {
	return &MQTTHandler{
		cfg:    cfg,
		client: client,
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"os":       sysInfo.OS,
			"app":      util.AppName,
		},
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// Start connects to the broker and blocks until ctx is cancelled, then
// publishes a shutdown message and disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(250)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

// HandleContact is an event bus handler publishing each contact.
func (h *MQTTHandler) HandleContact(ctx context.Context, event events.Event) error {
	req, ok := events.ContactPayload(event)
	if !ok {
		return nil
	}
	h.publish(h.cfg.Topic, map[string]interface{}{
		"event":       "contact",
		"kind":        req.Kind.Name(),
		"remote":      req.Remote(),
		"request":     req.Kind,
		"received_at": req.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

// HandleHeartbeat is an event bus handler publishing health heartbeats to
// the "<topic>/heartbeat" subtopic.
func (h *MQTTHandler) HandleHeartbeat(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	msg := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["event"] = "heartbeat"
	h.publish(h.cfg.Topic+"/heartbeat", msg)
	return nil
}

// PublishShutdown announces that the decoy is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.cfg.Topic, map[string]interface{}{
		"event": "shutdown",
	})
}

// publish sends payload plus host metadata at QoS 1. Messages are
// dropped while disconnected.
func (h *MQTTHandler) publish(topic string, payload map[string]interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := make(map[string]interface{}, len(h.metadata)+len(payload)+1)
	for k, v := range h.metadata {
		msg[k] = v
	}
	for k, v := range payload {
		msg[k] = v
	}
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		h.logger.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}
