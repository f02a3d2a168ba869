package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSinkConfig configures an MQTTSink's broker connection.
type MQTTSinkConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// MQTTSink publishes lifecycle events as JSON to
// casimir/devices/<id>/lifecycle. Connection is lazy: the first
// Publish call dials the broker if not already connected.
type MQTTSink struct {
	config MQTTSinkConfig
	log    *zap.Logger

	mu        sync.RWMutex
	client    mqtt.Client
	connected bool
}

// NewMQTTSink builds a sink for the given broker. Dial happens on the
// first Publish, not here.
func NewMQTTSink(config MQTTSinkConfig, log *zap.Logger) *MQTTSink {
	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("casimir_%d", time.Now().UnixNano())
	}
	if config.QoS > 2 {
		config.QoS = 2
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 60 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &MQTTSink{config: config, log: log}
}

type lifecyclePayload struct {
	DeviceID uint16 `json:"device_id"`
	Kind     Kind   `json:"kind"`
	Detail   string `json:"detail,omitempty"`
}

// Publish connects lazily and publishes e to the device's lifecycle
// topic. A connect or publish failure is logged and discarded — per
// the Sink contract, lifecycle delivery never blocks or fails the
// caller.
func (s *MQTTSink) Publish(e Event) {
	if !s.isConnected() {
		if err := s.connect(); err != nil {
			s.log.Warn("mqtt sink: connect failed", zap.Error(err))
			return
		}
	}

	body, err := json.Marshal(lifecyclePayload{DeviceID: e.DeviceID, Kind: e.Kind, Detail: e.Detail})
	if err != nil {
		s.log.Warn("mqtt sink: marshal failed", zap.Error(err))
		return
	}

	topic := fmt.Sprintf("casimir/devices/%d/lifecycle", e.DeviceID)
	token := s.client.Publish(topic, s.config.QoS, false, body)
	token.Wait()
	if token.Error() != nil {
		s.log.Warn("mqtt sink: publish failed", zap.Error(token.Error()), zap.String("topic", topic))
	}
}

func (s *MQTTSink) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(s.config.KeepAlive)
	opts.SetConnectTimeout(s.config.ConnectTimeout)
	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.log.Warn("mqtt sink: connection lost", zap.Error(err))
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.client != nil && s.client.IsConnected()
}

// Close disconnects the MQTT client if connected.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
		s.connected = false
	}
}
