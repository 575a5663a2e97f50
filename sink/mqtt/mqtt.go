// Package mqtt publishes audit events to an MQTT broker so that alerting
// and SIEM consumers can subscribe by severity or action.
//
// Events go to <prefix>/<severity>/<action> as JSON at QoS 1.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MrEthical07/goTrust/internal/audit"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 500 // milliseconds
	maxPayloadSize        = 256 << 10
)

var (
	ErrNotConnected  = errors.New("mqtt: not connected")
	ErrPublishFailed = errors.New("mqtt: publish failed")
)

// Publisher is the subset of the paho client the sink needs.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Config configures the broker connection.
type Config struct {
	Broker      string // tcp://host:1883 or ssl://host:8883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Sink implements the audit sink interface over MQTT.
type Sink struct {
	client Publisher
	prefix string
	qos    byte
	closer func()
}

// Connect dials the broker and returns a sink that owns the connection.
func Connect(cfg Config) (*Sink, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}

	s := New(client, cfg.TopicPrefix, cfg.QoS)
	s.closer = func() { client.Disconnect(disconnectQuiesce) }
	return s, nil
}

// New wraps an already connected client. qos above 2 is clamped to 1.
func New(client Publisher, prefix string, qos byte) *Sink {
	if prefix == "" {
		prefix = "gotrust/audit"
	}
	if qos > 2 {
		qos = 1
	}
	return &Sink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

// Topic returns the topic an event is published to.
func (s *Sink) Topic(e audit.Event) string {
	sev := string(e.Severity)
	if sev == "" {
		sev = string(audit.SeverityInfo)
	}
	// + and # are wildcards and may not appear in a publish topic.
	action := strings.NewReplacer("+", "_", "#", "_", "/", ".").Replace(e.Action)
	return s.prefix + "/" + sev + "/" + action
}

func (s *Sink) Emit(ctx context.Context, e audit.Event) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mqtt: encoding event: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes", ErrPublishFailed, len(payload))
	}

	token := s.client.Publish(s.Topic(e), s.qos, false, payload)

	wait := time.NewTimer(defaultPublishTimeout)
	defer wait.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	case <-wait.C:
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects when the sink owns the connection.
func (s *Sink) Close() {
	if s.closer != nil {
		s.closer()
	}
}
