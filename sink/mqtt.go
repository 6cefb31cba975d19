package sink

import (
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/packet"
)

type MQTTConfig struct {
	// Broker URL, e.g. tcp://localhost:1883. Empty disables publishing.
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`

	Timeout time.Duration `yaml:"timeout"`
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{Topic: "fobrob/codes", Timeout: 5 * time.Second}
}

// MQTT publishes each message as JSON to a topic derived from the
// configured one and the command name.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
}

func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTConfig().Timeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("fobrob_" + uuid.New().String())

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(cfg.Timeout) {
		return nil, errors.Errorf("timed out connecting to %s", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.Broker)
	}

	log.WithFields(log.Fields{"broker": cfg.Broker, "topic": cfg.Topic}).Info("connected to mqtt broker")

	return &MQTT{client: client, cfg: cfg}, nil
}

// Topic returns the topic a message is published on.
func (m *MQTT) Topic(msg packet.LogMessage) string {
	return topic(m.cfg.Topic, msg)
}

func topic(base string, msg packet.LogMessage) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.ToLower(msg.Command)
}

func (m *MQTT) Write(msg packet.LogMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshalling message")
	}

	token := m.client.Publish(m.Topic(msg), m.cfg.QoS, m.cfg.Retain, data)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return errors.Errorf("timed out publishing to %s", m.Topic(msg))
	}
	return errors.Wrap(token.Error(), "publishing message")
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
