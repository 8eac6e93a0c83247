// Package mqtt announces saved collection entries on an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/logger"
)

// Client is the broker connection used by Publisher.
type Client interface {
	Connect(ctx context.Context) error
	// Publish blocks until the broker acknowledges the message or ctx ends.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// DefaultTopic is the base topic when none is configured. Entries are published
// under {topic}/{owner}.
const DefaultTopic = "birdlens/collections"

// Timeouts bound each broker interaction. Zero values take the defaults.
type Timeouts struct {
	Connect    time.Duration
	Publish    time.Duration
	Disconnect time.Duration // time given to in-flight messages on Disconnect
	// Cooldown is the minimum gap between connection attempts.
	Cooldown time.Duration
}

var defaultTimeouts = Timeouts{
	Connect:    30 * time.Second,
	Publish:    10 * time.Second,
	Disconnect: 250 * time.Millisecond,
	Cooldown:   5 * time.Second,
}

// withDefaults fills zero timeouts. Cooldown is left alone so tests can disable it.
func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = defaultTimeouts.Connect
	}
	if t.Publish <= 0 {
		t.Publish = defaultTimeouts.Publish
	}
	if t.Disconnect <= 0 {
		t.Disconnect = defaultTimeouts.Disconnect
	}
	return t
}

type Config struct {
	Broker   string // e.g. tcp://localhost:1883 or ssl://broker:8883
	ClientID string
	Username string
	Password string
	Topic    string
	Retain   bool
	Timeouts Timeouts
}

// ConfigFromSettings reads the mqtt section. The client id falls back to main.name.
func ConfigFromSettings(settings *conf.Settings) Config {
	s := settings.MQTT
	cfg := Config{
		Broker:   s.Broker,
		ClientID: s.ClientID,
		Username: s.Username,
		Password: s.Password,
		Topic:    s.Topic,
		Retain:   s.Retain,
		Timeouts: defaultTimeouts,
	}
	if cfg.ClientID == "" {
		cfg.ClientID = settings.Main.Name
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return cfg
}

func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
