package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability/metrics"
	"github.com/birdlens/birdlens/internal/privacy"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(config Config, m *metrics.MQTTMetrics) (Client, error) {
	if config.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	config.Timeouts = config.Timeouts.withDefaults()
	return &client{
		config:  config,
		metrics: m,
		log:     GetLogger(),
	}, nil
}

// Connect resolves the broker host and opens the connection. Attempts closer together
// than Timeouts.Cooldown are refused.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.Timeouts.Cooldown {
		return connectionError(errors.Newf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)).Build(), c.config.Broker)
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectionError(err, c.config.Broker)
	}

	host := u.Hostname()
	if host == "" {
		return connectionError(errors.Newf("broker URL has no host").Build(), c.config.Broker)
	}
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(err, c.config.Broker)
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.Timeouts.Connect)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.Timeouts.Connect); err != nil {
		return connectionError(err, c.config.Broker)
	}

	c.updateConnectionStatus(true)
	return nil
}

// Publish sends payload to topic with QoS 1.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		c.incrementErrors()
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 1, c.config.Retain, payload)
	if err := waitToken(ctx, token, c.config.Timeouts.Publish); err != nil {
		c.incrementErrors()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Timing("mqtt_publish", time.Since(start)).
			Build()
	}

	if c.metrics != nil {
		c.metrics.RecordPublish(len(payload), time.Since(start).Seconds())
	}
	c.log.Debug("published message",
		logger.String("topic", topic),
		logger.Int("size", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.Timeouts.Disconnect.Milliseconds()))
		c.updateConnectionStatus(false)
	}
}

func (c *client) onConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.SanitizeURL(c.config.Broker)))
	c.updateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.SanitizeURL(c.config.Broker)),
		logger.Error(err))
	c.updateConnectionStatus(false)
	c.incrementErrors()
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	if c.metrics != nil {
		c.metrics.IncrementReconnectAttempts()
	}
}

func (c *client) updateConnectionStatus(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *client) incrementErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

// waitToken blocks until token completes, ctx is done or timeout elapses.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Newf("operation timed out after %v", timeout).
			Category(errors.CategoryTimeout).
			Build()
	}
}

func connectionError(err error, broker string) error {
	return errors.New(privacy.WrapError(err)).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", privacy.SanitizeURL(broker)).
		Build()
}
