package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/firemon-dev/firemon/internal/config"
	"github.com/firemon-dev/firemon/internal/log"
	"github.com/firemon-dev/firemon/internal/metrics"
	"github.com/firemon-dev/firemon/internal/types"
	"github.com/firemon-dev/firemon/internal/util"
)

// Cloud is the relay transport: the panel gateway publishes raw
// telemetry frames to an MQTT broker and the monitor subscribes.
// Reconnection after a drop is paho's auto-reconnect; a failed initial
// connect is terminal until an explicit retry or mode switch.
type Cloud struct {
	log   *log.Logger
	cfg   config.CloudConfig
	topic string

	mu     sync.Mutex
	client mqtt.Client
	state  types.ConnectionState
}

func NewCloud(logger *log.Logger, cfg config.CloudConfig, panelName string) *Cloud {
	return &Cloud{
		log:   logger.Component("cloud"),
		cfg:   cfg,
		topic: fmt.Sprintf("%s/%s/telemetry", cfg.Prefix, util.Slugify(panelName)),
	}
}

func (c *Cloud) Mode() types.TransportMode {
	return types.ModeCloud
}

func (c *Cloud) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cloud) Start(sink Sink, onState StateFunc) error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return errAlreadyStarted
	}
	c.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port))
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetCleanSession(c.cfg.Clean)
	opts.SetKeepAlive(time.Duration(c.cfg.Keepalive) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)

	if c.cfg.CA != "" {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			return fmt.Errorf("failed to load TLS material: %v", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.log.Info("Connected to relay broker %s:%d", c.cfg.Host, c.cfg.Port)
		token := client.Subscribe(c.topic, byte(c.cfg.QOS), func(_ mqtt.Client, msg mqtt.Message) {
			sink(msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			c.log.Error("Failed to subscribe to %s: %v", c.topic, token.Error())
			c.setState(onState, types.StateFailed)
			return
		}
		c.log.Debug("Subscribed to telemetry topic: %s", c.topic)
		c.setState(onState, types.StateConnected)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Error("Relay connection lost: %v", err)
		c.setState(onState, types.StateDisconnected)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		metrics.ReconnectsTotal.WithLabelValues("cloud").Inc()
		c.setState(onState, types.StateConnecting)
	})

	c.setState(onState, types.StateConnecting)
	client := mqtt.NewClient(opts)

	metrics.ReconnectsTotal.WithLabelValues("cloud").Inc()
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		c.setState(onState, types.StateFailed)
		return fmt.Errorf("failed to connect to relay broker: %v", token.Error())
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

// Stop unsubscribes and disconnects. Paho's Disconnect waits for
// in-flight handlers, so no frame reaches the sink after return.
func (c *Cloud) Stop() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		if token := client.Unsubscribe(c.topic); token.Wait() && token.Error() != nil {
			c.log.Warn("Failed to unsubscribe from %s: %v", c.topic, token.Error())
		}
	}
	client.Disconnect(250)

	c.mu.Lock()
	c.state = types.StateDisconnected
	c.mu.Unlock()
	c.log.Debug("Cloud transport stopped")
}

func (c *Cloud) tlsConfig() (*tls.Config, error) {
	pool := x509.NewCertPool()
	ca, err := os.ReadFile(c.cfg.CA)
	if err != nil {
		return nil, fmt.Errorf("error reading CA file: %v", err)
	}
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("no certificates parsed from %s", c.cfg.CA)
	}

	tlsConfig := &tls.Config{
		RootCAs:            pool,
		InsecureSkipVerify: !c.cfg.RejectUnauthorized,
	}
	if c.cfg.Cert != "" && c.cfg.Key != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.Cert, c.cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("error loading client certificate: %v", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (c *Cloud) setState(onState StateFunc, state types.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	if onState != nil {
		onState(state)
	}
}
