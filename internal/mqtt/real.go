package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

// Timeouts keep every call bounded; the inference loop waits on them.
const (
	connectTimeout = 3 * time.Second
	publishTimeout = 250 * time.Millisecond
)

// Link publishes session traffic to an MQTT broker.
type Link struct {
	broker    string
	prefix    string
	log       *zap.Logger
	newClient func(*paho.ClientOptions) paho.Client

	mu         sync.Mutex
	client     paho.Client
	topics     Topics
	advertised bool
	listener   bool
}

var _ link.Link = (*Link)(nil)

// New creates a Link for the given broker. Nothing connects until Begin.
func New(broker, prefix string, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Link{
		broker:    broker,
		prefix:    prefix,
		log:       log.Named("mqtt"),
		newClient: paho.NewClient,
	}
}

// Begin connects to the broker, subscribes to the control and listener
// topics and publishes the online presence. A failed Begin leaves no client
// behind, so the caller may simply retry.
func (l *Link) Begin(profile link.Profile, onControl link.ControlHandler) error {
	l.mu.Lock()
	started := l.client != nil
	l.mu.Unlock()
	if started {
		return l.Advertise()
	}

	topics := TopicsFor(l.prefix, profile.LocalName)

	opts := paho.NewClientOptions().
		AddBroker(l.broker).
		SetClientID(profile.LocalName + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetWill(topics.Presence, PresenceOffline, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			l.mu.Lock()
			l.advertised = false
			l.mu.Unlock()
			l.subscribe(c, topics, onControl)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			l.mu.Lock()
			l.listener = false
			l.mu.Unlock()
			l.log.Warn("connection lost", zap.Error(err))
		})

	client := l.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("connect to broker %s: timeout", l.broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("connect to broker %s: %w", l.broker, err)
	}
	if err := publish(client, topics.Presence, 1, true, PresenceOnline); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("advertise: %w", err)
	}

	l.mu.Lock()
	l.client = client
	l.topics = topics
	l.advertised = true
	l.mu.Unlock()

	l.log.Info("connected", zap.String("broker", l.broker), zap.String("presence", topics.Presence))
	return nil
}

func (l *Link) subscribe(c paho.Client, topics Topics, onControl link.ControlHandler) {
	control := func(_ paho.Client, msg paho.Message) {
		if onControl == nil || len(msg.Payload()) == 0 {
			return
		}
		onControl(append([]byte(nil), msg.Payload()...))
	}
	listener := func(_ paho.Client, msg paho.Message) {
		online := string(msg.Payload()) == PresenceOnline
		l.mu.Lock()
		changed := l.listener != online
		l.listener = online
		l.mu.Unlock()
		if changed {
			l.log.Info("listener presence changed", zap.Bool("online", online))
		}
	}

	if t := c.Subscribe(topics.Control, 1, control); t.WaitTimeout(connectTimeout) && t.Error() != nil {
		l.log.Error("subscribe control", zap.String("topic", topics.Control), zap.Error(t.Error()))
	}
	if t := c.Subscribe(topics.Listener, 1, listener); t.WaitTimeout(connectTimeout) && t.Error() != nil {
		l.log.Error("subscribe listener", zap.String("topic", topics.Listener), zap.Error(t.Error()))
	}
}

// Advertise publishes the retained online presence once per connection.
func (l *Link) Advertise() error {
	l.mu.Lock()
	client, topics, done := l.client, l.topics, l.advertised
	l.mu.Unlock()

	if client == nil {
		return fmt.Errorf("advertise: session not started")
	}
	if done || !client.IsConnectionOpen() {
		return nil
	}

	if err := publish(client, topics.Presence, 1, true, PresenceOnline); err != nil {
		return fmt.Errorf("advertise: %w", err)
	}
	l.mu.Lock()
	l.advertised = true
	l.mu.Unlock()
	return nil
}

// Write publishes value on the channel's topic.
func (l *Link) Write(ch link.Channel, value string) error {
	if !l.Connected() {
		return link.ErrNotConnected
	}
	l.mu.Lock()
	client, topics := l.client, l.topics
	l.mu.Unlock()

	var topic string
	switch ch {
	case link.ChannelCommand:
		topic = topics.Command
	case link.ChannelMetrics:
		topic = topics.Metrics
	default:
		return fmt.Errorf("write %s: channel is not writable", ch)
	}

	// QoS 0 (at-most-once), not retained
	if err := publish(client, topic, 0, false, value); err != nil {
		return fmt.Errorf("write %s: %w", ch, err)
	}
	return nil
}

// Connected reports whether the broker connection is open and a listener is online.
func (l *Link) Connected() bool {
	l.mu.Lock()
	client, listener := l.client, l.listener
	l.mu.Unlock()
	return client != nil && listener && client.IsConnectionOpen()
}

// Close marks the session offline and disconnects from the broker.
func (l *Link) Close() error {
	l.mu.Lock()
	client, topics := l.client, l.topics
	l.client = nil
	l.listener = false
	l.mu.Unlock()

	if client == nil {
		return nil
	}
	var err error
	if client.IsConnectionOpen() {
		err = publish(client, topics.Presence, 1, true, PresenceOffline)
	}
	client.Disconnect(1000) // 1 second timeout
	return err
}

func publish(client paho.Client, topic string, qos byte, retained bool, payload string) error {
	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
