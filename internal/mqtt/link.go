package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	BaseTopic      string
	Username       string
	Password       string
	ConnectRetries int
	// RetryInterval is the initial backoff between connection attempts.
	RetryInterval time.Duration
	// Timeout bounds a single connect or publish.
	Timeout time.Duration
	// OutboxSize bounds the system events held while disconnected.
	OutboxSize int
}

const (
	defaultTimeout       = 5 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
	defaultOutboxSize    = 32
)

// Link is a network.Link over an MQTT broker. The device counts as joined
// while the broker session is up.
type Link struct {
	cfg    Config
	topics Topics
	logger *slog.Logger
	table  *zcl.Table

	// Now is replaceable for tests.
	Now func() time.Time
	// OnConnectionChange, if set, is called on every session change.
	OnConnectionChange func(connected bool)

	mu        sync.Mutex
	client    paho.Client
	handlers  network.Handlers
	connected bool
	leaving   bool
	closed    bool
	seq       uint8
	pending   *outbox
}

var _ network.Link = (*Link)(nil)

// NewLink creates an unconnected Link.
func NewLink(cfg Config, logger *slog.Logger) *Link {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	if cfg.ConnectRetries < 0 {
		cfg.ConnectRetries = 0
	}
	logger = logger.With("component", "mqtt")
	return &Link{
		cfg:     cfg,
		topics:  NewTopics(cfg.BaseTopic),
		logger:  logger,
		table:   zcl.NewTable(),
		Now:     time.Now,
		pending: newOutbox(cfg.OutboxSize, logger),
	}
}

// Topics returns the topics in use.
func (l *Link) Topics() Topics {
	return l.topics
}

// Table returns the local attribute table.
func (l *Link) Table() *zcl.Table {
	return l.table
}

// Start connects to the broker, retrying with exponential backoff.
func (l *Link) Start(h network.Handlers) error {
	l.mu.Lock()
	l.handlers = h
	l.mu.Unlock()
	return l.connect()
}

func (l *Link) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(l.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(l.cfg.Timeout).
		SetWill(l.topics.Availability, Offline, 1, true).
		SetOnConnectHandler(func(c paho.Client) { l.onConnect(c) }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { l.onConnectionLost(err) })
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}
	return opts
}

func (l *Link) connect() error {
	client := paho.NewClient(l.options())
	l.mu.Lock()
	l.client = client
	l.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.RetryInterval
	bo.MaxElapsedTime = 0
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		token := client.Connect()
		if !token.WaitTimeout(l.cfg.Timeout) {
			return errors.New("connection timeout")
		}
		if err := token.Error(); err != nil {
			l.logger.Warn("broker connect failed", "broker", l.cfg.Broker, "attempt", attempt, "err", err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, uint64(l.cfg.ConnectRetries)))
	if err != nil {
		return fmt.Errorf("connect to broker %s after %d attempts: %w", l.cfg.Broker, attempt, err)
	}
	l.logger.Info("connected to broker", "broker", l.cfg.Broker, "base_topic", l.cfg.BaseTopic)
	return nil
}

// onConnect runs on a paho goroutine after every (re)connection.
func (l *Link) onConnect(c paho.Client) {
	l.publishRaw(c, l.topics.Availability, 1, true, []byte(Online))

	subs := map[string]byte{l.topics.Set: 1, l.topics.Identify: 1}
	if token := c.SubscribeMultiple(subs, l.onMessage); token.WaitTimeout(l.cfg.Timeout) && token.Error() != nil {
		l.logger.Error("subscribe to command topics", "err", token.Error())
	}

	l.publishState(c)

	l.mu.Lock()
	held := l.pending.drain()
	l.connected = true
	l.leaving = false
	h := l.handlers
	l.mu.Unlock()

	for _, m := range held {
		l.publishRaw(c, m.topic, m.qos, m.retained, m.payload)
	}
	if len(held) > 0 {
		l.logger.Info("replayed held system events", "count", len(held))
	}

	l.notify(true, h)
}

func (l *Link) onConnectionLost(err error) {
	l.logger.Warn("broker connection lost", "err", err)
	l.mu.Lock()
	l.connected = false
	h := l.handlers
	l.mu.Unlock()
	l.notify(false, h)
}

func (l *Link) notify(connected bool, h network.Handlers) {
	if l.OnConnectionChange != nil {
		l.OnConnectionChange(connected)
	}
	if h.OnJoinChange != nil {
		h.OnJoinChange(connected)
	}
}

func (l *Link) onMessage(_ paho.Client, msg paho.Message) {
	var (
		cmd zcl.Command
		err error
	)
	switch msg.Topic() {
	case l.topics.Set:
		cmd, err = ParseSetCommand(msg.Payload())
	case l.topics.Identify:
		cmd, err = ParseIdentifyCommand(msg.Payload())
	default:
		return
	}
	if err != nil {
		l.logger.Warn("ignoring command", "topic", msg.Topic(), "err", err)
		return
	}
	l.mu.Lock()
	h := l.handlers
	l.mu.Unlock()
	if h.OnCommand != nil {
		h.OnCommand(cmd)
	}
}

// IsConnected reports whether the broker session is up.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) session() (paho.Client, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client, l.connected && !l.leaving
}

// SetAttribute stores a and republishes the retained state when it changed
// while connected.
func (l *Link) SetAttribute(a zcl.Attribute) error {
	if !l.table.Set(a) {
		return nil
	}
	c, ok := l.session()
	if !ok {
		return nil
	}
	return l.publishState(c)
}

func (l *Link) publishState(c paho.Client) error {
	payload, err := FormatStatePayload(l.table.All(), l.Now())
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	return l.publishRaw(c, l.topics.State, 1, true, payload)
}

// SendReport publishes r on the report topic.
func (l *Link) SendReport(r zcl.Report) error {
	c, ok := l.session()
	if !ok {
		return network.ErrNotJoined
	}
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	payload, err := FormatReportPayload(r, seq, l.Now())
	if err != nil {
		return err
	}
	return l.publishRaw(c, l.topics.Report, 0, false, payload)
}

// IndicateUserInput has no broker-side effect; the session is always awake.
func (l *Link) IndicateUserInput() {
	l.logger.Debug("user input")
}

// PublishSystem publishes a lifecycle event, holding it for replay when the
// broker is unreachable.
func (l *Link) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	c, ok := l.session()
	if !ok {
		l.mu.Lock()
		l.pending.push(message{topic: l.topics.System, payload: payload, qos: 1, retained: event.Retained})
		l.mu.Unlock()
		return nil
	}
	return l.publishRaw(c, l.topics.System, 1, event.Retained, payload)
}

// Leave publishes FACTORY_RESET, clears the retained state and reconnects
// with a fresh session.
func (l *Link) Leave() error {
	l.mu.Lock()
	c, connected := l.client, l.connected
	if c == nil || l.closed {
		l.mu.Unlock()
		return errors.New("mqtt: link not running")
	}
	l.leaving = true
	h := l.handlers
	l.mu.Unlock()

	if connected {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: l.Now(), Event: EventFactoryReset})
		l.publishRaw(c, l.topics.System, 1, false, payload)
		l.publishRaw(c, l.topics.State, 1, true, nil)
		l.publishRaw(c, l.topics.Availability, 1, true, []byte(Offline))
	}
	c.Disconnect(250)

	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.notify(false, h)
	l.logger.Info("left network, rejoining")

	go func() {
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}
		if err := l.connect(); err != nil {
			l.logger.Error("rejoin failed", "err", err)
		}
	}()
	return nil
}

// Close publishes offline availability and disconnects.
func (l *Link) Close() error {
	l.mu.Lock()
	c := l.client
	l.closed = true
	l.connected = false
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	if c.IsConnectionOpen() {
		l.publishRaw(c, l.topics.Availability, 1, true, []byte(Offline))
	}
	c.Disconnect(1000)
	return nil
}

func (l *Link) publishRaw(c paho.Client, topic string, qos byte, retained bool, payload []byte) error {
	token := c.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(l.cfg.Timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
