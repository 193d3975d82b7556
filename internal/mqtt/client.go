package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/services"
)

var (
	ErrInvalidTopicFormat           = errors.New("invalid topic format")
	ErrMalformedJSON                = errors.New("malformed JSON payload")
	ErrMaxReconnectAttemptsExceeded = errors.New("max reconnect attempts exceeded")
	ErrNotConnected                 = errors.New("mqtt client not connected")
	ErrNotSpecified                 = errors.New("handler not yet specified")
	ErrConnectPending               = errors.New("broker not reachable yet, retrying in background")
)

// State is the connection lifecycle state of a Transport
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateOffline      State = "OFFLINE"
	StateReconnecting State = "RECONNECTING"
	StateTerminated   State = "TERMINATED"
)

// Config holds MQTT transport configuration
type Config struct {
	Broker               string
	Username             string
	Password             string
	ClientIDPrefix       string
	ReconnectPeriod      time.Duration
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Broker:               "tcp://localhost:1883",
		ClientIDPrefix:       "iot_server",
		ReconnectPeriod:      5 * time.Second,
		ConnectTimeout:       30 * time.Second,
		KeepAlive:            60 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// Ingester consumes sensor readings received on data topics
type Ingester interface {
	Ingest(ctx context.Context, id services.Identity, raw models.Reading) (*services.Result, error)
}

// ClientFactory builds the underlying paho client
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// Option customizes a Transport
type Option func(*Transport)

func WithClientFactory(f ClientFactory) Option {
	return func(t *Transport) { t.newClient = f }
}

func WithStatusHandler(h StatusHandler) Option {
	return func(t *Transport) { t.statusHandler = h }
}

func WithCommandHandler(h CommandHandler) Option {
	return func(t *Transport) { t.commandHandler = h }
}

// Subscription is the bookkeeping kept per subscribed topic pattern
type Subscription struct {
	Pattern      string    `json:"pattern"`
	QoS          byte      `json:"qos"`
	SubscribedAt time.Time `json:"subscribedAt"`
	MessageCount int64     `json:"messageCount"`
}

// Stats are running transport counters
type Stats struct {
	MessagesReceived  int64     `json:"messagesReceived"`
	MessagesProcessed int64     `json:"messagesProcessed"`
	StatusMessages    int64     `json:"statusMessages"`
	CommandMessages   int64     `json:"commandMessages"`
	Errors            int64     `json:"errors"`
	Publishes         int64     `json:"publishes"`
	PublishFailures   int64     `json:"publishFailures"`
	ConnectedAt       time.Time `json:"connectedAt,omitempty"`
	LastMessageAt     time.Time `json:"lastMessageAt,omitempty"`
}

// Status is a point-in-time view of the transport
type Status struct {
	State             State          `json:"state"`
	ClientID          string         `json:"clientId"`
	Healthy           bool           `json:"healthy"`
	ReconnectAttempts int            `json:"reconnectAttempts"`
	Subscriptions     []Subscription `json:"subscriptions"`
	Stats             Stats          `json:"stats"`
	LastError         string         `json:"lastError,omitempty"`
}

// Transport owns the process-wide MQTT connection: it connects, subscribes to
// device topics, routes inbound messages and publishes server status.
//
// Inbound messages are dispatched on their own goroutines, so bookkeeping and
// counters are guarded by mu.
type Transport struct {
	cfg            Config
	newClient      ClientFactory
	ingester       Ingester
	statusHandler  StatusHandler
	commandHandler CommandHandler
	logger         zerolog.Logger

	mu                sync.Mutex
	client            mqtt.Client
	generation        uint64
	firstAttempt      bool
	state             State
	clientID          string
	subscriptions     map[string]*Subscription
	reconnectAttempts int
	stats             Stats
	lastErr           error
	closing           bool

	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
	wg             sync.WaitGroup
}

// NewTransport creates a transport in the DISCONNECTED state
func NewTransport(cfg Config, ingester Ingester, logger zerolog.Logger, opts ...Option) *Transport {
	def := DefaultConfig()
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = def.ClientIDPrefix
	}
	if cfg.ReconnectPeriod <= 0 {
		cfg.ReconnectPeriod = def.ReconnectPeriod
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = def.KeepAlive
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}

	t := &Transport{
		cfg:           cfg,
		newClient:     mqtt.NewClient,
		ingester:      ingester,
		logger:        logger.With().Str("component", "mqtt").Logger(),
		state:         StateDisconnected,
		subscriptions: make(map[string]*Subscription),
	}
	t.statusHandler = &defaultStatusHandler{t: t}
	t.commandHandler = &defaultCommandHandler{t: t}
	for _, opt := range opts {
		opt(t)
	}
	t.dispatchCtx, t.cancelDispatch = context.WithCancel(context.Background())
	return t
}

// newClientID is unique across restarts: prefix, millisecond timestamp,
// process id and a random suffix.
func newClientID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%d_%s", prefix, time.Now().UnixMilli(), os.Getpid(), suffix)
}

// Initialize connects to the broker. It is a no-op when a connection is
// already established or in progress.
//
// Connection attempts continue in the background every ReconnectPeriod until
// the broker accepts, the reconnect ceiling is reached or Disconnect is
// called. When the first connect does not complete within ConnectTimeout,
// Initialize returns ErrConnectPending and leaves the retries running.
func (t *Transport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	if t.client != nil && t.state != StateTerminated {
		t.mu.Unlock()
		t.logger.Debug().Str("state", string(t.state)).Msg("MQTT transport already initialized")
		return nil
	}

	t.generation++
	t.firstAttempt = true
	t.clientID = newClientID(t.cfg.ClientIDPrefix)
	opts := t.clientOptions(t.generation)
	client := t.newClient(opts)
	t.client = client
	t.state = StateConnecting
	t.reconnectAttempts = 0
	t.lastErr = nil
	t.mu.Unlock()

	t.logger.Info().Str("broker", t.cfg.Broker).Str("client_id", opts.ClientID).Msg("connecting to MQTT broker")

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		return nil
	case <-time.After(t.cfg.ConnectTimeout):
		return fmt.Errorf("%w: no connection after %s", ErrConnectPending, t.cfg.ConnectTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrConnectPending, ctx.Err())
	}
}

// clientOptions disables paho's own reconnect, whose interval backs off.
// Every retry goes through paho's connect retry loop instead, which waits a
// fixed ConnectRetryInterval between attempts.
func (t *Transport) clientOptions(gen uint64) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.clientID)
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(t.cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(t.cfg.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(t.cfg.ReconnectPeriod)
	opts.SetBinaryWill(StatusTopic, statusPayload("offline", "unexpected disconnect", t.clientID), 1, true)
	opts.SetDefaultPublishHandler(t.handleMessage)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		t.onConnectAttempt(gen, broker)
		return tlsCfg
	})
	return opts
}

// onConnect runs on the initial connection and on every reconnect
func (t *Transport) onConnect(client mqtt.Client) {
	t.mu.Lock()
	if t.client != client || t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	t.state = StateConnected
	t.reconnectAttempts = 0
	t.stats.ConnectedAt = time.Now().UTC()
	t.mu.Unlock()

	t.logger.Info().Str("client_id", t.ClientID()).Msg("MQTT connection established")

	if err := t.publishStatus("online", ""); err != nil {
		t.logger.Warn().Err(err).Msg("failed to publish online status")
	}

	for _, pattern := range DefaultTopicPatterns {
		if err := t.subscribe(client, pattern, 1); err != nil {
			t.countError()
			t.logger.Error().Err(err).Str("topic", pattern).Msg("failed to subscribe")
			continue
		}
		t.logger.Info().Str("topic", pattern).Msg("subscribed to topic")
	}
}

func (t *Transport) subscribe(client mqtt.Client, pattern string, qos byte) error {
	token := client.Subscribe(pattern, qos, t.handleMessage)
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return fmt.Errorf("subscribe to %s timed out", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", pattern, err)
	}

	granted := qos
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		if q, ok := st.Result()[pattern]; ok {
			granted = q
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var count int64
	if prev, ok := t.subscriptions[pattern]; ok {
		count = prev.MessageCount
	}
	t.subscriptions[pattern] = &Subscription{
		Pattern:      pattern,
		QoS:          granted,
		SubscribedAt: time.Now().UTC(),
		MessageCount: count,
	}
	return nil
}

func (t *Transport) onConnectionLost(client mqtt.Client, err error) {
	t.mu.Lock()
	if t.client != client || t.state != StateConnected || t.closing {
		t.mu.Unlock()
		return
	}
	t.state = StateOffline
	t.lastErr = err
	ctx := t.dispatchCtx
	t.mu.Unlock()

	t.logger.Warn().Err(err).Dur("retry_in", t.cfg.ReconnectPeriod).Msg("MQTT connection lost")
	go t.reconnectAfter(ctx, client)
}

// reconnectAfter restarts the connect retry loop one period after a
// connection loss, unless the transport moved on in the meantime.
func (t *Transport) reconnectAfter(ctx context.Context, client mqtt.Client) {
	timer := time.NewTimer(t.cfg.ReconnectPeriod)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	t.mu.Lock()
	retry := t.client == client && !t.closing &&
		(t.state == StateOffline || t.state == StateReconnecting)
	t.mu.Unlock()
	if retry {
		client.Connect()
	}
}

// onConnectAttempt runs before every connection attempt. All but the first
// attempt after Initialize count as reconnect attempts. Reaching the ceiling
// terminates the connection; later attempts are ignored.
func (t *Transport) onConnectAttempt(gen uint64, broker *url.URL) {
	t.mu.Lock()
	if t.generation != gen || t.client == nil || t.state == StateTerminated || t.closing {
		t.mu.Unlock()
		return
	}
	if t.firstAttempt {
		t.firstAttempt = false
		t.mu.Unlock()
		return
	}
	t.reconnectAttempts++
	attempts := t.reconnectAttempts
	if attempts < t.cfg.MaxReconnectAttempts {
		t.state = StateReconnecting
		t.mu.Unlock()
		t.logger.Warn().Int("attempt", attempts).Int("max_attempts", t.cfg.MaxReconnectAttempts).Stringer("broker", broker).Msg("reconnecting to MQTT broker")
		return
	}

	client := t.client
	t.state = StateTerminated
	t.lastErr = ErrMaxReconnectAttemptsExceeded
	t.mu.Unlock()

	t.logger.Error().Err(ErrMaxReconnectAttemptsExceeded).Int("attempts", attempts).Msg("terminating MQTT connection")
	// Disconnect waits for the retry loop that invoked this handler
	go client.Disconnect(0)
}

// Disconnect closes the connection. A graceful disconnect publishes a final
// offline status first and lets in-flight dispatches finish; a forceful one
// cancels them. Calling Disconnect when already disconnected is a no-op.
func (t *Transport) Disconnect(graceful bool) {
	t.mu.Lock()
	client := t.client
	if client == nil {
		t.state = StateDisconnected
		t.mu.Unlock()
		return
	}
	wasConnected := t.state == StateConnected
	cancel := t.cancelDispatch
	t.closing = true
	t.mu.Unlock()

	if graceful && wasConnected {
		if err := t.publishStatus("offline", "graceful shutdown"); err != nil {
			t.logger.Warn().Err(err).Msg("failed to publish offline status")
		}
	}

	if graceful {
		client.Disconnect(250)
		t.wg.Wait()
	} else {
		client.Disconnect(0)
		cancel()
		t.wg.Wait()
	}
	cancel()

	t.mu.Lock()
	if t.client == client {
		t.client = nil
		t.state = StateDisconnected
		t.subscriptions = make(map[string]*Subscription)
		t.reconnectAttempts = 0
	}
	t.closing = false
	t.dispatchCtx, t.cancelDispatch = context.WithCancel(context.Background())
	t.mu.Unlock()

	t.logger.Info().Bool("graceful", graceful).Msg("MQTT transport disconnected")
}

// Unsubscribe removes a topic pattern subscription
func (t *Transport) Unsubscribe(pattern string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Unsubscribe(pattern)
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return fmt.Errorf("unsubscribe from %s timed out", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", pattern, err)
	}

	t.mu.Lock()
	delete(t.subscriptions, pattern)
	t.mu.Unlock()
	return nil
}

// IsHealthy reports a connected, settled transport under the reconnect
// ceiling whose publish failure ratio is below 10%.
func (t *Transport) IsHealthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.healthyLocked()
}

func (t *Transport) healthyLocked() bool {
	if t.client == nil || t.state != StateConnected {
		return false
	}
	if t.reconnectAttempts >= t.cfg.MaxReconnectAttempts {
		return false
	}
	if t.stats.Publishes > 0 && float64(t.stats.PublishFailures)/float64(t.stats.Publishes) >= 0.1 {
		return false
	}
	return true
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) ClientID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clientID
}

// Err returns the error that ended the last connection, if any
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Subscriptions returns the subscription bookkeeping sorted by pattern
func (t *Transport) Subscriptions() []Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscriptionsLocked()
}

func (t *Transport) subscriptionsLocked() []Subscription {
	out := make([]Subscription, 0, len(t.subscriptions))
	for _, s := range t.subscriptions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Status returns a consistent snapshot for status endpoints
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{
		State:             t.state,
		ClientID:          t.clientID,
		Healthy:           t.healthyLocked(),
		ReconnectAttempts: t.reconnectAttempts,
		Subscriptions:     t.subscriptionsLocked(),
		Stats:             t.stats,
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

func (t *Transport) countError() {
	t.mu.Lock()
	t.stats.Errors++
	t.mu.Unlock()
}
