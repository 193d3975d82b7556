package mqtt

import (
	"errors"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a paho token the fake completes itself
type fakeToken struct {
	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	tok := pendingToken()
	tok.complete(err)
	return tok
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements paho's Client and drives the handlers registered in
// its options the way a broker connection would. While brokerDown is set,
// Connect behaves like paho's connect retry loop: the token stays pending and
// each further attempt is driven by attemptReconnect.
type fakeClient struct {
	mu          sync.Mutex
	opts        *mqtt.ClientOptions
	connected   bool
	brokerDown  bool
	pending     *fakeToken
	publishErr  error
	published   []publishedMessage
	subs        map[string]mqtt.MessageHandler
	connects    int
	disconnects int
}

func newFakeClient(opts *mqtt.ClientOptions) *fakeClient {
	return &fakeClient{opts: opts, subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	f.connects++
	down := f.brokerDown
	f.mu.Unlock()

	f.connectAttempt()
	if down {
		tok := pendingToken()
		f.mu.Lock()
		f.pending = tok
		f.mu.Unlock()
		return tok
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return completedToken(nil)
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	if pending != nil {
		pending.complete(errors.New("connection aborted"))
	}
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return completedToken(f.publishErr)
	}
	body, _ := payload.([]byte)
	f.published = append(f.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: body})
	return completedToken(nil)
}

func (f *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = callback
	return completedToken(nil)
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return completedToken(nil)
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.subs, topic)
	}
	return completedToken(nil)
}

func (f *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// deliver routes an inbound message to the first matching subscription, or
// to the default publish handler.
func (f *fakeClient) deliver(topic string, payload string) {
	f.mu.Lock()
	patterns := make([]string, 0, len(f.subs))
	for p := range f.subs {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	var handler mqtt.MessageHandler
	for _, p := range patterns {
		if MatchTopic(p, topic) {
			handler = f.subs[p]
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		handler = f.opts.DefaultPublishHandler
	}
	handler(f, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func (f *fakeClient) loseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.opts.OnConnectionLost(f, err)
}

func (f *fakeClient) connectAttempt() {
	if f.opts.OnConnectAttempt != nil {
		f.opts.OnConnectAttempt(f.opts.Servers[0], f.opts.TLSConfig)
	}
}

// attemptReconnect is one failed pass of the connect retry loop
func (f *fakeClient) attemptReconnect() {
	f.connectAttempt()
}

// reconnect is a retry attempt the broker accepts
func (f *fakeClient) reconnect() {
	f.connectAttempt()
	f.mu.Lock()
	f.connected = true
	f.brokerDown = false
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	f.opts.OnConnect(f)
	if pending != nil {
		pending.complete(nil)
	}
}

func (f *fakeClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeClient) publishedTo(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeClient) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeClient) setPublishErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}
