package mqtt

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 10 * time.Second

// StatusMessage is the retained server status published on StatusTopic
type StatusMessage struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ClientID  string    `json:"clientId"`
	PID       int       `json:"pid,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func statusPayload(status, reason, clientID string) []byte {
	msg := StatusMessage{
		Status:    status,
		Timestamp: time.Now().UTC(),
		ClientID:  clientID,
		PID:       os.Getpid(),
		Reason:    reason,
	}
	b, _ := json.Marshal(msg)
	return b
}

func (t *Transport) publishStatus(status, reason string) error {
	return t.Publish(StatusTopic, statusPayload(status, reason, t.ClientID()), 1, true)
}

// Publish sends payload to topic. []byte and string payloads are sent as
// is; anything else is encoded as JSON.
func (t *Transport) Publish(topic string, payload interface{}, qos byte, retained bool) error {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
		}
		body = b
	}

	t.mu.Lock()
	client := t.client
	t.stats.Publishes++
	t.mu.Unlock()

	err := t.publish(client, topic, body, qos, retained)
	if err != nil {
		t.mu.Lock()
		t.stats.PublishFailures++
		t.mu.Unlock()
		return err
	}
	t.logger.Debug().Str("topic", topic).Int("bytes", len(body)).Msg("published message")
	return nil
}

func (t *Transport) publish(client mqtt.Client, topic string, body []byte, qos byte, retained bool) error {
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := client.Publish(topic, qos, retained, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
