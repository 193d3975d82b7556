package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/services"
)

const maxLoggedPayload = 200

// StatusHandler handles messages on iot/{deviceName}/{deviceId}/status
type StatusHandler interface {
	HandleStatus(ctx context.Context, topic TopicInfo, payload map[string]interface{}) error
}

// CommandHandler handles messages on iot/{deviceName}/{deviceId}/commands
type CommandHandler interface {
	HandleCommand(ctx context.Context, topic TopicInfo, payload map[string]interface{}) error
}

type defaultStatusHandler struct{ t *Transport }

func (h *defaultStatusHandler) HandleStatus(_ context.Context, topic TopicInfo, _ map[string]interface{}) error {
	h.t.mu.Lock()
	h.t.stats.StatusMessages++
	h.t.mu.Unlock()
	return fmt.Errorf("%w: device status for %s", ErrNotSpecified, topic.DeviceID)
}

type defaultCommandHandler struct{ t *Transport }

func (h *defaultCommandHandler) HandleCommand(_ context.Context, topic TopicInfo, _ map[string]interface{}) error {
	h.t.mu.Lock()
	h.t.stats.CommandMessages++
	h.t.mu.Unlock()
	return fmt.Errorf("%w: command acknowledgment for %s", ErrNotSpecified, topic.DeviceID)
}

// handleMessage is the paho MessageHandler for every subscription. It does
// the bookkeeping and hands the message to its own goroutine.
func (t *Transport) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	// Paho may reuse the buffer
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		t.logger.Warn().Str("topic", topic).Msg("shutting down, MQTT message dropped")
		return
	}
	t.stats.MessagesReceived++
	t.stats.LastMessageAt = time.Now().UTC()
	for _, s := range t.subscriptionsLocked() {
		if MatchTopic(s.Pattern, topic) {
			t.subscriptions[s.Pattern].MessageCount++
			break
		}
	}
	ctx := t.dispatchCtx
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		if err := t.route(ctx, topic, payload); err != nil {
			t.logger.Warn().Err(err).Str("topic", topic).Str("payload", snippet(payload)).Msg("MQTT message dropped")
		}
	}()
}

// route parses and dispatches one message by the kind encoded in its topic
func (t *Transport) route(ctx context.Context, topic string, payload []byte) error {
	info, err := ParseTopic(topic)
	if err != nil {
		t.countError()
		return err
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		t.countError()
		if err == nil {
			err = errors.New("payload is not a JSON object")
		}
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	switch info.Kind {
	case KindData:
		return t.handleData(ctx, info, body)
	case KindStatus:
		return t.handleHook(t.statusHandler.HandleStatus(ctx, info, body), info)
	case KindCommands:
		return t.handleHook(t.commandHandler.HandleCommand(ctx, info, body), info)
	default:
		t.logger.Info().Str("topic", topic).Msg("unhandled MQTT topic")
		return nil
	}
}

func (t *Transport) handleData(ctx context.Context, info TopicInfo, body map[string]interface{}) error {
	if t.ingester == nil {
		return errors.New("no ingester configured")
	}
	res, err := t.ingester.Ingest(ctx, services.Identity{
		Transport:  services.TransportMQTT,
		DeviceName: info.DeviceName,
		DeviceID:   info.DeviceID,
	}, models.Reading(body))
	if err != nil {
		t.countError()
		return fmt.Errorf("ingest reading for device %s: %w", info.DeviceID, err)
	}

	t.mu.Lock()
	t.stats.MessagesProcessed++
	t.mu.Unlock()
	t.logger.Debug().
		Str("device_id", info.DeviceID).
		Str("sensor_data_id", res.Record.ID).
		Msg("MQTT sensor data processed")
	return nil
}

func (t *Transport) handleHook(err error, info TopicInfo) error {
	if errors.Is(err, ErrNotSpecified) {
		t.logger.Info().Str("topic", info.Topic).Str("device_id", info.DeviceID).Msg("not yet specified")
		return nil
	}
	if err != nil {
		t.countError()
	}
	return err
}

func snippet(payload []byte) string {
	if len(payload) > maxLoggedPayload {
		return string(payload[:maxLoggedPayload]) + "..."
	}
	return string(payload)
}
