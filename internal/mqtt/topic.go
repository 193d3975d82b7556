package mqtt

import (
	"fmt"
	"strings"
)

const (
	// StatusTopic carries the server's retained online/offline status
	StatusTopic = "iot/server/status"

	DataTopicPattern     = "iot/+/+/data"
	StatusTopicPattern   = "iot/+/+/status"
	CommandsTopicPattern = "iot/+/+/commands"
)

// DefaultTopicPatterns are subscribed on every (re)connect
var DefaultTopicPatterns = []string{
	DataTopicPattern,
	StatusTopicPattern,
	CommandsTopicPattern,
}

// Topic kinds, taken from the last topic segment
const (
	KindData     = "data"
	KindStatus   = "status"
	KindCommands = "commands"
)

// MatchTopic reports whether topic matches a subscription pattern. '+'
// matches exactly one segment and '#' matches the remaining segments; '#' is
// only valid as the final pattern segment.
func MatchTopic(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")

	for i, seg := range p {
		if seg == "#" {
			return i == len(p)-1
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

// TopicInfo is what a device topic iot/{deviceName}/{deviceId}/{kind} encodes
type TopicInfo struct {
	Topic      string
	DeviceName string
	DeviceID   string
	Kind       string
}

// ParseTopic splits a device topic positionally. Topics with fewer than four
// segments are rejected.
func ParseTopic(topic string) (TopicInfo, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return TopicInfo{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidTopicFormat, topic, len(parts))
	}
	return TopicInfo{
		Topic:      topic,
		DeviceName: parts[1],
		DeviceID:   parts[2],
		Kind:       parts[len(parts)-1],
	}, nil
}
