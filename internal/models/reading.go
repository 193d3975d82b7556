package models

import (
	"strings"
	"time"
)

// Reading is a device payload keyed by field name. Before validation it is an
// untrusted RawReading; after validation it holds coerced values and defaults.
type Reading map[string]interface{}

// timestampLayouts are the ISO-8601 forms accepted for reading timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp in any of the accepted layouts
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp returns the reading's own timestamp, if it carries a parseable one
func (r Reading) Timestamp() (time.Time, bool) {
	switch v := r["timestamp"].(type) {
	case string:
		return ParseTimestamp(v)
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// String returns a string field or "" when absent or of another type
func (r Reading) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Clone returns a shallow copy of the reading
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Metric is a single named value ready for display
type Metric struct {
	Name  string      `json:"name" bson:"name"`
	Value interface{} `json:"value" bson:"value"`
	Unit  string      `json:"unit" bson:"unit"`
}

// Metrics groups the primary metric with the secondary ones
type Metrics struct {
	Primary   Metric   `json:"primary" bson:"primary"`
	Secondary []Metric `json:"secondary" bson:"secondary"`
}

// VisualizationTemplate describes how readings of a device type are displayed
type VisualizationTemplate struct {
	PrimaryMetric    string   `json:"primaryMetric" bson:"primary_metric"`
	SecondaryMetrics []string `json:"secondaryMetrics" bson:"secondary_metrics"`
	ChartType        string   `json:"chartType" bson:"chart_type"`
	Unit             string   `json:"unit" bson:"unit"`
	Icon             string   `json:"icon" bson:"icon"`
	Color            string   `json:"color" bson:"color"`
	Category         string   `json:"category" bson:"category"`
}

// Visualization is the display metadata attached to a structured reading
type Visualization struct {
	ChartType string `json:"chartType" bson:"chart_type"`
	Color     string `json:"color" bson:"color"`
	Icon      string `json:"icon" bson:"icon"`
	Category  string `json:"category" bson:"category"`
}

// StructuredReading is the canonical, visualization-ready form of a validated reading.
// Template, Metrics and Visualization are nil only when no template applies.
type StructuredReading struct {
	DeviceType    DeviceType             `json:"deviceType" bson:"device_type"`
	Template      *VisualizationTemplate `json:"template,omitempty" bson:"template,omitempty"`
	Metrics       *Metrics               `json:"metrics,omitempty" bson:"metrics,omitempty"`
	RawData       Reading                `json:"rawData" bson:"raw_data"`
	Visualization *Visualization         `json:"visualization,omitempty" bson:"visualization,omitempty"`
	Timestamp     time.Time              `json:"timestamp" bson:"timestamp"`
}

// SensorDataRecord is one persisted, immutable reading
type SensorDataRecord struct {
	ID        string            `json:"id" bson:"_id"`
	DeviceID  string            `json:"deviceId" bson:"device_id"`
	Data      StructuredReading `json:"data" bson:"data"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time         `json:"createdAt" bson:"created_at"`
}
