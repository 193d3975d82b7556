package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// ErrUnsupportedDeviceType is returned when no schema exists for a device type
var ErrUnsupportedDeviceType = errors.New("unsupported device type")

// FieldError describes one offending field
type FieldError struct {
	Path       string      `json:"field"`
	Message    string      `json:"message"`
	Value      interface{} `json:"value,omitempty"`
	Constraint string      `json:"constraint,omitempty"`
}

// ValidationError carries every field-level failure found in a payload
type ValidationError struct {
	DeviceType models.DeviceType
	Fields     []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.DeviceType, strings.Join(msgs, "; "))
}

// Paths returns the offending field paths in report order
func (e *ValidationError) Paths() []string {
	paths := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		paths = append(paths, f.Path)
	}
	return paths
}
