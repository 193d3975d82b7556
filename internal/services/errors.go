package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/schema"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceNotOwnedByUser = errors.New("device not owned by user")
	ErrDeviceTypeInvalid    = errors.New("device type invalid")
	ErrSensorDataValidation = errors.New("sensor data validation failed")
	ErrSensorDataSave       = errors.New("sensor data save failed")
	ErrSocketEmission       = errors.New("socket emission failed")
	ErrIdentityLookup       = errors.New("identity lookup failed")
)

// Error codes reported to HTTP clients
const (
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeDeviceNotFound       = "DEVICE_NOT_FOUND"
	CodeDeviceNotOwnedByUser = "DEVICE_NOT_OWNED_BY_USER"
	CodeDeviceTypeInvalid    = "DEVICE_TYPE_INVALID"
	CodeSensorDataValidation = "SENSOR_DATA_VALIDATION_ERROR"
	CodeSensorDataSave       = "SENSOR_DATA_SAVE_ERROR"
	CodeIdentityLookup       = "IDENTITY_LOOKUP_ERROR"
)

// IngestError is an ingestion failure with enough context to build an
// actionable client response. It matches its taxonomy sentinel and the
// underlying cause with errors.Is.
type IngestError struct {
	Code        string
	Message     string
	Details     interface{}
	Suggestions []string

	kind  error
	cause error
}

func (e *IngestError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *IngestError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func userNotFound(username string, cause error) *IngestError {
	return &IngestError{
		Code:    CodeUserNotFound,
		Message: fmt.Sprintf("User '%s' not found", username),
		Details: map[string]string{"username": username},
		Suggestions: []string{
			"Verify the username in the request URL",
			"Make sure the user account exists",
		},
		kind:  ErrUserNotFound,
		cause: cause,
	}
}

func deviceNotFound(deviceID string, cause error) *IngestError {
	return &IngestError{
		Code:    CodeDeviceNotFound,
		Message: fmt.Sprintf("Device '%s' not found", deviceID),
		Details: map[string]string{"deviceId": deviceID},
		Suggestions: []string{
			"Verify the device id",
			"Register the device before sending data",
		},
		kind:  ErrDeviceNotFound,
		cause: cause,
	}
}

// lookupFailed is a store failure while resolving a user or device, as
// opposed to the record not existing.
func lookupFailed(entity, key string, cause error) *IngestError {
	return &IngestError{
		Code:    CodeIdentityLookup,
		Message: fmt.Sprintf("Failed to look up %s '%s'", entity, key),
		Details: map[string]string{entity: key},
		Suggestions: []string{
			"Retry the request later",
		},
		kind:  ErrIdentityLookup,
		cause: cause,
	}
}

func deviceNotOwned(deviceID, username string) *IngestError {
	return &IngestError{
		Code:    CodeDeviceNotOwnedByUser,
		Message: fmt.Sprintf("Device '%s' does not belong to user '%s'", deviceID, username),
		Details: map[string]string{"deviceId": deviceID, "username": username},
		Suggestions: []string{
			"Check that the device id and username in the URL match",
		},
		kind: ErrDeviceNotOwnedByUser,
	}
}

func deviceTypeInvalid(deviceType string, cause error) *IngestError {
	supported := make([]string, 0, len(models.DeviceTypes))
	for _, t := range models.DeviceTypes {
		supported = append(supported, string(t))
	}
	return &IngestError{
		Code:    CodeDeviceTypeInvalid,
		Message: fmt.Sprintf("Device type '%s' is not supported", deviceType),
		Details: map[string]interface{}{
			"deviceType":     deviceType,
			"supportedTypes": supported,
		},
		Suggestions: []string{
			"Update the device to one of the supported types: " + strings.Join(supported, ", "),
		},
		kind:  ErrDeviceTypeInvalid,
		cause: cause,
	}
}

func validationFailed(deviceType models.DeviceType, vErr *schema.ValidationError) *IngestError {
	details := map[string]interface{}{
		"deviceType": deviceType,
		"errors":     vErr.Fields,
	}
	suggestions := []string{
		"Check that all required fields are present and correctly typed",
		"Make sure numeric values are within their allowed ranges",
	}
	if s, err := schema.Lookup(deviceType); err == nil {
		required := s.RequiredFields()
		details["requiredFields"] = required
		suggestions[0] = "Check that all required fields are present: " + strings.Join(required, ", ")
	}
	if deviceType == models.Other {
		suggestions = append(suggestions,
			"Generic sensors must send sensorType and primaryMetric {name, value, unit}; only secondaryMetrics, status, batteryLevel, signalStrength, metadata, timestamp, source and deviceId may accompany them",
		)
	}
	return &IngestError{
		Code:        CodeSensorDataValidation,
		Message:     fmt.Sprintf("Invalid sensor data for device type %s", deviceType),
		Details:     details,
		Suggestions: suggestions,
		kind:        ErrSensorDataValidation,
		cause:       vErr,
	}
}

func saveFailed(deviceID string, cause error) *IngestError {
	return &IngestError{
		Code:    CodeSensorDataSave,
		Message: "Failed to save sensor data",
		Details: map[string]string{"deviceId": deviceID},
		Suggestions: []string{
			"Retry the request later",
		},
		kind:  ErrSensorDataSave,
		cause: cause,
	}
}
