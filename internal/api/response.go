package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/services"
)

const (
	codeInvalidJSON   = "INVALID_JSON"
	codeUnauthorized  = "UNAUTHORIZED"
	codeInternal      = "INTERNAL_ERROR"
	codeMQTTDisabled  = "MQTT_DISABLED"
	maxRequestBodyLen = 1 << 20
)

type errorDetail struct {
	Code        string      `json:"code"`
	Message     string      `json:"message"`
	Details     interface{} `json:"details,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

type errorResponse struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail errorDetail) {
	detail.Timestamp = time.Now().UTC()
	writeJSON(w, status, errorResponse{Success: false, Error: detail})
}

// writeIngestError maps an ingestion failure onto its HTTP status and the
// error envelope.
func writeIngestError(w http.ResponseWriter, err error) {
	var ie *services.IngestError
	if !errors.As(err, &ie) {
		writeError(w, http.StatusInternalServerError, errorDetail{
			Code:    codeInternal,
			Message: "Internal server error",
		})
		return
	}
	writeError(w, statusFor(err), errorDetail{
		Code:        ie.Code,
		Message:     ie.Message,
		Details:     ie.Details,
		Suggestions: ie.Suggestions,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSensorDataValidation), errors.Is(err, services.ErrDeviceTypeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDeviceNotOwnedByUser):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
