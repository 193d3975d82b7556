package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/mqtt"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/services"
)

// Ingester runs the shared ingestion sequence
type Ingester interface {
	Ingest(ctx context.Context, id services.Identity, raw models.Reading) (*services.Result, error)
}

// TransportStatus reports on the MQTT transport
type TransportStatus interface {
	IsHealthy() bool
	Status() mqtt.Status
}

type Handler struct {
	ingester  Ingester
	transport TransportStatus
	logger    zerolog.Logger
}

// NewHandler creates the HTTP adapter. transport is nil when MQTT is disabled.
func NewHandler(ingester Ingester, transport TransportStatus, logger zerolog.Logger) *Handler {
	return &Handler{
		ingester:  ingester,
		transport: transport,
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

type dataStructure struct {
	Template             string `json:"template"`
	PrimaryMetric        string `json:"primaryMetric"`
	SecondaryMetricCount int    `json:"secondaryMetricCount"`
	ChartType            string `json:"chartType"`
	Category             string `json:"category"`
}

type ingestData struct {
	DeviceID       string                   `json:"deviceId"`
	DeviceName     string                   `json:"deviceName"`
	DeviceType     models.DeviceType        `json:"deviceType"`
	Location       *models.Location         `json:"location"`
	ValidatedData  models.Reading           `json:"validatedData"`
	StructuredData models.StructuredReading `json:"structuredData"`
	SensorDataID   string                   `json:"sensorDataId"`
	DataStructure  dataStructure            `json:"dataStructure"`
}

type ingestResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    ingestData `json:"data"`
}

// HandleDataIngest accepts POST /data/{username}/{deviceId}
func (h *Handler) HandleDataIngest(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	deviceID := chi.URLParam(r, "deviceId")
	log := h.logger.With().Str("username", username).Str("device_id", deviceID).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyLen))
	if err != nil {
		log.Warn().Err(err).Msg("failed to read request body")
		writeError(w, http.StatusBadRequest, errorDetail{
			Code:    codeInvalidJSON,
			Message: "Failed to read request body",
		})
		return
	}

	var raw models.Reading
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("body is not a JSON object")
		}
		log.Warn().Err(err).Msg("invalid JSON body")
		writeError(w, http.StatusBadRequest, errorDetail{
			Code:        codeInvalidJSON,
			Message:     "Request body must be a JSON object",
			Suggestions: []string{"Send the sensor reading as a JSON object with Content-Type application/json"},
		})
		return
	}

	res, err := h.ingester.Ingest(r.Context(), services.Identity{
		Transport: services.TransportHTTP,
		Username:  username,
		DeviceID:  deviceID,
		SourceIP:  sourceIP(r),
	}, raw)
	if err != nil {
		log.Warn().Err(err).Msg("sensor data rejected")
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		Success: true,
		Message: "Sensor data received successfully",
		Data: ingestData{
			DeviceID:       res.Device.ID,
			DeviceName:     res.Device.Name,
			DeviceType:     res.DeviceType,
			Location:       res.Location,
			ValidatedData:  res.Validated,
			StructuredData: res.Structured,
			SensorDataID:   res.Record.ID,
			DataStructure:  describe(res.Structured),
		},
	})
}

func describe(s models.StructuredReading) dataStructure {
	ds := dataStructure{Template: "none"}
	if s.Template != nil {
		ds.Template = string(s.DeviceType)
		ds.PrimaryMetric = s.Template.PrimaryMetric
		ds.Category = s.Template.Category
	}
	if s.Metrics != nil {
		ds.SecondaryMetricCount = len(s.Metrics.Secondary)
	}
	if s.Visualization != nil {
		ds.ChartType = s.Visualization.ChartType
	}
	return ds
}

// sourceIP expects RemoteAddr to have been rewritten by middleware.RealIP
func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type healthResponse struct {
	Status string       `json:"status"`
	MQTT   *mqttSummary `json:"mqtt,omitempty"`
}

type mqttSummary struct {
	Healthy bool       `json:"healthy"`
	State   mqtt.State `json:"state"`
}

// HandleHealth always answers 200; MQTT health is reported, not enforced
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.transport != nil {
		st := h.transport.Status()
		resp.MQTT = &mqttSummary{Healthy: st.Healthy, State: st.State}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMQTTStatus reports the transport snapshot
func (h *Handler) HandleMQTTStatus(w http.ResponseWriter, r *http.Request) {
	if h.transport == nil {
		writeError(w, http.StatusServiceUnavailable, errorDetail{
			Code:    codeMQTTDisabled,
			Message: "MQTT transport is disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.transport.Status(),
	})
}
