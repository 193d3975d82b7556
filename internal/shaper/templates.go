package shaper

import (
	"strings"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

var templates = map[models.DeviceType]models.VisualizationTemplate{
	models.TemperatureSensor: {
		PrimaryMetric:    "temperature",
		SecondaryMetrics: []string{"humidity", "pressure"},
		ChartType:        "line",
		Unit:             "°C",
		Icon:             "thermometer",
		Color:            "#e74c3c",
		Category:         "environmental",
	},
	models.HumiditySensor: {
		PrimaryMetric:    "humidity",
		SecondaryMetrics: []string{"temperature", "dewPoint"},
		ChartType:        "area",
		Unit:             "%",
		Icon:             "droplet",
		Color:            "#3498db",
		Category:         "environmental",
	},
	models.MotionDetector: {
		PrimaryMetric:    "motion",
		SecondaryMetrics: []string{"confidence", "duration", "sensitivity"},
		ChartType:        "timeline",
		Unit:             "",
		Icon:             "activity",
		Color:            "#f39c12",
		Category:         "security",
	},
	models.SmartLight: {
		PrimaryMetric:    "status",
		SecondaryMetrics: []string{"brightness", "colorTemperature", "powerConsumption", "dimLevel"},
		ChartType:        "status",
		Unit:             "",
		Icon:             "lightbulb",
		Color:            "#f1c40f",
		Category:         "lighting",
	},
	models.SmartPlug: {
		PrimaryMetric:    "powerConsumption",
		SecondaryMetrics: []string{"voltage", "current", "totalEnergyUsed"},
		ChartType:        "line",
		Unit:             "W",
		Icon:             "plug",
		Color:            "#9b59b6",
		Category:         "energy",
	},
	models.Camera: {
		PrimaryMetric:    "status",
		SecondaryMetrics: []string{"fps", "batteryLevel", "storageUsed", "recordingDuration"},
		ChartType:        "status",
		Unit:             "",
		Icon:             "camera",
		Color:            "#34495e",
		Category:         "security",
	},
	models.EnergyMeter: {
		PrimaryMetric:    "powerUsage",
		SecondaryMetrics: []string{"totalEnergy", "voltage", "current", "frequency", "powerFactor", "cost", "peakDemand"},
		ChartType:        "line",
		Unit:             "W",
		Icon:             "zap",
		Color:            "#27ae60",
		Category:         "energy",
	},
	models.WaterMeter: {
		PrimaryMetric:    "flowRate",
		SecondaryMetrics: []string{"totalVolume", "pressure", "temperature"},
		ChartType:        "area",
		Unit:             "L/min",
		Icon:             "droplets",
		Color:            "#2980b9",
		Category:         "utilities",
	},
	models.AirQualitySensor: {
		PrimaryMetric:    "pm25",
		SecondaryMetrics: []string{"pm10", "co2", "aqi", "voc", "humidity", "temperature"},
		ChartType:        "bar",
		Unit:             "μg/m³",
		Icon:             "wind",
		Color:            "#16a085",
		Category:         "environmental",
	},
}

// fieldUnits resolves display units for metric fields. pressure is hPa everywhere.
var fieldUnits = map[string]string{
	"temperature":       "°C",
	"humidity":          "%",
	"pressure":          "hPa",
	"dewPoint":          "°C",
	"confidence":        "%",
	"duration":          "s",
	"sensitivity":       "",
	"brightness":        "%",
	"colorTemperature":  "K",
	"powerConsumption":  "W",
	"dimLevel":          "%",
	"voltage":           "V",
	"current":           "A",
	"totalEnergyUsed":   "kWh",
	"fps":               "fps",
	"batteryLevel":      "%",
	"storageUsed":       "GB",
	"recordingDuration": "s",
	"powerUsage":        "W",
	"totalEnergy":       "kWh",
	"frequency":         "Hz",
	"powerFactor":       "",
	"cost":              "$",
	"peakDemand":        "W",
	"flowRate":          "L/min",
	"totalVolume":       "L",
	"pm25":              "μg/m³",
	"pm10":              "μg/m³",
	"co2":               "ppm",
	"aqi":               "AQI",
	"voc":               "ppb",
	"co":                "ppm",
	"no2":               "ppb",
	"o3":                "ppb",
}

// declaredUnits maps the unit names devices declare to a display symbol and
// the quantity they measure.
var declaredUnits = map[string]struct{ symbol, quantity string }{
	"celsius":    {"°C", "temperature"},
	"fahrenheit": {"°F", "temperature"},
	"kelvin":     {"K", "temperature"},
	"percent":    {"%", "humidity"},
}

var fieldQuantities = map[string]string{
	"temperature": "temperature",
	"dewPoint":    "temperature",
	"humidity":    "humidity",
}

// lookupEntry is one row of an ordered sensorType lookup table
type lookupEntry struct {
	key   string
	value string
}

// lookupTable is an ordered key->value table with an explicit fallback
type lookupTable struct {
	entries  []lookupEntry
	fallback string
}

func (t lookupTable) get(sensorType string) string {
	key := strings.ToLower(strings.TrimSpace(sensorType))
	for _, e := range t.entries {
		if e.key == key {
			return e.value
		}
	}
	return t.fallback
}

var genericChartTypes = lookupTable{
	entries: []lookupEntry{
		{"temperature", "line"},
		{"humidity", "area"},
		{"pressure", "line"},
		{"light", "bar"},
		{"sound", "bar"},
		{"soil", "gauge"},
		{"ph", "gauge"},
		{"gas", "line"},
		{"vibration", "line"},
		{"distance", "bar"},
		{"flow", "area"},
		{"weight", "bar"},
		{"radiation", "line"},
		{"uv", "gauge"},
		{"wind", "line"},
		{"rain", "bar"},
	},
	fallback: "line",
}

var genericColors = lookupTable{
	entries: []lookupEntry{
		{"temperature", "#e74c3c"},
		{"humidity", "#3498db"},
		{"pressure", "#2ecc71"},
		{"light", "#f1c40f"},
		{"sound", "#9b59b6"},
		{"soil", "#8B4513"},
		{"ph", "#1abc9c"},
		{"gas", "#e67e22"},
		{"vibration", "#c0392b"},
		{"distance", "#34495e"},
		{"flow", "#2980b9"},
		{"weight", "#7f8c8d"},
		{"radiation", "#d35400"},
		{"uv", "#8e44ad"},
		{"wind", "#16a085"},
		{"rain", "#2c3e50"},
	},
	fallback: "#95a5a6",
}

var genericIcons = lookupTable{
	entries: []lookupEntry{
		{"temperature", "thermometer"},
		{"humidity", "droplet"},
		{"pressure", "gauge"},
		{"light", "sun"},
		{"sound", "volume-2"},
		{"soil", "leaf"},
		{"ph", "flask"},
		{"gas", "cloud"},
		{"vibration", "activity"},
		{"distance", "ruler"},
		{"flow", "droplets"},
		{"weight", "scale"},
		{"radiation", "alert-triangle"},
		{"uv", "sun"},
		{"wind", "wind"},
		{"rain", "cloud-rain"},
	},
	fallback: "settings",
}

const genericCategory = "generic"

// Template returns the static visualization template for a fixed device type.
// OTHER has no static template; see GenericTemplate.
func Template(t models.DeviceType) (models.VisualizationTemplate, bool) {
	tpl, ok := templates[t]
	if !ok {
		return models.VisualizationTemplate{}, false
	}
	tpl.SecondaryMetrics = append([]string(nil), tpl.SecondaryMetrics...)
	return tpl, true
}

// GenericTemplate builds the template for an OTHER reading from its sensorType
// and declared primary metric.
func GenericTemplate(sensorType string, primary models.Metric, secondary []models.Metric) models.VisualizationTemplate {
	names := make([]string, 0, len(secondary))
	for _, m := range secondary {
		names = append(names, m.Name)
	}
	return models.VisualizationTemplate{
		PrimaryMetric:    primary.Name,
		SecondaryMetrics: names,
		ChartType:        genericChartTypes.get(sensorType),
		Unit:             primary.Unit,
		Icon:             genericIcons.get(sensorType),
		Color:            genericColors.get(sensorType),
		Category:         genericCategory,
	}
}

// resolveUnit picks the display unit for a field. The reading's declared unit
// wins when it measures the same quantity as the field.
func resolveUnit(field, declared, fallback string) string {
	if d, ok := declaredUnits[strings.ToLower(declared)]; ok {
		if q, ok := fieldQuantities[field]; ok && q == d.quantity {
			return d.symbol
		}
	}
	if u, ok := fieldUnits[field]; ok {
		return u
	}
	return fallback
}
