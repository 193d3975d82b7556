package shaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/schema"
)

var shapedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func secondaryNames(m *models.Metrics) []string {
	names := make([]string, 0, len(m.Secondary))
	for _, s := range m.Secondary {
		names = append(names, s.Name)
	}
	return names
}

func TestShape_TemperatureReading(t *testing.T) {
	r, err := schema.Validate(models.TemperatureSensor, models.Reading{"temperature": 23.5, "humidity": 65.2})
	require.NoError(t, err)

	out := Shape(models.TemperatureSensor, r, shapedAt)

	require.NotNil(t, out.Metrics)
	assert.Equal(t, models.Metric{Name: "temperature", Value: 23.5, Unit: "°C"}, out.Metrics.Primary)
	assert.Equal(t, []models.Metric{{Name: "humidity", Value: 65.2, Unit: "%"}}, out.Metrics.Secondary)
	assert.Equal(t, shapedAt, out.Timestamp)
	assert.Equal(t, "line", out.Visualization.ChartType)
	assert.Equal(t, "environmental", out.Visualization.Category)
	assert.Equal(t, 23.5, out.RawData["temperature"])
}

func TestShape_SecondaryOnlyIncludesPresentFields(t *testing.T) {
	tests := []struct {
		deviceType models.DeviceType
		reading    models.Reading
		want       []models.Metric
	}{
		{
			models.TemperatureSensor,
			models.Reading{"temperature": 20.0, "pressure": 1013.0},
			[]models.Metric{{Name: "pressure", Value: 1013.0, Unit: "hPa"}},
		},
		{
			models.HumiditySensor,
			models.Reading{"humidity": 50.0, "dewPoint": 9.0},
			[]models.Metric{{Name: "dewPoint", Value: 9.0, Unit: "°C"}},
		},
		{
			models.MotionDetector,
			models.Reading{"motion": true, "confidence": 80.0, "duration": 3.0},
			[]models.Metric{{Name: "confidence", Value: 80.0, Unit: "%"}, {Name: "duration", Value: 3.0, Unit: "s"}},
		},
		{
			models.SmartLight,
			models.Reading{"status": "on", "colorTemperature": 2700.0},
			[]models.Metric{{Name: "colorTemperature", Value: 2700.0, Unit: "K"}},
		},
		{
			models.SmartPlug,
			models.Reading{"status": "on", "powerConsumption": 60.0, "current": 0.26},
			[]models.Metric{{Name: "current", Value: 0.26, Unit: "A"}},
		},
		{
			models.Camera,
			models.Reading{"status": "recording", "fps": 30.0, "storageUsed": 12.0},
			[]models.Metric{{Name: "fps", Value: 30.0, Unit: "fps"}, {Name: "storageUsed", Value: 12.0, Unit: "GB"}},
		},
		{
			models.EnergyMeter,
			models.Reading{"powerUsage": 1.0, "totalEnergy": 2.0, "voltage": 230.0, "current": 4.0, "cost": 0.5},
			[]models.Metric{
				{Name: "totalEnergy", Value: 2.0, Unit: "kWh"},
				{Name: "voltage", Value: 230.0, Unit: "V"},
				{Name: "current", Value: 4.0, Unit: "A"},
				{Name: "cost", Value: 0.5, Unit: "$"},
			},
		},
		{
			models.WaterMeter,
			models.Reading{"flowRate": 3.0, "totalVolume": 120.0},
			[]models.Metric{{Name: "totalVolume", Value: 120.0, Unit: "L"}},
		},
		{
			models.AirQualitySensor,
			models.Reading{"pm25": 10.0, "pm10": 15.0, "co2": 410.0, "aqi": 42.0},
			[]models.Metric{
				{Name: "pm10", Value: 15.0, Unit: "μg/m³"},
				{Name: "co2", Value: 410.0, Unit: "ppm"},
				{Name: "aqi", Value: 42.0, Unit: "AQI"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(string(tc.deviceType), func(t *testing.T) {
			out := Shape(tc.deviceType, tc.reading, shapedAt)
			require.NotNil(t, out.Metrics)
			assert.Equal(t, tc.want, out.Metrics.Secondary)

			tpl, ok := Template(tc.deviceType)
			require.True(t, ok)
			assert.Equal(t, tpl.PrimaryMetric, out.Metrics.Primary.Name)
			for _, name := range secondaryNames(out.Metrics) {
				assert.Contains(t, tpl.SecondaryMetrics, name)
				assert.Contains(t, tc.reading, name)
			}
		})
	}
}

func TestShape_SecondaryIsNeverNil(t *testing.T) {
	out := Shape(models.SmartLight, models.Reading{"status": "off"}, shapedAt)
	require.NotNil(t, out.Metrics)
	assert.NotNil(t, out.Metrics.Secondary)
	assert.Empty(t, out.Metrics.Secondary)
}

func TestShape_DeclaredUnit(t *testing.T) {
	out := Shape(models.TemperatureSensor, models.Reading{
		"temperature": 75.0,
		"unit":        "fahrenheit",
		"humidity":    40.0,
		"pressure":    1000.0,
	}, shapedAt)

	assert.Equal(t, "°F", out.Metrics.Primary.Unit)
	assert.Equal(t, []models.Metric{
		{Name: "humidity", Value: 40.0, Unit: "%"},
		{Name: "pressure", Value: 1000.0, Unit: "hPa"},
	}, out.Metrics.Secondary)
}

func TestShape_UsesReadingTimestamp(t *testing.T) {
	out := Shape(models.HumiditySensor, models.Reading{
		"humidity":  55.0,
		"timestamp": "2024-04-30T08:15:00Z",
	}, shapedAt)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC), out.Timestamp)
}

func TestShape_GenericSoilSensor(t *testing.T) {
	r, err := schema.Validate(models.Other, models.Reading{
		"sensorType": "soil",
		"primaryMetric": map[string]interface{}{
			"name": "moisture", "value": 45.2, "unit": "percent",
		},
		"secondaryMetrics": []interface{}{
			map[string]interface{}{"name": "temperature", "value": 18.0, "unit": "°C"},
		},
	})
	require.NoError(t, err)

	out := Shape(models.Other, r, shapedAt)

	require.NotNil(t, out.Template)
	assert.Equal(t, "gauge", out.Template.ChartType)
	assert.Equal(t, "#8B4513", out.Template.Color)
	assert.Equal(t, "leaf", out.Template.Icon)
	assert.Equal(t, "moisture", out.Template.PrimaryMetric)
	assert.Equal(t, "percent", out.Template.Unit)
	assert.Equal(t, []string{"temperature"}, out.Template.SecondaryMetrics)

	assert.Equal(t, models.Metric{Name: "moisture", Value: 45.2, Unit: "percent"}, out.Metrics.Primary)
	assert.Equal(t, []models.Metric{{Name: "temperature", Value: 18.0, Unit: "°C"}}, out.Metrics.Secondary)
	assert.Equal(t, "gauge", out.Visualization.ChartType)
}

func TestShape_GenericLookupIsCaseInsensitiveWithFallback(t *testing.T) {
	reading := func(sensorType string) models.Reading {
		return models.Reading{
			"sensorType":    sensorType,
			"primaryMetric": map[string]interface{}{"name": "x", "value": 1.0, "unit": "u"},
		}
	}

	upper := Shape(models.Other, reading("SOIL"), shapedAt)
	assert.Equal(t, "#8B4513", upper.Visualization.Color)

	unknown := Shape(models.Other, reading("tachyon"), shapedAt)
	assert.Equal(t, models.Visualization{
		ChartType: "line",
		Color:     "#95a5a6",
		Icon:      "settings",
		Category:  "generic",
	}, *unknown.Visualization)
	assert.Empty(t, unknown.Metrics.Secondary)
}

func TestShape_UnknownTypeReturnsRawData(t *testing.T) {
	raw := models.Reading{"anything": 1.0}
	out := Shape(models.DeviceType("TOASTER"), raw, shapedAt)

	assert.Nil(t, out.Template)
	assert.Nil(t, out.Metrics)
	assert.Nil(t, out.Visualization)
	assert.Equal(t, raw, out.RawData)
	assert.Equal(t, shapedAt, out.Timestamp)
}

func TestTemplate_ReturnsCopy(t *testing.T) {
	tpl, ok := Template(models.EnergyMeter)
	require.True(t, ok)
	tpl.SecondaryMetrics[0] = "mutated"

	again, _ := Template(models.EnergyMeter)
	assert.Equal(t, "totalEnergy", again.SecondaryMetrics[0])

	_, ok = Template(models.Other)
	assert.False(t, ok)
}
