package schema

import (
	"fmt"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// Schema is the validation descriptor for one device type.
// Strict schemas reject any field not declared in Fields.
type Schema struct {
	Type   models.DeviceType
	Fields []Field
	Strict bool
}

// common fields accepted by every schema
func common(fields ...Field) []Field {
	return append(fields,
		timestamp("timestamp"),
		str("source"),
		str("deviceId"),
	)
}

var (
	temperatureSchema = &Schema{
		Type: models.TemperatureSensor,
		Fields: common(
			number("temperature").Between(-273.15, 1000).Required(),
			str("unit").OneOf("celsius", "fahrenheit", "kelvin").Default("celsius"),
			number("humidity").Between(0, 100),
			number("pressure").Min(0),
		),
	}

	humiditySchema = &Schema{
		Type: models.HumiditySensor,
		Fields: common(
			number("humidity").Between(0, 100).Required(),
			str("unit").Default("percent"),
			number("temperature").Between(-50, 80),
			number("dewPoint"),
		),
	}

	motionSchema = &Schema{
		Type: models.MotionDetector,
		Fields: common(
			binary("motion").Required(),
			number("confidence").Between(0, 100),
			number("duration").Min(0),
			number("sensitivity").Between(1, 10),
			str("zone"),
		),
	}

	smartLightSchema = &Schema{
		Type: models.SmartLight,
		Fields: common(
			str("status").OneOf("on", "off").Required(),
			number("brightness").Between(0, 100),
			object("color",
				number("r").Between(0, 255).Required(),
				number("g").Between(0, 255).Required(),
				number("b").Between(0, 255).Required(),
			),
			number("colorTemperature").Between(1000, 10000),
			number("powerConsumption").Min(0),
			number("dimLevel").Between(0, 100),
		),
	}

	smartPlugSchema = &Schema{
		Type: models.SmartPlug,
		Fields: common(
			str("status").OneOf("on", "off").Required(),
			number("powerConsumption").Min(0).Required(),
			number("voltage").Between(0, 300),
			number("current").Min(0),
			number("totalEnergyUsed").Min(0),
			object("schedule",
				boolean("enabled"),
				str("onTime"),
				str("offTime"),
			),
		),
	}

	cameraSchema = &Schema{
		Type: models.Camera,
		Fields: common(
			str("status").OneOf("recording", "idle", "offline").Required(),
			str("resolution"),
			number("fps").Between(1, 60),
			boolean("motionDetected"),
			boolean("nightVision"),
			number("storageUsed").Min(0),
			number("batteryLevel").Between(0, 100),
			number("recordingDuration").Min(0),
		),
	}

	energyMeterSchema = &Schema{
		Type: models.EnergyMeter,
		Fields: common(
			number("powerUsage").Min(0).Required(),
			number("totalEnergy").Min(0).Required(),
			number("voltage").Between(0, 300).Required(),
			number("current").Min(0).Required(),
			number("frequency").Between(45, 65),
			number("powerFactor").Between(0, 1),
			number("cost").Min(0),
			number("peakDemand").Min(0),
		),
	}

	waterMeterSchema = &Schema{
		Type: models.WaterMeter,
		Fields: common(
			number("flowRate").Min(0).Required(),
			number("totalVolume").Min(0).Required(),
			number("pressure").Min(0),
			number("temperature"),
			object("quality",
				number("ph").Between(0, 14),
				number("turbidity").Min(0),
				number("tds").Min(0),
			),
			boolean("leakDetected"),
		),
	}

	airQualitySchema = &Schema{
		Type: models.AirQualitySensor,
		Fields: common(
			number("pm25").Min(0).Required(),
			number("pm10").Min(0).Required(),
			number("co2").Between(0, 5000).Required(),
			number("humidity").Between(0, 100),
			number("temperature"),
			number("voc").Min(0),
			number("aqi").Between(0, 500),
			number("co").Min(0),
			number("no2").Min(0),
			number("o3").Min(0),
		),
	}

	genericSchema = &Schema{
		Type:   models.Other,
		Strict: true,
		Fields: common(
			str("sensorType").Required(),
			object("primaryMetric",
				str("name").Required(),
				number("value").Required(),
				str("unit").Required(),
				number("min"),
				number("max"),
			).Required(),
			array("secondaryMetrics", object("",
				str("name").Required(),
				number("value").Required(),
				str("unit"),
			)),
			str("status").OneOf("active", "inactive", "error", "calibrating"),
			number("batteryLevel").Between(0, 100),
			number("signalStrength").Between(0, 100),
			object("metadata",
				str("location"),
				str("notes"),
				timestamp("calibrationDate"),
				str("firmware"),
			),
		),
	}
)

// Lookup returns the schema registered for a device type
func Lookup(t models.DeviceType) (*Schema, error) {
	switch t {
	case models.TemperatureSensor:
		return temperatureSchema, nil
	case models.HumiditySensor:
		return humiditySchema, nil
	case models.MotionDetector:
		return motionSchema, nil
	case models.SmartLight:
		return smartLightSchema, nil
	case models.SmartPlug:
		return smartPlugSchema, nil
	case models.Camera:
		return cameraSchema, nil
	case models.EnergyMeter:
		return energyMeterSchema, nil
	case models.WaterMeter:
		return waterMeterSchema, nil
	case models.AirQualitySensor:
		return airQualitySchema, nil
	case models.Other:
		return genericSchema, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDeviceType, t)
}

// RequiredFields lists the required top-level field names of a schema
func (s *Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.required {
			names = append(names, f.name)
		}
	}
	return names
}
