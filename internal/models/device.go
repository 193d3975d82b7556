package models

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType identifies which validation schema and visualization template apply to a device
type DeviceType string

const (
	TemperatureSensor DeviceType = "TEMPERATURE_SENSOR"
	HumiditySensor    DeviceType = "HUMIDITY_SENSOR"
	MotionDetector    DeviceType = "MOTION_DETECTOR"
	SmartLight        DeviceType = "SMART_LIGHT"
	SmartPlug         DeviceType = "SMART_PLUG"
	Camera            DeviceType = "CAMERA"
	EnergyMeter       DeviceType = "ENERGY_METER"
	WaterMeter        DeviceType = "WATER_METER"
	AirQualitySensor  DeviceType = "AIR_QUALITY_SENSOR"
	Other             DeviceType = "OTHER"
)

// DeviceTypes lists every supported device type in declaration order
var DeviceTypes = []DeviceType{
	TemperatureSensor,
	HumiditySensor,
	MotionDetector,
	SmartLight,
	SmartPlug,
	Camera,
	EnergyMeter,
	WaterMeter,
	AirQualitySensor,
	Other,
}

// Valid reports whether t is one of the ten known device types
func (t DeviceType) Valid() bool {
	switch t {
	case TemperatureSensor, HumiditySensor, MotionDetector, SmartLight, SmartPlug,
		Camera, EnergyMeter, WaterMeter, AirQualitySensor, Other:
		return true
	}
	return false
}

// ParseDeviceType converts a stored device type string into a DeviceType
func ParseDeviceType(s string) (DeviceType, error) {
	t := DeviceType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown device type %q", s)
	}
	return t, nil
}

// DeviceStatus is the liveness state of a device
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "ONLINE"
	StatusOffline DeviceStatus = "OFFLINE"
)

// User owns devices
type User struct {
	ID       string `json:"id" bson:"_id"`
	Username string `json:"username" bson:"username"`
	Email    string `json:"email,omitempty" bson:"email,omitempty"`
}

// Location is a resolved geographic position
type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	City      string  `json:"city,omitempty" bson:"city,omitempty"`
	Country   string  `json:"country,omitempty" bson:"country,omitempty"`
	Address   string  `json:"address,omitempty" bson:"address,omitempty"`
}

// Device represents an IoT device in the system
type Device struct {
	ID                string       `json:"id" bson:"_id"`
	UserID            string       `json:"userId" bson:"user_id"`
	Name              string       `json:"name" bson:"name"`
	Type              string       `json:"type" bson:"type"`
	Status            DeviceStatus `json:"status" bson:"status"`
	LastSeen          *time.Time   `json:"lastSeen,omitempty" bson:"last_seen,omitempty"`
	IPAddress         string       `json:"ipAddress,omitempty" bson:"ip_address,omitempty"`
	Location          *Location    `json:"location,omitempty" bson:"location,omitempty"`
	LastKnownLocation *Location    `json:"lastKnownLocation,omitempty" bson:"last_known_location,omitempty"`
	UpdatedAt         time.Time    `json:"updatedAt" bson:"updated_at"`
}

// DevicePatch is a partial update of a device's liveness and location fields.
// Nil fields are left untouched.
type DevicePatch struct {
	Status            *DeviceStatus
	LastSeen          *time.Time
	IPAddress         *string
	Location          *Location
	LastKnownLocation *Location
}

// Apply writes the non-nil patch fields onto d
func (p DevicePatch) Apply(d *Device) {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		d.LastSeen = &t
	}
	if p.IPAddress != nil {
		d.IPAddress = *p.IPAddress
	}
	if p.Location != nil {
		loc := *p.Location
		d.Location = &loc
	}
	if p.LastKnownLocation != nil {
		loc := *p.LastKnownLocation
		d.LastKnownLocation = &loc
	}
}
