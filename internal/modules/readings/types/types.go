package types

import (
	"strings"
	"time"
)

// Reading is one stored sensor data point.
type Reading struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"deviceId"`
	Humidity    float64   `json:"humidity"`
	Temperature *float64  `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReading is the input of an insert. Nil pointers mean the field was absent.
// A zero Timestamp means "now".
type NewReading struct {
	DeviceID    *string
	Humidity    *float64
	Temperature *float64
	Timestamp   time.Time
}

const MissingRequiredMessage = "deviceId and humidity are required"

// Validate reports a *ValidationError when deviceId or humidity is missing.
func (n NewReading) Validate() error {
	if n.DeviceID == nil || strings.TrimSpace(*n.DeviceID) == "" || n.Humidity == nil {
		return &ValidationError{Message: MissingRequiredMessage}
	}
	return nil
}
