package telemetry

import (
	"errors"
	"strings"
	"time"
)

// Telemetry is a reading published by a device over MQTT.
type Telemetry struct {
	DeviceID    string    `json:"deviceId,omitempty"`
	Humidity    *float64  `json:"humidity"`
	Temperature *float64  `json:"temperature,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
}

// DeviceIDFromTopic returns the segment following "devices/" in topic, or ""
// when the topic has no such segment.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "devices" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

// Resolve fills DeviceID from topic when the payload did not carry one.
func (t *Telemetry) Resolve(topic string) {
	if strings.TrimSpace(t.DeviceID) == "" {
		t.DeviceID = DeviceIDFromTopic(topic)
	}
}

func (t Telemetry) Validate() error {
	if strings.TrimSpace(t.DeviceID) == "" {
		return errors.New("deviceId is required")
	}
	if t.Humidity == nil {
		return errors.New("humidity is required")
	}
	return nil
}
