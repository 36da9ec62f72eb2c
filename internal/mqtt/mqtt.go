// Package mqtt publishes feeder events with abstraction for testing.
// Publishing is transmit-only: the controller never subscribes.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/feeder/internal/logic"
)

// TopicEvents is the MQTT topic for dispense and override events.
const TopicEvents = "feeder/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "feeder/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a feeder event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Feeder FeederPayload `json:"feeder"`
}

// FeederPayload contains the event details.
type FeederPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Ticks      uint32 `json:"ticks"`
	Dial       uint8  `json:"dial"`
	Threshold  uint32 `json:"threshold_ticks"`
	DurationMs int64  `json:"duration_ms"`
}

// FormatPayload creates the JSON payload for a feeder event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Feeder: FeederPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Type),
			Ticks:      event.Ticks,
			Dial:       event.Speed,
			Threshold:  event.Threshold,
			DurationMs: event.Duration.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the payload for system events that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard accepts and drops every event. Used when no broker is configured.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(logic.Event) error { return nil }

// PublishSystem drops the event.
func (Discard) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
