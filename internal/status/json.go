package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	State         string        `json:"state"`
	Ticks         uint32        `json:"ticks"`
	PowerOn       bool          `json:"power_on"`
	MotorOn       bool          `json:"motor_on"`
	Schedule      *ScheduleJSON `json:"schedule,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastDispense  string        `json:"last_dispense,omitempty"`
	LastOverride  string        `json:"last_override,omitempty"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Config        ConfigJSON    `json:"config"`
}

// ScheduleJSON is the most recent evaluate-cycle outcome.
type ScheduleJSON struct {
	Dial             uint8  `json:"dial"`
	ThresholdSeconds uint32 `json:"threshold_seconds"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Evaluations int `json:"evaluations"`
	Dispenses   int `json:"dispenses"`
	Overrides   int `json:"overrides"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	BaseIntervalSec uint32 `json:"base_interval_sec"`
	BlockSec        uint32 `json:"block_sec"`
	PollTicks       uint32 `json:"poll_ticks"`
	TickMs          int64  `json:"tick_ms"`
	DispenseMs      int64  `json:"dispense_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	Debug           bool   `json:"debug"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Ticks:         snap.Ticks,
		PowerOn:       snap.PowerOn,
		MotorOn:       snap.MotorOn,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		LastDispense:  formatTime(snap.LastDispense),
		LastOverride:  formatTime(snap.LastOverride),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Evaluations: snap.Counts.Evaluations,
			Dispenses:   snap.Counts.Dispenses,
			Overrides:   snap.Counts.Overrides,
		},
		Config: ConfigJSON{
			BaseIntervalSec: snap.Config.BaseIntervalSec,
			BlockSec:        snap.Config.BlockSec,
			PollTicks:       snap.Config.PollTicks,
			TickMs:          snap.Config.TickMs,
			DispenseMs:      snap.Config.DispenseMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			Debug:           snap.Config.Debug,
		},
	}
	if snap.Evaluated {
		inner.Schedule = &ScheduleJSON{
			Dial:             snap.Decision.Speed,
			ThresholdSeconds: snap.Decision.Threshold,
			RemainingSeconds: snap.Decision.Remaining,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
