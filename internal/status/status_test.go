package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feeder/internal/logic"
)

func testConfig() Config {
	return Config{
		BaseIntervalSec: 3600,
		BlockSec:        2400,
		PollTicks:       10,
		TickMs:          1000,
		DispenseMs:      12000,
		Broker:          "tcp://localhost:1883",
		HTTPAddr:        ":8080",
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, logic.StateBootInit, snap.State)
	assert.Equal(t, uint32(3600), snap.Config.BaseIntervalSec)
	assert.False(t, snap.Evaluated)
	assert.False(t, snap.MQTTConnected)
}

func TestStateAndOutputs(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetState(logic.StateSleep, 42)
	tr.SetOutputs(true, false)

	snap := tr.Snapshot()
	assert.Equal(t, logic.StateSleep, snap.State)
	assert.Equal(t, uint32(42), snap.Ticks)
	assert.True(t, snap.PowerOn)
	assert.False(t, snap.MotorOn)
}

func TestRecordDecisionAndEvents(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)

	tr.RecordDecision(logic.Decision{Ticks: 3600, Speed: 0, Threshold: 3600, Dispense: true})
	tr.RecordEvent(logic.Event{Type: logic.EventDispense, Timestamp: at})
	tr.RecordEvent(logic.Event{Type: logic.EventOverride, Timestamp: at.Add(time.Minute)})
	tr.RecordEvent(logic.Event{Type: logic.EventOverride, Timestamp: at.Add(2 * time.Minute)})

	snap := tr.Snapshot()
	assert.True(t, snap.Evaluated)
	assert.Equal(t, logic.EventCounts{Evaluations: 1, Dispenses: 1, Overrides: 2}, snap.Counts)
	assert.Equal(t, at, snap.LastDispense)
	assert.Equal(t, at.Add(2*time.Minute), snap.LastOverride)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetState(logic.StateSleep, 1)
	snap := tr.Snapshot()

	tr.SetState(logic.StateEvaluate, 10)
	assert.Equal(t, logic.StateSleep, snap.State)
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			tr.SetState(logic.StateSleep, uint32(n))
			tr.SetMQTTConnected(n%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     logic.StateSleep,
		Ticks:     1200,
		Decision:  logic.Decision{Speed: 2, Threshold: 8400, Remaining: 7200},
		Evaluated: true,
		Counts:    logic.EventCounts{Evaluations: 120, Dispenses: 1},
		StartTime: start,
		Now:       start.Add(90 * time.Second),
		Config:    testConfig(),
	}

	var sj StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &sj))

	assert.Equal(t, "SLEEP", sj.Status.State)
	assert.Equal(t, uint32(1200), sj.Status.Ticks)
	assert.Equal(t, int64(90), sj.Status.UptimeSeconds)
	require.NotNil(t, sj.Status.Schedule)
	assert.Equal(t, uint8(2), sj.Status.Schedule.Dial)
	assert.Equal(t, uint32(8400), sj.Status.Schedule.ThresholdSeconds)
	assert.Equal(t, int64(7200), sj.Status.Schedule.RemainingSeconds)
	assert.Equal(t, 1, sj.Status.Counts.Dispenses)
	assert.Empty(t, sj.Status.LastDispense)
	assert.Empty(t, sj.Status.Event)
	assert.Equal(t, int64(12000), sj.Status.Config.DispenseMs)
}

func TestFormatJSONBeforeEvaluate(t *testing.T) {
	var sj StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(Snapshot{}), &sj))
	assert.Equal(t, "UNKNOWN", sj.Status.State)
	assert.Nil(t, sj.Status.Schedule)
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{State: logic.StateSleep, Config: testConfig()}

	var sj StatusJSON
	require.NoError(t, json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &sj))
	assert.Equal(t, "SHUTDOWN", sj.Status.Event)
	assert.Equal(t, "SIGTERM", sj.Status.Reason)
	assert.Equal(t, "tcp://localhost:1883", sj.Status.MQTT.Broker)
}
