package controller

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feeder/internal/clock"
	"github.com/sweeney/feeder/internal/diag"
	"github.com/sweeney/feeder/internal/dial"
	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logic"
	"github.com/sweeney/feeder/internal/motor"
	"github.com/sweeney/feeder/internal/mqtt"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/status"
)

var epoch = time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)

type rig struct {
	clk     *clock.Fake
	board   *gpio.FakeBoard
	pub     *mqtt.FakePublisher
	out     *bytes.Buffer
	tracker *status.Tracker
	hook    *test.Hook
	ctrl    *Controller
	wdt     chan struct{}
	ext     chan struct{}
}

func testConfig() Config {
	return Config{
		Schedule:     logic.DefaultSchedule(),
		Dispense:     12 * time.Second,
		WarmUp:       time.Millisecond,
		OverridePoll: time.Millisecond,
	}
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	clk := clock.NewFake(epoch)
	board := gpio.NewFakeBoard(clk.Now)
	lines := board.Lines()
	logger, hook := test.NewNullLogger()
	r := &rig{
		clk:     clk,
		board:   board,
		pub:     mqtt.NewFakePublisher(),
		out:     &bytes.Buffer{},
		tracker: status.NewTracker(epoch, status.Config{}),
		hook:    hook,
		wdt:     make(chan struct{}, 1),
		ext:     make(chan struct{}, 1),
	}
	r.ctrl = New(cfg, Deps{
		Clock:     clk,
		Motor:     motor.New(lines.Motor, clk, motor.DefaultConfig()),
		Power:     power.New(lines.Power),
		Dial:      dial.New(lines.Dial),
		Override:  lines.Override,
		Diag:      diag.NewWriter(r.out),
		Publisher: r.pub,
		Tracker:   r.tracker,
		Logger:    logger,
	})
	return r
}

// tick delivers n watchdog ticks through the event loop.
func (r *rig) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		r.wdt <- struct{}{}
		require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))
	}
}

func highWrites(writes []gpio.Write) int {
	n := 0
	for _, w := range writes {
		if w.Value == gpio.High {
			n++
		}
	}
	return n
}

func TestDispenseAtBaseIntervalWithDialZero(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.SetDial(0)

	r.tick(t, 3599)
	assert.Empty(t, r.pub.Events)
	assert.Equal(t, uint32(3599), r.ctrl.Ticks())
	assert.Zero(t, highWrites(r.board.Motor.Writes()))

	r.tick(t, 1)
	require.Len(t, r.pub.Events, 1)
	e := r.pub.Events[0]
	assert.Equal(t, logic.EventDispense, e.Type)
	assert.Equal(t, uint32(3600), e.Ticks)
	assert.Equal(t, uint8(0), e.Speed)
	assert.Equal(t, uint32(3600), e.Threshold)
	assert.Equal(t, 12*time.Second, e.Duration)
	assert.Equal(t, uint32(0), r.ctrl.Ticks())
	assert.Equal(t, gpio.Low, r.board.Motor.Level())
}

func TestDispenseAtLongestIntervalWithDialFifteen(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.SetDial(15)

	r.tick(t, 39599)
	assert.Empty(t, r.pub.Events)

	r.tick(t, 1)
	require.Len(t, r.pub.Events, 1)
	assert.Equal(t, uint32(39600), r.pub.Events[0].Ticks)
	assert.Equal(t, uint8(15), r.pub.Events[0].Speed)
	assert.Equal(t, uint32(0), r.ctrl.Ticks())
}

func TestCounterRestartsAfterDispense(t *testing.T) {
	r := newRig(t, testConfig())

	r.tick(t, 7200)
	assert.Equal(t, []logic.EventType{logic.EventDispense, logic.EventDispense}, r.pub.EventTypes())
	assert.Equal(t, uint32(0), r.ctrl.Ticks())
}

func TestDialChangeTakesEffectNextEvaluation(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.SetDial(15)
	r.tick(t, 3600)
	assert.Empty(t, r.pub.Events)

	r.board.SetDial(0)
	r.tick(t, 10)
	require.Len(t, r.pub.Events, 1)
	assert.Equal(t, uint32(3610), r.pub.Events[0].Ticks)
}

func TestEvaluatesOnlyOnPollBoundary(t *testing.T) {
	r := newRig(t, testConfig())

	r.tick(t, 9)
	assert.Zero(t, r.board.Dial[0].Reads())
	assert.Zero(t, highWrites(r.board.Power.Writes()))

	r.tick(t, 16)
	assert.Equal(t, 2, r.board.Dial[0].Reads())
	assert.Equal(t, 2, highWrites(r.board.Power.Writes()))
}

func TestPowerOffAfterEveryEvent(t *testing.T) {
	r := newRig(t, testConfig())

	for i := 0; i < 3600; i++ {
		r.tick(t, 1)
		require.Equal(t, gpio.Low, r.board.Power.Level(), "tick %d", i+1)
		require.Equal(t, logic.StateSleep, r.ctrl.State())
	}

	r.board.Override.Script(1, 0)
	r.ext <- struct{}{}
	require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))
	assert.Equal(t, gpio.Low, r.board.Power.Level())
}

func TestDispenseIsBracketedByPower(t *testing.T) {
	r := newRig(t, testConfig())
	r.tick(t, 3600)

	power := r.board.Power.Writes()
	motorWrites := r.board.Motor.Writes()
	require.Len(t, motorWrites, 2)

	var on, off time.Time
	for _, w := range power {
		if w.Value == gpio.High {
			on = w.At
		}
	}
	off = power[len(power)-1].At
	assert.Equal(t, gpio.Low, power[len(power)-1].Value)
	assert.False(t, motorWrites[0].At.Before(on.Add(time.Millisecond)), "warm-up before motor")
	assert.False(t, off.Before(motorWrites[1].At))
	assert.Equal(t, 12*time.Second, motorWrites[1].At.Sub(motorWrites[0].At))
}

func TestDiagnosticLines(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.SetDial(1)

	r.tick(t, 10)
	assert.Equal(t, "Mins to sleep: 100\nMins to go:    99\n\n", r.out.String())
}

func TestOverrideHoldsMotorUntilRelease(t *testing.T) {
	r := newRig(t, testConfig())
	r.tick(t, 50)
	r.board.Motor.Reset()

	r.board.Override.Script(1, 1, 1, 0)
	r.ext <- struct{}{}
	require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))

	writes := r.board.Motor.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, gpio.High, writes[0].Value)
	assert.Equal(t, gpio.Low, writes[3].Value)
	// Stop lands within one polling granule of the last asserted read.
	assert.Equal(t, time.Millisecond, writes[3].At.Sub(writes[2].At))

	assert.Equal(t, uint32(0), r.ctrl.Ticks())
	require.Len(t, r.pub.Events, 1)
	e := r.pub.Events[0]
	assert.Equal(t, logic.EventOverride, e.Type)
	assert.Equal(t, uint32(50), e.Ticks)
	assert.Equal(t, 3*time.Millisecond, e.Duration)
	assert.Contains(t, r.out.String(), "Manual override\n")
}

func TestOverrideReleaseEdgeOnlyResetsCounter(t *testing.T) {
	r := newRig(t, testConfig())
	r.tick(t, 1234)

	r.ext <- struct{}{}
	require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))

	assert.Equal(t, uint32(0), r.ctrl.Ticks())
	assert.Empty(t, r.pub.Events)
	assert.Equal(t, gpio.Low, r.board.Motor.Level())
}

func TestOverrideLeavesPowerOnUntilSleep(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.Override.Script(1, 0)

	r.ctrl.HandleOverride()
	assert.Equal(t, gpio.High, r.board.Power.Level())
	assert.Equal(t, logic.StateOverride, r.ctrl.State())

	r.ctrl.Sleep()
	assert.Equal(t, gpio.Low, r.board.Power.Level())
}

func TestOverrideMaxStopsStuckSwitch(t *testing.T) {
	cfg := testConfig()
	cfg.OverrideMax = 5 * time.Millisecond
	r := newRig(t, cfg)
	r.board.Override.Set(gpio.High)

	r.ctrl.HandleOverride()

	assert.Equal(t, gpio.Low, r.board.Motor.Level())
	require.Len(t, r.pub.Events, 1)
	assert.Equal(t, 5*time.Millisecond, r.pub.Events[0].Duration)
	warned := false
	for _, entry := range r.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the cutoff")
}

func TestOverrideServedBeforePendingTick(t *testing.T) {
	r := newRig(t, testConfig())
	r.tick(t, 3599)

	r.board.Override.Script(1, 0)
	r.ext <- struct{}{}
	r.wdt <- struct{}{}

	require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))
	assert.Equal(t, uint32(0), r.ctrl.Ticks())

	require.NoError(t, r.ctrl.Step(context.Background(), r.wdt, r.ext))
	assert.Equal(t, uint32(1), r.ctrl.Ticks())

	assert.Equal(t, []logic.EventType{logic.EventOverride}, r.pub.EventTypes())
}

func TestDialReadErrorSkipsCycle(t *testing.T) {
	r := newRig(t, testConfig())
	r.board.Dial[2].ReadError = errors.New("line gone")

	r.tick(t, 3600)
	assert.Empty(t, r.pub.Events)
	assert.Equal(t, uint32(3600), r.ctrl.Ticks())
	assert.Equal(t, gpio.Low, r.board.Power.Level())
	require.NotNil(t, r.hook.LastEntry())
	assert.Equal(t, "skipping evaluate cycle", r.hook.LastEntry().Message)

	r.board.Dial[2].ReadError = nil
	r.tick(t, 10)
	assert.Len(t, r.pub.Events, 1)
}

func TestPublishErrorDoesNotStopDispense(t *testing.T) {
	r := newRig(t, testConfig())
	r.pub.PublishError = errors.New("broker down")

	r.tick(t, 3600)
	assert.Equal(t, uint32(0), r.ctrl.Ticks())
	assert.Equal(t, 1, r.tracker.Snapshot().Counts.Dispenses)
	assert.Equal(t, "publish event", r.hook.LastEntry().Message)
}

func TestBoot(t *testing.T) {
	cfg := testConfig()
	cfg.BootDelay = 2 * time.Second
	r := newRig(t, cfg)

	r.ctrl.Boot()

	assert.Len(t, r.board.Motor.Writes(), 14)
	assert.Equal(t, gpio.Low, r.board.Motor.Level())
	power := r.board.Power.Writes()
	require.GreaterOrEqual(t, len(power), 2)
	assert.Equal(t, gpio.High, power[0].Value)
	assert.Equal(t, gpio.Low, r.board.Power.Level())
	assert.Equal(t, "\n\nWait...\nWait...\n", r.out.String())
	assert.Equal(t, logic.StateSleep, r.ctrl.State())

	require.Len(t, r.pub.SystemEvents, 1)
	e := r.pub.SystemEvents[0]
	assert.Equal(t, "STARTUP", e.Event)
	assert.True(t, e.Retained)
	assert.NotEmpty(t, e.RawPayload)
}

func TestTrackerFollowsLoop(t *testing.T) {
	r := newRig(t, testConfig())
	r.pub.Connected = true

	r.tick(t, 3605)
	snap := r.tracker.Snapshot()
	assert.Equal(t, logic.StateSleep, snap.State)
	assert.Equal(t, uint32(5), snap.Ticks)
	assert.Equal(t, 360, snap.Counts.Evaluations)
	assert.Equal(t, 1, snap.Counts.Dispenses)
	assert.Equal(t, epoch, snap.StartTime)
	assert.False(t, snap.PowerOn)
	assert.False(t, snap.MotorOn)
	assert.True(t, snap.MQTTConnected)
	assert.False(t, snap.LastDispense.IsZero())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	r := newRig(t, testConfig())
	wdt := make(chan struct{})
	ext := make(chan struct{})
	ctx, cancel := context.WithCancelCause(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx, wdt, ext) }()

	for i := 0; i < 10; i++ {
		wdt <- struct{}{}
	}
	cancel(errors.New("SIGTERM"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, gpio.Low, r.board.Power.Level())
	assert.Equal(t, gpio.Low, r.board.Motor.Level())
	require.Len(t, r.pub.SystemEvents, 2)
	assert.Equal(t, "STARTUP", r.pub.SystemEvents[0].Event)
	assert.Equal(t, "SHUTDOWN", r.pub.SystemEvents[1].Event)
	assert.Equal(t, "SIGTERM", r.pub.SystemEvents[1].Reason)
}

func TestRunPlainCancelHasNoReason(t *testing.T) {
	r := newRig(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.ctrl.Run(ctx, r.wdt, r.ext))
	require.Len(t, r.pub.SystemEvents, 2)
	assert.Empty(t, r.pub.SystemEvents[1].Reason)
}

func TestMinutes(t *testing.T) {
	tests := []struct {
		seconds int64
		want    uint16
	}{
		{-120, 0},
		{0, 0},
		{59, 0},
		{60, 1},
		{39600, 660},
		{math.MaxInt64, math.MaxUint16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, minutes(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestNewDefaults(t *testing.T) {
	board := gpio.NewFakeBoard(nil)
	lines := board.Lines()
	c := New(Config{Schedule: logic.DefaultSchedule()}, Deps{
		Motor:    motor.New(lines.Motor, clock.NewFake(epoch), motor.DefaultConfig()),
		Power:    power.New(lines.Power),
		Dial:     dial.New(lines.Dial),
		Override: lines.Override,
	})
	assert.Equal(t, logic.StateBootInit, c.State())
	assert.Equal(t, time.Millisecond, c.cfg.OverridePoll)
	assert.Equal(t, diag.Nop{}, c.diag)
	assert.Equal(t, mqtt.Discard{}, c.pub)
}
