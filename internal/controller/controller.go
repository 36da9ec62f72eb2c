// Package controller runs the feeder: boot wiggle, the tick-driven
// evaluate/dispense cycle and the manual override.
//
// The controller is single-threaded. Interrupt sources only latch requests
// (see internal/irq); Step takes one pending request at a time and runs its
// handler to completion, so handlers never overlap or re-enter. A pending
// override is always served before a pending tick.
package controller

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

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

// Config holds the controller's timing.
type Config struct {
	Schedule logic.Schedule
	// Dispense is how long an automatic dispense runs the motor.
	Dispense time.Duration
	// WarmUp lets the dial inputs settle after the rail is powered.
	WarmUp time.Duration
	// BootDelay is waited out in whole seconds after the wiggle.
	BootDelay time.Duration
	// OverridePoll is the interval between reads of a held override switch.
	OverridePoll time.Duration
	// OverrideMax stops a held override after this long. Zero never stops.
	OverrideMax time.Duration
}

// Deps are the hardware and reporting collaborators. Diag, Publisher,
// Tracker and Logger are optional.
type Deps struct {
	Clock     clock.Clock
	Motor     *motor.Driver
	Power     *power.Gate
	Dial      *dial.Reader
	Override  gpio.Input
	Diag      diag.Diagnostics
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Logger    logrus.FieldLogger
}

// Controller owns the elapsed-tick counter and sequences the hardware.
type Controller struct {
	cfg      Config
	clock    clock.Clock
	counter  logic.Counter
	motor    *motor.Driver
	power    *power.Gate
	dial     *dial.Reader
	override gpio.Input
	diag     diag.Diagnostics
	pub      mqtt.Publisher
	tracker  *status.Tracker
	log      logrus.FieldLogger
	state    logic.State
}

// New creates a Controller in the BOOT_INIT state.
func New(cfg Config, d Deps) *Controller {
	if cfg.OverridePoll <= 0 {
		cfg.OverridePoll = time.Millisecond
	}
	c := &Controller{
		cfg:      cfg,
		clock:    d.Clock,
		motor:    d.Motor,
		power:    d.Power,
		dial:     d.Dial,
		override: d.Override,
		diag:     d.Diag,
		pub:      d.Publisher,
		tracker:  d.Tracker,
		log:      d.Logger,
		state:    logic.StateBootInit,
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.diag == nil {
		c.diag = diag.Nop{}
	}
	if c.pub == nil {
		c.pub = mqtt.Discard{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithField("component", "controller")
	return c
}

// Ticks returns the elapsed-tick counter.
func (c *Controller) Ticks() uint32 {
	return c.counter.Load()
}

// State returns the current control loop phase.
func (c *Controller) State() logic.State {
	return c.state
}

func (c *Controller) setState(s logic.State) {
	c.state = s
	if c.tracker != nil {
		c.tracker.SetState(s, c.counter.Load())
		c.tracker.SetOutputs(c.power.IsOn(), c.motor.Running())
	}
}

// Boot wiggles the motor so a person can see the controller is alive, waits
// out the boot delay and goes to sleep.
func (c *Controller) Boot() {
	c.setState(logic.StateBootInit)
	c.diag.PutString("\n\n")

	c.setState(logic.StateWakeupWiggle)
	c.warn(c.power.On(), "power on")
	c.warn(c.motor.WakeupPulse(), "wakeup pulse")
	c.warn(c.power.Off(), "power off")

	for waited := time.Duration(0); waited < c.cfg.BootDelay; waited += time.Second {
		c.clock.Sleep(time.Second)
		c.diag.PutString("Wait...\n")
	}

	c.publishSystem("STARTUP", "")
	c.log.WithFields(logrus.Fields{
		"base_interval": c.cfg.Schedule.BaseInterval,
		"block":         c.cfg.Schedule.BlockDuration,
		"poll":          c.cfg.Schedule.PollInterval,
		"dispense":      c.cfg.Dispense,
	}).Info("booted")

	c.Sleep()
}

// Sleep cuts the auxiliary rail and idles until the next interrupt.
func (c *Controller) Sleep() {
	c.warn(c.power.Off(), "power off")
	c.setState(logic.StateSleep)
}

// HandleTick counts one watchdog tick and evaluates on a poll boundary.
// It reports whether a dispense ran.
func (c *Controller) HandleTick() bool {
	ticks := c.counter.Increment()
	if !c.cfg.Schedule.ShouldEvaluate(ticks) {
		return false
	}
	return c.evaluate(ticks)
}

func (c *Controller) evaluate(ticks uint32) bool {
	c.setState(logic.StateEvaluate)
	c.warn(c.power.On(), "power on")
	c.clock.Sleep(c.cfg.WarmUp)

	speed, err := c.dial.Read()
	if err != nil {
		c.log.WithError(err).Warn("skipping evaluate cycle")
		return false
	}

	d := c.cfg.Schedule.Decide(ticks, speed)
	if c.tracker != nil {
		c.tracker.RecordDecision(d)
	}
	c.report(d)
	c.log.WithFields(logrus.Fields{
		"ticks":     d.Ticks,
		"dial":      d.Speed,
		"threshold": d.Threshold,
		"remaining": d.Remaining,
	}).Debug("evaluated")

	if !d.Dispense {
		return false
	}
	c.dispense(d)
	return true
}

// report writes the human-readable schedule summary in minutes.
func (c *Controller) report(d logic.Decision) {
	c.diag.PutString("Mins to sleep: ")
	c.diag.PutUint(minutes(int64(d.Threshold)))
	c.diag.PutString("\n")
	c.diag.PutString("Mins to go:    ")
	c.diag.PutUint(minutes(d.Remaining))
	c.diag.PutString("\n\n")
}

func minutes(seconds int64) uint16 {
	m := seconds / 60
	switch {
	case m < 0:
		return 0
	case m > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(m)
}

func (c *Controller) dispense(d logic.Decision) {
	c.setState(logic.StateDispense)
	start := c.clock.Now()
	c.warn(c.motor.Dispense(c.cfg.Dispense), "dispense")
	c.counter.Reset()

	event := logic.Event{
		Timestamp: start,
		Type:      logic.EventDispense,
		Ticks:     d.Ticks,
		Speed:     d.Speed,
		Threshold: d.Threshold,
		Duration:  c.clock.Now().Sub(start),
	}
	c.log.WithFields(logrus.Fields{
		"ticks":    event.Ticks,
		"dial":     event.Speed,
		"duration": event.Duration,
	}).Info("dispensed")
	c.publish(event)
}

// HandleOverride runs the motor for as long as the override switch reads
// asserted, then restarts the schedule. The rail is left powered; Sleep
// cuts it.
func (c *Controller) HandleOverride() {
	c.setState(logic.StateOverride)
	c.diag.PutString("Manual override\n")
	c.warn(c.power.On(), "power on")

	start := c.clock.Now()
	held := false
	startFailed := false
	for c.switchAsserted() {
		held = true
		if err := c.motor.Start(); err != nil && !startFailed {
			c.log.WithError(err).Warn("override")
			startFailed = true
		}
		if c.cfg.OverrideMax > 0 && c.clock.Now().Sub(start) >= c.cfg.OverrideMax {
			c.log.WithField("limit", c.cfg.OverrideMax).Warn("override held past limit, stopping motor")
			break
		}
		c.clock.Sleep(c.cfg.OverridePoll)
	}
	c.warn(c.motor.Stop(), "override")

	ticks := c.counter.Load()
	c.counter.Reset()

	if !held {
		return
	}
	event := logic.Event{
		Timestamp: start,
		Type:      logic.EventOverride,
		Ticks:     ticks,
		Duration:  c.clock.Now().Sub(start),
	}
	c.log.WithFields(logrus.Fields{
		"ticks":    event.Ticks,
		"duration": event.Duration,
	}).Info("manual override")
	c.publish(event)
}

func (c *Controller) switchAsserted() bool {
	v, err := c.override.Value()
	if err != nil {
		c.log.WithError(err).Warn("read override switch")
		return false
	}
	return v != gpio.Low
}

// Step waits for one interrupt request and handles it, then goes back to
// sleep. A pending override wins over a pending tick. It returns the
// context's error once ctx is done.
func (c *Controller) Step(ctx context.Context, wdt, ext <-chan struct{}) error {
	select {
	case <-ext:
		c.HandleOverride()
		c.Sleep()
		return nil
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ext:
		c.HandleOverride()
	case <-wdt:
		c.HandleTick()
	}
	c.Sleep()
	c.updateConnectivity()
	return nil
}

// Run boots and then steps until ctx is cancelled. The cancellation cause,
// if any, is published as the shutdown reason.
func (c *Controller) Run(ctx context.Context, wdt, ext <-chan struct{}) error {
	c.Boot()
	for {
		if err := c.Step(ctx, wdt, ext); err != nil {
			c.shutdown(ctx)
			return nil
		}
	}
}

func (c *Controller) shutdown(ctx context.Context) {
	reason := ""
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		reason = cause.Error()
	}
	c.log.WithField("reason", reason).Info("shutting down")

	c.warn(c.motor.Stop(), "shutdown")
	c.Sleep()
	c.updateConnectivity()
	c.publishSystem("SHUTDOWN", reason)
}

func (c *Controller) updateConnectivity() {
	if c.tracker == nil {
		return
	}
	if cs, ok := c.pub.(mqtt.ConnectionStatus); ok {
		c.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (c *Controller) publish(event logic.Event) {
	if c.tracker != nil {
		c.tracker.RecordEvent(event)
	}
	if err := c.pub.Publish(event); err != nil {
		// Don't crash on publish failure
		c.log.WithError(err).Warn("publish event")
	}
}

func (c *Controller) publishSystem(name, reason string) {
	event := mqtt.SystemEvent{
		Timestamp: c.clock.Now(),
		Event:     name,
		Reason:    reason,
		Retained:  true,
	}
	if c.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(c.tracker.Snapshot(), name, reason)
	}
	if err := c.pub.PublishSystem(event); err != nil {
		c.log.WithError(err).Warnf("publish %s event", name)
	}
}

func (c *Controller) warn(err error, what string) {
	if err != nil {
		c.log.WithError(err).Warn(what)
	}
}
