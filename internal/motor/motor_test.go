package motor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feeder/internal/clock"
	"github.com/sweeney/feeder/internal/gpio"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestDriver() (*Driver, *gpio.FakeLine, *clock.Fake) {
	clk := clock.NewFake(epoch)
	line := gpio.NewFakeLine(clk.Now)
	return New(line, clk, DefaultConfig()), line, clk
}

func TestStartStop(t *testing.T) {
	d, line, _ := newTestDriver()

	require.NoError(t, d.Start())
	assert.True(t, d.Running())
	assert.Equal(t, gpio.High, line.Level())

	require.NoError(t, d.Stop())
	assert.False(t, d.Running())
	assert.Equal(t, gpio.Low, line.Level())
}

func TestDispenseDuration(t *testing.T) {
	d, line, clk := newTestDriver()

	require.NoError(t, d.Dispense(12*time.Second))

	writes := line.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, gpio.Write{Value: gpio.High, At: epoch}, writes[0])
	assert.Equal(t, gpio.Write{Value: gpio.Low, At: epoch.Add(12 * time.Second)}, writes[1])

	sleeps := clk.Sleeps()
	assert.Len(t, sleeps, 800)
	for _, s := range sleeps {
		assert.Equal(t, 15*time.Millisecond, s)
	}
	assert.False(t, d.Running())
}

func TestDispenseRoundsUpToGranule(t *testing.T) {
	d, _, clk := newTestDriver()

	require.NoError(t, d.Dispense(20*time.Millisecond))
	assert.Equal(t, 30*time.Millisecond, clk.Slept())
}

func TestDispenseZero(t *testing.T) {
	d, line, clk := newTestDriver()

	require.NoError(t, d.Dispense(0))
	assert.Len(t, line.Writes(), 2)
	assert.Zero(t, clk.Slept())
}

func TestDispenseStartErrorStillStops(t *testing.T) {
	d, line, _ := newTestDriver()
	line.WriteError = errors.New("line fault")

	err := d.Dispense(15 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "motor start")
	assert.Contains(t, err.Error(), "motor stop")
}

func TestWakeupPulse(t *testing.T) {
	d, line, clk := newTestDriver()

	require.NoError(t, d.WakeupPulse())

	writes := line.Writes()
	// Leading start, 6 × (start, stop), trailing stop.
	require.Len(t, writes, 14)

	pulses := 0
	for i := 1; i < 13; i += 2 {
		on, off := writes[i], writes[i+1]
		assert.Equal(t, gpio.High, on.Value)
		assert.Equal(t, gpio.Low, off.Value)
		assert.Equal(t, 100*time.Millisecond, off.At.Sub(on.At))
		if i+2 < 13 {
			assert.Equal(t, 75*time.Millisecond, writes[i+2].At.Sub(off.At))
		}
		pulses++
	}
	assert.Equal(t, 6, pulses)
	assert.Equal(t, gpio.Low, writes[13].Value)
	assert.False(t, d.Running())
	assert.Equal(t, 6*175*time.Millisecond, clk.Slept())
}

func TestNewDefaultsGranule(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := New(gpio.NewFakeLine(nil), clk, Config{})
	require.NoError(t, d.Dispense(30*time.Millisecond))
	assert.Len(t, clk.Sleeps(), 2)
}
