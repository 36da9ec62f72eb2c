package power

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feeder/internal/gpio"
)

func TestOnOff(t *testing.T) {
	line := gpio.NewFakeLine(nil)
	g := New(line)
	assert.False(t, g.IsOn())

	require.NoError(t, g.On())
	assert.True(t, g.IsOn())
	assert.Equal(t, gpio.High, line.Level())

	require.NoError(t, g.Off())
	assert.False(t, g.IsOn())
	assert.Equal(t, gpio.Low, line.Level())
}

func TestWriteErrorKeepsState(t *testing.T) {
	line := gpio.NewFakeLine(nil)
	g := New(line)
	require.NoError(t, g.On())

	line.WriteError = errors.New("line fault")
	err := g.Off()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power off")
	assert.True(t, g.IsOn())
}
