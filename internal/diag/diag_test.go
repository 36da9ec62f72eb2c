package diag

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	d := NewWriter(&buf)

	d.PutString("Mins to go:    ")
	d.PutUint(65535)
	d.PutString("\n")

	assert.Equal(t, "Mins to go:    65535\n", buf.String())
	assert.Zero(t, d.Errors())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("unplugged") }

func TestWriterSwallowsErrors(t *testing.T) {
	d := NewWriter(failingWriter{})

	d.PutString("hello")
	d.PutUint(1)

	assert.Equal(t, uint64(2), d.Errors())
}

func TestLogEmitsCompleteLines(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	d := NewLog(logger)

	d.PutString("Mins to sleep: ")
	d.PutUint(60)
	assert.Empty(t, hook.AllEntries(), "partial line must not be logged")

	d.PutString("\nMins to go:    ")
	d.PutUint(59)
	d.PutString("\n\n")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Mins to sleep: 60", entries[0].Message)
	assert.Equal(t, "Mins to go:    59", entries[1].Message)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, "diag", entries[0].Data["source"])
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewWriter(&a), Nop{}, NewWriter(&b)}

	m.PutString("n=")
	m.PutUint(42)

	assert.Equal(t, "n=42", a.String())
	assert.Equal(t, "n=42", b.String())
}
