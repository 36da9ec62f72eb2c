package mqtt

import "github.com/sirupsen/logrus"

// pendingMsg is a serialized message waiting for the broker to come back.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO that keeps the newest messages while
// disconnected. Not safe for concurrent use; the caller synchronizes.
type backlog struct {
	buf     []pendingMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since the last drain
}

func newBacklog(capacity int) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{buf: make([]pendingMsg, capacity)}
}

func (b *backlog) push(msg pendingMsg) {
	if b.count == len(b.buf) {
		if b.dropped == 0 {
			logrus.WithField("capacity", len(b.buf)).Warn("mqtt backlog full, dropping oldest")
		}
		b.dropped++
		// head already points at the oldest entry
		b.buf[b.head] = msg
		b.head = (b.head + 1) % len(b.buf)
		return
	}
	b.buf[b.head] = msg
	b.head = (b.head + 1) % len(b.buf)
	b.count++
}

// drain returns the held messages oldest first, plus how many were lost.
func (b *backlog) drain() ([]pendingMsg, int) {
	if b.count == 0 {
		return nil, 0
	}

	out := make([]pendingMsg, b.count)
	start := (b.head - b.count + len(b.buf)) % len(b.buf)
	for i := range out {
		out[i] = b.buf[(start+i)%len(b.buf)]
	}
	dropped := b.dropped

	b.count = 0
	b.head = 0
	b.dropped = 0
	return out, dropped
}

func (b *backlog) len() int {
	return b.count
}
