package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/feeder/internal/logic"
)

// BacklogSize is how many messages are held while the broker is unreachable.
const BacklogSize = 64

// RealPublisher publishes to an actual MQTT broker. It never blocks startup
// on the broker: while disconnected, messages go to a backlog that is
// replayed once the connection comes up.
type RealPublisher struct {
	client paho.Client
	log    logrus.FieldLogger

	mu      sync.Mutex
	pending *backlog
}

// NewRealPublisher creates a publisher and starts connecting to broker in the
// background.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{
		log:     logrus.WithField("broker", broker),
		pending: newBacklog(BacklogSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "connection lost"})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info("mqtt connected")
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.WithError(err).Warn("mqtt connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends a feeder event. QoS 0, not retained.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(pendingMsg{topic: TopicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event. QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently holds a connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func (p *RealPublisher) send(msg pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.pending.push(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.publish(msg); err != nil {
		p.mu.Lock()
		p.pending.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg pendingMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.pending.drain()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	p.log.WithFields(logrus.Fields{"replayed": len(msgs), "dropped": dropped}).Info("mqtt replaying backlog")
	for _, msg := range msgs {
		if err := p.publish(msg); err != nil {
			p.log.WithError(err).Warn("mqtt replay failed")
		}
	}
}
