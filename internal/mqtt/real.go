package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/sensor"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Publishing never blocks
// the caller: while the connection is down messages are buffered and they
// are replayed once it comes back.
type RealPublisher struct {
	client paho.Client
	logger zerolog.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background. An unreachable broker is not an error.
func NewRealPublisher(broker, clientID string, logger zerolog.Logger) *RealPublisher {
	p := newPublisher(nil, logger)

	will, _ := FormatSystemPayload(SystemEvent{Event: EventOffline, Reason: "MQTT_DISCONNECT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn().Err(err).Msg("connection lost, buffering")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	p.logger.Info().Str("broker", broker).Str("client_id", clientID).Msg("connecting")
	return p
}

func newPublisher(client paho.Client, logger zerolog.Logger) *RealPublisher {
	return &RealPublisher{
		client: client,
		logger: logger.With().Str("component", "mqtt").Logger(),
		buf:    newRingBuffer(bufferCapacity),
	}
}

// Publish sends a light event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	p.publish(bufferedMsg{topic: Topic, payload: payload})
	return nil
}

// PublishReading sends a sensor reading to the MQTT broker.
func (p *RealPublisher) PublishReading(r sensor.Reading) error {
	payload, err := FormatReadingPayload(r)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	p.publish(bufferedMsg{topic: TopicReadings, payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		if p.buf.push(msg) {
			p.logger.Warn().Int("capacity", p.buf.capacity).Msg("buffer full, dropping oldest")
		}
		return
	}
	p.send(msg)
}

// flush replays buffered messages. Called by paho after every (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	for _, msg := range pending {
		p.send(msg)
	}
	p.mu.Unlock()

	p.logger.Info().Int("replayed", len(pending)).Msg("connected")
}

// send hands msg to paho and reports failures asynchronously. Caller holds mu.
func (p *RealPublisher) send(msg bufferedMsg) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn().Str("topic", msg.topic).Msg("publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn().Err(err).Str("topic", msg.topic).Msg("publish failed")
		}
	}()
}
