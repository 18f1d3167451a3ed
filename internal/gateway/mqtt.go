package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 30 * time.Second
	mqttBufferSize           = 64
)

// Broker is the part of an MQTT client the gateway needs.
type Broker interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Close() error
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// PahoBroker adapts a paho client to Broker.
type PahoBroker struct {
	client pahomqtt.Client
	logger *zap.Logger
}

// ConnectBroker dials the broker and waits for the connection.
func ConnectBroker(opts MQTTOptions, logger *zap.Logger) (*PahoBroker, error) {
	logger = logger.Named("mqtt")

	po := pahomqtt.NewClientOptions()
	po.AddBroker(opts.Broker)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "sbzdeck-" + uuid.NewString()[:8]
	}
	po.SetClientID(clientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	po.SetCleanSession(true)
	po.SetAutoReconnect(true)
	po.SetConnectTimeout(defaultConnectTimeout)
	po.SetKeepAlive(defaultKeepAlive)
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", opts.Broker))
	})

	client := pahomqtt.NewClient(po)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: connect timeout after %v", ErrNotConnected, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	return &PahoBroker{client: client, logger: logger}, nil
}

// Publish implements Broker.
func (b *PahoBroker) Publish(topic string, qos byte, payload []byte) error {
	token := b.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: publish to %s", ErrTimeout, topic)
	}
	return token.Error()
}

// Subscribe implements Broker.
func (b *PahoBroker) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := b.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("MQTT handler panic recovered",
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r))
			}
		}()
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: subscribe to %s", ErrTimeout, topic)
	}
	return token.Error()
}

// Close implements Broker.
func (b *PahoBroker) Close() error {
	b.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// Topics builds the bridge topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Command(name string) string { return t.Prefix + "/cmd/" + name }
func (t Topics) Reply(id string) string     { return t.Prefix + "/reply/" + id }
func (t Topics) Replies() string            { return t.Prefix + "/reply/+" }
func (t Topics) Events() string             { return t.Prefix + "/events" }

// MQTTGateway talks to a device bridge daemon over MQTT. Commands carry a uuid that the
// bridge echoes on the reply topic.
type MQTTGateway struct {
	broker Broker
	topics Topics
	qos    byte
	logger *zap.Logger

	pending   map[string]chan replyEnvelope
	pendingMu sync.Mutex

	subscribers map[int]chan Notification
	nextSubID   int
	closed      bool
	subsMu      sync.Mutex
}

// NewMQTTGateway subscribes to the reply and event topics.
func NewMQTTGateway(broker Broker, prefix string, qos byte, logger *zap.Logger) (*MQTTGateway, error) {
	g := &MQTTGateway{
		broker:      broker,
		topics:      Topics{Prefix: strings.TrimSuffix(prefix, "/")},
		qos:         qos,
		logger:      logger.Named("gateway"),
		pending:     make(map[string]chan replyEnvelope),
		subscribers: make(map[int]chan Notification),
	}

	if err := broker.Subscribe(g.topics.Replies(), qos, g.handleReply); err != nil {
		return nil, fmt.Errorf("subscribing to replies: %w", err)
	}
	if err := broker.Subscribe(g.topics.Events(), qos, g.handleEvent); err != nil {
		return nil, fmt.Errorf("subscribing to events: %w", err)
	}
	return g, nil
}

// Snapshot implements Gateway.
func (g *MQTTGateway) Snapshot(ctx context.Context) (Snapshot, error) {
	reply, err := g.request(ctx, "snapshot", commandEnvelope{})
	if err != nil {
		return Snapshot{}, err
	}
	if !reply.OK {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, reply.Error)
	}
	return decodeSnapshot(reply.Snapshot)
}

// Apply implements Gateway.
func (g *MQTTGateway) Apply(ctx context.Context, req ApplyRequest) error {
	code := req.OutputCode
	reply, err := g.request(ctx, "apply", commandEnvelope{
		Output:   &code,
		Volume:   req.Volume,
		Features: encodeFeatures(req.Features),
	})
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	return nil
}

// Subscribe implements Gateway.
func (g *MQTTGateway) Subscribe(ctx context.Context) (<-chan Notification, error) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	id := g.nextSubID
	g.nextSubID++
	ch := make(chan Notification, mqttBufferSize)
	g.subscribers[id] = ch

	go func() {
		<-ctx.Done()
		g.subsMu.Lock()
		defer g.subsMu.Unlock()
		if sub, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(sub)
		}
	}()

	return ch, nil
}

// Close ends every subscription and closes the broker.
func (g *MQTTGateway) Close() error {
	g.subsMu.Lock()
	if g.closed {
		g.subsMu.Unlock()
		return nil
	}
	g.closed = true
	for id, ch := range g.subscribers {
		delete(g.subscribers, id)
		close(ch)
	}
	g.subsMu.Unlock()

	return g.broker.Close()
}

func (g *MQTTGateway) request(ctx context.Context, command string, cmd commandEnvelope) (replyEnvelope, error) {
	g.subsMu.Lock()
	closed := g.closed
	g.subsMu.Unlock()
	if closed {
		return replyEnvelope{}, ErrClosed
	}

	cmd.ID = uuid.NewString()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return replyEnvelope{}, fmt.Errorf("encoding %s command: %w", command, err)
	}

	respChan := make(chan replyEnvelope, 1)
	g.pendingMu.Lock()
	g.pending[cmd.ID] = respChan
	g.pendingMu.Unlock()

	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, cmd.ID)
		g.pendingMu.Unlock()
	}()

	if err := g.broker.Publish(g.topics.Command(command), g.qos, payload); err != nil {
		return replyEnvelope{}, fmt.Errorf("publishing %s command: %w", command, err)
	}

	select {
	case reply := <-respChan:
		return reply, nil
	case <-ctx.Done():
		return replyEnvelope{}, fmt.Errorf("%w: %s %s: %w", ErrTimeout, command, cmd.ID, ctx.Err())
	}
}

func (g *MQTTGateway) handleReply(topic string, payload []byte) {
	var reply replyEnvelope
	if err := json.Unmarshal(payload, &reply); err != nil {
		g.logger.Warn("Failed to decode reply", zap.String("topic", topic), zap.Error(err))
		return
	}
	if reply.ID == "" {
		reply.ID = topic[strings.LastIndex(topic, "/")+1:]
	}

	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()

	ch, ok := g.pending[reply.ID]
	if !ok {
		g.logger.Debug("Reply for unknown request", zap.String("id", reply.ID))
		return
	}
	select {
	case ch <- reply:
	default:
		g.logger.Warn("Reply channel full", zap.String("id", reply.ID))
	}
}

func (g *MQTTGateway) handleEvent(_ string, payload []byte) {
	n, err := decodeEvent(payload)
	if err != nil {
		n = Notification{Err: err}
	}

	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- n:
		default:
			g.logger.Warn("Dropping device event, subscriber is full")
		}
	}
}

func decodeEvent(payload []byte) (Notification, error) {
	var ev eventEnvelope
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Notification{}, fmt.Errorf("decoding event: %w", err)
	}

	switch ev.Type {
	case "parameter":
		if ev.Value == nil {
			return Notification{}, fmt.Errorf("parameter event %s/%s without value", ev.Feature, ev.Parameter)
		}
		v, err := decodeValue(*ev.Value)
		if err != nil {
			return Notification{}, err
		}
		return Notification{Event: ClassifyParameter(ev.Feature, ev.Parameter, v)}, nil
	case "volume":
		return Notification{Event: VolumeChanged{Volume: ev.Volume, Muted: ev.Muted}}, nil
	case "error":
		return Notification{Err: fmt.Errorf("%w: %s", ErrBridge, ev.Error)}, nil
	default:
		return Notification{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
