// Package streamdeck speaks the Stream Deck plugin protocol: registration over a local
// websocket, typed inbound envelopes, and bounded outbound queues.
package streamdeck

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultQueueSize    = 32
	defaultLogQueueSize = 16
	defaultSendTimeout  = 2 * time.Second
	writeTimeout        = 5 * time.Second
	drainTimeout        = 2 * time.Second
)

// Conn is the protocol connection as the scheduler uses it.
type Conn interface {
	// Receive calls handler for every inbound envelope until ctx ends or the
	// connection fails with ErrConnectionLost.
	Receive(ctx context.Context, handler func(Message)) error

	// Send queues an outbound envelope, waiting for room up to the send timeout.
	Send(ctx context.Context, msg OutboundMessage) error

	// RunSender writes queued envelopes until ctx ends or a write fails.
	RunSender(ctx context.Context) error
}

// Client is a Conn over a gorilla websocket.
type Client struct {
	url         string
	reg         Registration
	logger      *zap.Logger
	sendTimeout time.Duration

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex // Protects websocket writes

	// queue carries effects and settings and always drains first; logQueue
	// carries forwarded log lines.
	queue    chan OutboundMessage
	logQueue chan OutboundMessage
	done     chan struct{}
	closed   bool
}

// Options tunes the outbound queues.
type Options struct {
	QueueSize    int
	LogQueueSize int
	SendTimeout  time.Duration
}

// NewClient creates a client for the local Stream Deck application.
func NewClient(reg Registration, opts Options, logger *zap.Logger) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.LogQueueSize <= 0 {
		opts.LogQueueSize = defaultLogQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Client{
		url:         fmt.Sprintf("ws://127.0.0.1:%d", reg.Port),
		reg:         reg,
		logger:      logger.Named("streamdeck"),
		sendTimeout: opts.SendTimeout,
		queue:       make(chan OutboundMessage, opts.QueueSize),
		logQueue:    make(chan OutboundMessage, opts.LogQueueSize),
		done:        make(chan struct{}),
	}
}

// Connect dials the application and registers the plugin.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Stream Deck: %w", err)
	}

	reg := registerMessage{Event: c.reg.RegisterEvent, UUID: c.reg.PluginUUID}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(reg); err != nil {
		conn.Close()
		return fmt.Errorf("failed to register plugin: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	c.conn = conn
	c.logger.Info("Connected to Stream Deck",
		zap.String("url", c.url),
		zap.String("plugin_uuid", c.reg.PluginUUID))
	return nil
}

func (c *Client) currentConn() (*websocket.Conn, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Receive implements Conn.
func (c *Client) Receive(ctx context.Context, handler func(Message)) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}

	// Unblock the pending read on cancellation without closing the socket, so queued
	// messages can still be written by Close.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to decode message", zap.Error(err))
			continue
		}
		handler(msg)
	}
}

// Send implements Conn.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()

	select {
	case c.queue <- msg:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %v", ErrSendQueueFull, msg.Event, c.sendTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrSendQueueFull, msg.Event, ctx.Err())
	case <-c.done:
		return ErrClosed
	}
}

// SendLog queues a log envelope on the log queue if there is room right now.
func (c *Client) SendLog(msg OutboundMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.logQueue <- msg:
		return true
	default:
		return false
	}
}

// RunSender implements Conn. Log envelopes are written only while no other
// envelope is waiting.
func (c *Client) RunSender(ctx context.Context) error {
	for {
		var msg OutboundMessage
		select {
		case msg = <-c.queue:
		default:
			select {
			case <-ctx.Done():
				return nil
			case <-c.done:
				return nil
			case msg = <-c.queue:
			case msg = <-c.logQueue:
			}
		}
		if err := c.write(msg); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
	}
}

func (c *Client) write(msg OutboundMessage) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Event, err)
	}
	return nil
}

// SetGlobalSettings queues the plugin's settings for storage by the application.
func (c *Client) SetGlobalSettings(ctx context.Context, payload json.RawMessage) error {
	return c.Send(ctx, SetGlobalSettings(c.reg.PluginUUID, payload))
}

// RequestGlobalSettings asks the application to replay the stored settings.
func (c *Client) RequestGlobalSettings(ctx context.Context) error {
	return c.Send(ctx, GetGlobalSettings(c.reg.PluginUUID))
}

// Close writes whatever is still queued, then closes the socket.
func (c *Client) Close() error {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(drainTimeout)
	for _, queue := range []chan OutboundMessage{c.queue, c.logQueue} {
		for drained := false; !drained && time.Now().Before(deadline); {
			select {
			case msg := <-queue:
				if err := c.write(msg); err != nil {
					c.logger.Warn("Dropping queued message on close", zap.String("event", msg.Event), zap.Error(err))
					drained = true
				}
			default:
				drained = true
			}
		}
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	c.logger.Info("Disconnected from Stream Deck")
	return conn.Close()
}
