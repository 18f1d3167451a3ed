package streamdeck

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockStreamDeck creates a websocket server that checks registration and hands the
// connection to handler.
func mockStreamDeck(t *testing.T, handler func(*websocket.Conn)) (*httptest.Server, Registration) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		var reg registerMessage
		if err := conn.ReadJSON(&reg); err != nil {
			t.Errorf("Failed to read registration: %v", err)
			return
		}
		assert.Equal(t, "registerPlugin", reg.Event)
		assert.Equal(t, "plugin-uuid", reg.UUID)

		handler(conn)
	}))
	t.Cleanup(server.Close)

	reg := Registration{
		Port:          server.Listener.Addr().(*net.TCPAddr).Port,
		PluginUUID:    "plugin-uuid",
		RegisterEvent: "registerPlugin",
	}
	return server, reg
}

func connectedClient(t *testing.T, reg Registration, opts Options) *Client {
	logger, _ := zap.NewDevelopment()
	client := NewClient(reg, opts, logger)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_Connect(t *testing.T) {
	t.Run("registers on connect", func(t *testing.T) {
		registered := make(chan struct{})
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			close(registered)
			time.Sleep(50 * time.Millisecond)
		})

		connectedClient(t, reg, Options{})
		select {
		case <-registered:
		case <-time.After(time.Second):
			t.Fatal("server never saw registration")
		}
	})

	t.Run("already connected", func(t *testing.T) {
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			time.Sleep(50 * time.Millisecond)
		})
		client := connectedClient(t, reg, Options{})

		err := client.Connect(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already connected")
	})

	t.Run("nothing listening", func(t *testing.T) {
		client := NewClient(Registration{Port: 1, PluginUUID: "x", RegisterEvent: "r"}, Options{}, zap.NewNop())
		err := client.Connect(context.Background())
		assert.Error(t, err)
	})

	t.Run("receive before connect", func(t *testing.T) {
		client := NewClient(Registration{Port: 1}, Options{}, zap.NewNop())
		err := client.Receive(context.Background(), func(Message) {})
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestClient_Receive(t *testing.T) {
	t.Run("delivers envelopes and skips garbage", func(t *testing.T) {
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			conn.WriteJSON(Message{Event: EventWillAppear, Action: SelectOutputAction, Context: "ctx1",
				Payload: json.RawMessage(`{"state":1}`)})
			conn.WriteJSON(Message{Event: EventWillDisappear, Action: SelectOutputAction, Context: "ctx1"})
			time.Sleep(100 * time.Millisecond)
		})
		client := connectedClient(t, reg, Options{})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var got []Message
		err := client.Receive(ctx, func(msg Message) {
			got = append(got, msg)
			if len(got) == 2 {
				cancel()
			}
		})
		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, got, 2)
		assert.Equal(t, EventWillAppear, got[0].Event)
		assert.Equal(t, EventWillDisappear, got[1].Event)
	})

	t.Run("connection loss is reported", func(t *testing.T) {
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {})
		client := connectedClient(t, reg, Options{})

		err := client.Receive(context.Background(), func(Message) {})
		assert.ErrorIs(t, err, ErrConnectionLost)
	})
}

func TestClient_Send(t *testing.T) {
	t.Run("sender writes queued messages in order", func(t *testing.T) {
		received := make(chan OutboundMessage, 4)
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			for i := 0; i < 3; i++ {
				var msg OutboundMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				received <- msg
			}
		})
		client := connectedClient(t, reg, Options{})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go client.RunSender(ctx)

		require.NoError(t, client.Send(ctx, ShowOk("a")))
		require.NoError(t, client.Send(ctx, SetState("b", 1)))
		require.NoError(t, client.RequestGlobalSettings(ctx))

		var events []string
		for i := 0; i < 3; i++ {
			select {
			case msg := <-received:
				events = append(events, msg.Event+":"+msg.Context)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for message")
			}
		}
		assert.Equal(t, []string{"showOk:a", "setState:b", "getGlobalSettings:plugin-uuid"}, events)
	})

	t.Run("full queue times out", func(t *testing.T) {
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			time.Sleep(200 * time.Millisecond)
		})
		client := connectedClient(t, reg, Options{QueueSize: 1, SendTimeout: 20 * time.Millisecond})

		require.NoError(t, client.Send(context.Background(), ShowOk("a")))
		err := client.Send(context.Background(), ShowOk("b"))
		assert.ErrorIs(t, err, ErrSendQueueFull)
	})

	t.Run("log lines never take room from effects", func(t *testing.T) {
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			time.Sleep(200 * time.Millisecond)
		})
		client := connectedClient(t, reg, Options{QueueSize: 1, LogQueueSize: 2, SendTimeout: 20 * time.Millisecond})

		assert.True(t, client.SendLog(LogMessage("one")))
		assert.True(t, client.SendLog(LogMessage("two")))
		assert.False(t, client.SendLog(LogMessage("three")))

		require.NoError(t, client.Send(context.Background(), ShowOk("a")))
	})

	t.Run("sender writes effects before waiting log lines", func(t *testing.T) {
		received := make(chan OutboundMessage, 4)
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			for i := 0; i < 3; i++ {
				var msg OutboundMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				received <- msg
			}
		})
		client := connectedClient(t, reg, Options{})

		require.True(t, client.SendLog(LogMessage("first log")))
		require.True(t, client.SendLog(LogMessage("second log")))
		require.NoError(t, client.Send(context.Background(), SetState("key", 1)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go client.RunSender(ctx)

		var events []string
		for i := 0; i < 3; i++ {
			select {
			case msg := <-received:
				events = append(events, msg.Event)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for message")
			}
		}
		assert.Equal(t, []string{EventSetState, EventLogMessage, EventLogMessage}, events)
	})

	t.Run("close drains the queue", func(t *testing.T) {
		received := make(chan OutboundMessage, 2)
		_, reg := mockStreamDeck(t, func(conn *websocket.Conn) {
			for {
				var msg OutboundMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				received <- msg
			}
		})
		logger, _ := zap.NewDevelopment()
		client := NewClient(reg, Options{}, logger)
		require.NoError(t, client.Connect(context.Background()))

		require.NoError(t, client.SetGlobalSettings(context.Background(), json.RawMessage(`{"x":1}`)))
		require.NoError(t, client.Close())

		select {
		case msg := <-received:
			assert.Equal(t, EventSetGlobalSettings, msg.Event)
			assert.Equal(t, "plugin-uuid", msg.Context)
		case <-time.After(time.Second):
			t.Fatal("queued message was not flushed")
		}

		assert.ErrorIs(t, client.Send(context.Background(), ShowOk("late")), ErrClosed)
		assert.NoError(t, client.Close())
	})
}
