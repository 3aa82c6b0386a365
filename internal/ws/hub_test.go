package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiond/internal/model"
)

func startHub(t *testing.T, maxConns int) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(maxConns)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, r.RemoteAddr, r.URL.Query().Get("sessionId"))
		c.Start()
		if err := hub.Register(c); err != nil {
			c.CloseWith(websocket.CloseTryAgainLater, err.Error())
		}
	}))
	t.Cleanup(func() {
		cancel()
		<-stopped
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type    model.EventType     `json:"type"`
		Payload SessionEventPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return OutgoingMessage{Type: msg.Type, Payload: msg.Payload}
}

func TestHub_PublishToSubscribers(t *testing.T) {
	hub, srv := startHub(t, 10)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(model.SessionEvent{Type: model.EventSessionCreated, SessionID: "s-1", At: at})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, model.EventSessionCreated, msg.Type)
		p := msg.Payload.(SessionEventPayload)
		assert.Equal(t, "s-1", p.SessionID)
		assert.True(t, at.Equal(p.At))
	}
}

func TestHub_SessionFilter(t *testing.T) {
	hub, srv := startHub(t, 10)
	conn := dial(t, srv, "?sessionId=s-2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(model.SessionEvent{Type: model.EventSessionUpdated, SessionID: "s-1", At: time.Now()})
	hub.Publish(model.SessionEvent{Type: model.EventSessionLogout, SessionID: "s-2", At: time.Now()})

	msg := readMessage(t, conn)
	assert.Equal(t, model.EventSessionLogout, msg.Type)
	assert.Equal(t, "s-2", msg.Payload.(SessionEventPayload).SessionID)
}

func TestHub_SubscribeMessageChangesFilter(t *testing.T) {
	hub, srv := startHub(t, 10)
	conn := dial(t, srv, "?sessionId=s-1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "subscribe", SessionID: "s-9"}))
	// Фильтр меняется асинхронно в readPump.
	require.Eventually(t, func() bool {
		var c *Client
		hub.mu.RLock()
		for k := range hub.clients {
			c = k
		}
		hub.mu.RUnlock()
		return c != nil && c.accepts("s-9") && !c.accepts("s-1")
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(model.SessionEvent{Type: model.EventSessionExpired, SessionID: "s-9", At: time.Now()})
	msg := readMessage(t, conn)
	assert.Equal(t, model.EventSessionExpired, msg.Type)
}

func TestHub_ConnectionLimit(t *testing.T) {
	hub, srv := startHub(t, 1)
	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, srv, "")
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t, 10)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, r.RemoteAddr, "")
		c.Start()
		_ = hub.Register(c)
	}))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.ErrorIs(t, hub.Register(&Client{}), ErrHubClosed)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(0)
	assert.NotPanics(t, func() {
		hub.Publish(model.SessionEvent{Type: model.EventSessionCreated, SessionID: "x", At: time.Now()})
	})
}
