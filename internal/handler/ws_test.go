package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/ws"
)

func startEvents(t *testing.T, origins []string) (*ws.Hub, string) {
	t.Helper()
	hub := ws.NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(hub, origins).ServeEvents))
	t.Cleanup(func() {
		cancel()
		<-stopped
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSHandler_OriginCheck(t *testing.T) {
	_, url := startEvents(t, []string{"https://app.example"})

	hdr := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	hdr = http.Header{"Origin": {"https://app.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	conn.Close()
}

func TestWSHandler_StreamsFilteredEvents(t *testing.T) {
	hub, url := startEvents(t, []string{"*"})
	conn, _, err := websocket.DefaultDialer.Dial(url+"?sessionId=sess-001", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(model.SessionEvent{Type: model.EventSessionCreated, SessionID: "sess-002", At: time.Now()})
	hub.Publish(model.SessionEvent{Type: model.EventSessionLogout, SessionID: "sess-001", At: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    model.EventType `json:"type"`
		Payload struct {
			SessionID string `json:"sessionId"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, model.EventSessionLogout, msg.Type)
	assert.Equal(t, "sess-001", msg.Payload.SessionID)
}
