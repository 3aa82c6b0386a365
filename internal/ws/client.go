package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessiond/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	queueSize      = 256
)

// Client — одно подключение подписчика. Жизненный цикл: NewClient -> Start -> Close -> Wait.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	queue  chan OutgoingMessage
	remote string

	filterMu  sync.RWMutex
	sessionID string

	stop      context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
	pumps     sync.WaitGroup
}

// NewClient создаёт подписчика; непустой sessionID ограничивает поток событиями одной сессии.
func NewClient(hub *Hub, conn *websocket.Conn, remote, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		queue:     make(chan OutgoingMessage, queueSize),
		remote:    remote,
		sessionID: strings.TrimSpace(sessionID),
		stopped:   make(chan struct{}),
	}
}

func (c *Client) accepts(sessionID string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.sessionID == "" || c.sessionID == sessionID
}

func (c *Client) setFilter(sessionID string) {
	c.filterMu.Lock()
	c.sessionID = strings.TrimSpace(sessionID)
	c.filterMu.Unlock()
}

// enqueue кладёт сообщение в очередь без блокировки; false — очередь переполнена.
func (c *Client) enqueue(msg OutgoingMessage) bool {
	select {
	case <-c.stopped:
		return true
	default:
	}
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

// Start запускает чтение и запись. Контекст подписчика не зависит от контекста HTTP-запроса.
func (c *Client) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.pumps.Add(2)
	go c.readLoop()
	go c.writeLoop(ctx)
}

func (c *Client) Wait() { c.pumps.Wait() }

// Close идемпотентен и безопасен из любой горутины.
func (c *Client) Close() {
	c.CloseWith(websocket.CloseGoingAway, "server shutdown")
}

// CloseWith закрывает подключение с указанным кодом close-фрейма (первый вызов выигрывает).
func (c *Client) CloseWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeText = code, text
		close(c.stopped)
		if c.stop != nil {
			// writeLoop отправит close-фрейм и закроет соединение.
			c.stop()
			return
		}
		c.conn.Close()
	})
}

// readLoop обрабатывает pong и сообщения {"type":"subscribe"}; выход — при ошибке чтения.
func (c *Client) readLoop() {
	defer c.pumps.Done()
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read remote=%s: %v", c.remote, err)
			}
			return
		}
		var in IncomingMessage
		if err := json.Unmarshal(raw, &in); err != nil || in.Type != "subscribe" {
			c.enqueue(OutgoingMessage{Type: EventError, Payload: ErrorPayload{Message: "unsupported message"}})
			continue
		}
		c.setFilter(in.SessionID)
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// writeLoop — единственный писатель в соединение: события из очереди и ping.
func (c *Client) writeLoop(ctx context.Context) {
	defer c.pumps.Done()
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText), time.Now().Add(time.Second))
			return
		case msg := <-c.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("ws marshal remote=%s: %v", c.remote, err)
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
