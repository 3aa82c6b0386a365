package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/model"
)

var (
	ErrHubFull   = errors.New("ws: subscriber limit reached")
	ErrHubClosed = errors.New("ws: hub stopped")
)

// Hub рассылает события жизненного цикла сессий подписчикам /ws/events.
// Реализует service.EventPublisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int
	closed   bool
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 1000
	}
	return &Hub{clients: make(map[*Client]struct{}), maxConns: maxConns}
}

// Run блокируется до отмены ctx, затем отключает всех подписчиков и ждёт завершения их pump'ов.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	subs := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		subs = append(subs, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	// Сетевой I/O вне мьютекса.
	for _, c := range subs {
		c.Close()
	}
	for _, c := range subs {
		c.Wait()
	}
	logger.Infof("ws hub stopped, %d subscribers disconnected", len(subs))
}

// Register добавляет подписчика. ErrHubFull — превышен лимит, ErrHubClosed — хаб остановлен.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.closed:
		return ErrHubClosed
	case len(h.clients) >= h.maxConns:
		return ErrHubFull
	}
	h.clients[c] = struct{}{}
	logger.Debugf("ws subscriber connected remote=%s total=%d", c.remote, len(h.clients))
	return nil
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		logger.Debugf("ws subscriber disconnected remote=%s total=%d", c.remote, len(h.clients))
	}
}

// ClientCount возвращает число подключённых подписчиков.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish рассылает событие подписчикам, чей фильтр его пропускает. Не блокирует:
// подписчик с заполненной очередью отключается.
func (h *Hub) Publish(ev model.SessionEvent) {
	msg := newEventMessage(ev)

	h.mu.RLock()
	var targets []*Client
	for c := range h.clients {
		if c.accepts(ev.SessionID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(msg) {
			logger.Errorf("ws queue full, dropping slow subscriber remote=%s", c.remote)
			c.Close()
		}
	}
}
