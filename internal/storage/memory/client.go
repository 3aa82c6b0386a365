package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/storage"
)

// Client — хранилище сессий в памяти процесса. Один RWMutex защищает всю карту;
// под блокировкой выполняются только операции над картой.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func New() *Client {
	return &Client{sessions: make(map[string]*model.Session)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Insert(ctx context.Context, s *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[s.ID]; ok {
		return storage.ErrAlreadyExists
	}
	cp := *s
	c.sessions[s.ID] = &cp
	return nil
}

func (c *Client) Touch(ctx context.Context, id string, upd model.SessionUpdate, now, idleCutoff time.Time) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.IdleBefore(idleCutoff) {
		return nil, storage.ErrNotFound
	}
	s.Touch(upd, now)
	cp := *s
	return &cp, nil
}

func (c *Client) Get(ctx context.Context, id string) (*model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *Client) Delete(ctx context.Context, id string, idleCutoff time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.IdleBefore(idleCutoff) {
		return storage.ErrNotFound
	}
	delete(c.sessions, id)
	return nil
}

func (c *Client) List(ctx context.Context) ([]model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]model.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		list = append(list, *s)
	}
	return list, nil
}

func (c *Client) DeleteIdle(ctx context.Context, idleCutoff time.Time) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	for id, s := range c.sessions {
		if s.IdleBefore(idleCutoff) {
			delete(c.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions), nil
}
