package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sessiond/internal/clock"
	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/metrics"
	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/netinfo"
	"github.com/sessiond/internal/storage"
)

// DefaultIdleTimeout — простой, после которого сессия считается истёкшей.
const DefaultIdleTimeout = 2 * time.Minute

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("session not found")
	ErrInternal   = errors.New("session store failure")
)

// ValidationError указывает на пустое обязательное поле; errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string { return e.Field + " is required" }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// EventPublisher получает события жизненного цикла (ws.Hub). Publish не должен блокировать.
type EventPublisher interface {
	Publish(ev model.SessionEvent)
}

func maskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

type SessionService struct {
	store   storage.SessionStore
	clock   clock.Clock
	timeout time.Duration
	newID   func() string
	netInfo func() model.NetworkInfo
	events  EventPublisher
	metrics *metrics.Metrics
}

type Option func(*SessionService)

func WithClock(c clock.Clock) Option { return func(s *SessionService) { s.clock = c } }

func WithIdleTimeout(d time.Duration) Option {
	return func(s *SessionService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithIDGenerator(f func() string) Option { return func(s *SessionService) { s.newID = f } }

func WithNetworkInfo(f func() model.NetworkInfo) Option {
	return func(s *SessionService) { s.netInfo = f }
}

func WithEvents(p EventPublisher) Option { return func(s *SessionService) { s.events = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *SessionService) { s.metrics = m } }

func NewSessionService(store storage.SessionStore, opts ...Option) *SessionService {
	s := &SessionService{
		store:   store,
		clock:   clock.UTC(),
		timeout: DefaultIdleTimeout,
		newID:   uuid.NewString,
		netInfo: netinfo.Snapshot,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionService) Timeout() time.Duration { return s.timeout }

// FormatTime выводит время в опорном часовом поясе часов сервиса.
func (s *SessionService) FormatTime(t time.Time) string {
	if f, ok := s.clock.(clock.Formatter); ok {
		return f.Format(t)
	}
	return t.UTC().Format(time.RFC3339)
}

type CreateRequest struct {
	Email      string `json:"email"`
	Nickname   string `json:"nickname"`
	MACAddress string `json:"macAddress"`
}

func (s *SessionService) internal(op string, err error) error {
	logger.Errorf("session %s: %v", op, err)
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

func (s *SessionService) mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return s.internal(op, err)
}

func (s *SessionService) publish(t model.EventType, id string, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.SessionEvent{Type: t, SessionID: id, At: at})
}

// Create регистрирует новую сессию и возвращает её id.
func (s *SessionService) Create(ctx context.Context, req CreateRequest) (string, error) {
	email := strings.TrimSpace(req.Email)
	nickname := strings.TrimSpace(req.Nickname)
	mac := strings.TrimSpace(req.MACAddress)
	switch {
	case email == "":
		return "", &ValidationError{Field: "email"}
	case nickname == "":
		return "", &ValidationError{Field: "nickname"}
	case mac == "":
		return "", &ValidationError{Field: "macAddress"}
	}
	now := s.clock.Now()
	sess := &model.Session{
		ID:             s.newID(),
		Email:          email,
		Nickname:       nickname,
		MACAddress:     mac,
		Server:         s.netInfo(),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.store.Insert(ctx, sess); err != nil {
		return "", s.internal("create", err)
	}
	s.metrics.SessionCreated()
	s.publish(model.EventSessionCreated, sess.ID, now)
	logger.Infof("session created id=%s", maskSessionID(sess.ID))
	return sess.ID, nil
}

// TouchAndUpdate применяет необязательные изменения и сбрасывает таймер простоя.
// Истёкшая по времени, но ещё не удалённая сессия не продлевается: ErrNotFound.
func (s *SessionService) TouchAndUpdate(ctx context.Context, id string, upd model.SessionUpdate) (*model.SessionView, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	upd.Email = strings.TrimSpace(upd.Email)
	upd.Nickname = strings.TrimSpace(upd.Nickname)
	now := s.clock.Now()
	sess, err := s.store.Touch(ctx, id, upd, now, now.Add(-s.timeout))
	if err != nil {
		return nil, s.mapErr("touch", err)
	}
	s.publish(model.EventSessionUpdated, id, now)
	view := model.NewSessionView(*sess, now, s.timeout)
	return &view, nil
}

// GetStatus возвращает снимок сессии без продления (lastAccessedAt не меняется).
func (s *SessionService) GetStatus(ctx context.Context, id string) (*model.SessionView, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapErr("status", err)
	}
	now := s.clock.Now()
	if sess.IdleBefore(now.Add(-s.timeout)) {
		return nil, ErrNotFound
	}
	view := model.NewSessionView(*sess, now, s.timeout)
	return &view, nil
}

// Delete завершает сессию (logout). Повторный вызов — ErrNotFound.
// Истёкшая, но ещё не убранная sweep'ом сессия тоже ErrNotFound: её удалит sweep.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	now := s.clock.Now()
	if err := s.store.Delete(ctx, id, now.Add(-s.timeout)); err != nil {
		return s.mapErr("delete", err)
	}
	s.metrics.SessionsRemoved(metrics.ReasonLogout, 1)
	s.publish(model.EventSessionLogout, id, now)
	logger.Infof("session logout id=%s", maskSessionID(id))
	return nil
}

// List возвращает снимки в порядке создания (при равенстве — по id). Ничего не продлевает.
// FilterActive оценивается по текущему времени, независимо от того, когда был последний sweep.
func (s *SessionService) List(ctx context.Context, filter model.ListFilter) ([]model.SessionView, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, s.internal("list", err)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	now := s.clock.Now()
	cutoff := now.Add(-s.timeout)
	views := make([]model.SessionView, 0, len(list))
	for i := range list {
		if filter == model.FilterActive && list[i].IdleBefore(cutoff) {
			continue
		}
		views = append(views, model.NewSessionView(list[i], now, s.timeout))
	}
	return views, nil
}

// Sweep удаляет сессии, у которых now - lastAccessedAt > timeout, и возвращает их число.
func (s *SessionService) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	ids, err := s.store.DeleteIdle(ctx, now.Add(-s.timeout))
	s.metrics.ObserveSweep(time.Since(start), err)
	if err != nil {
		return 0, s.internal("sweep", err)
	}
	for _, id := range ids {
		logger.Infof("session %s removed for inactivity", maskSessionID(id))
		s.publish(model.EventSessionExpired, id, now)
	}
	s.metrics.SessionsRemoved(metrics.ReasonExpired, len(ids))
	return len(ids), nil
}

// SyncMetrics выставляет gauge активных сессий по фактическому размеру хранилища
// (Postgres/Redis могут содержать сессии, созданные до старта процесса).
func (s *SessionService) SyncMetrics(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return s.internal("count", err)
	}
	s.metrics.SetActive(n)
	return nil
}
