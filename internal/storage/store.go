package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sessiond/internal/model"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
)

// SessionStore — хранилище сессий id → запись.
// Реализации: memory.Client, redis.Client, repository.SessionRepository (Postgres).
// Все реализации проходят общий набор тестов storagetest.Run.
type SessionStore interface {
	Insert(ctx context.Context, s *model.Session) error
	// Touch атомарно применяет upd и продвигает LastAccessedAt до max(прежнее, now).
	// ErrNotFound, если записи нет или её LastAccessedAt раньше idleCutoff:
	// касание и решение об удалении при sweep взаимно исключают друг друга.
	Touch(ctx context.Context, id string, upd model.SessionUpdate, now, idleCutoff time.Time) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	// Delete удаляет живую запись. Запись с LastAccessedAt раньше idleCutoff
	// не трогается (её заберёт sweep) и даёт ErrNotFound, как и отсутствующая.
	Delete(ctx context.Context, id string, idleCutoff time.Time) error
	List(ctx context.Context) ([]model.Session, error)
	// DeleteIdle удаляет ровно те записи, у которых LastAccessedAt < idleCutoff, и возвращает их id.
	DeleteIdle(ctx context.Context, idleCutoff time.Time) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
