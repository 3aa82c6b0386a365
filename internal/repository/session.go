package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/storage"
)

// sessionCols — список колонок для SELECT/RETURNING (порядок соответствует scanSession).
const sessionCols = `id, email, nickname, mac_address, server_ip, server_mac, created_at, last_accessed_at`

const pgUniqueViolation = "23505"

// SessionRepository — хранилище сессий в Postgres. Атомарность touch/sweep обеспечивается
// блокировкой строки: UPDATE и DELETE одной строки сериализуются, условие по last_accessed_at
// перепроверяется после ожидания блокировки.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Close не закрывает пул: им владеет main.
func (r *SessionRepository) Close() error { return nil }

func scanSession(s interface{ Scan(dest ...any) error }, m *model.Session) error {
	err := s.Scan(&m.ID, &m.Email, &m.Nickname, &m.MACAddress, &m.Server.ServerIP, &m.Server.ServerMAC, &m.CreatedAt, &m.LastAccessedAt)
	if err != nil {
		return err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.LastAccessedAt = m.LastAccessedAt.UTC()
	return nil
}

func (r *SessionRepository) Insert(ctx context.Context, s *model.Session) error {
	defer logger.DeferLogDuration("session.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Email, s.Nickname, s.MACAddress, s.Server.ServerIP, s.Server.ServerMAC, s.CreatedAt, s.LastAccessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("sessionRepo.Insert: %w", err)
	}
	return nil
}

// Touch: пустые email/nickname не меняют значения; last_accessed_at не уменьшается.
func (r *SessionRepository) Touch(ctx context.Context, id string, upd model.SessionUpdate, now, idleCutoff time.Time) (*model.Session, error) {
	defer logger.DeferLogDuration("session.Touch", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx,
		`UPDATE sessions SET
		   email = COALESCE(NULLIF($2, ''), email),
		   nickname = COALESCE(NULLIF($3, ''), nickname),
		   last_accessed_at = GREATEST(last_accessed_at, $4)
		 WHERE id = $1 AND last_accessed_at >= $5
		 RETURNING `+sessionCols,
		id, upd.Email, upd.Nickname, now, idleCutoff)
	if err := scanSession(row, s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.Touch: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.Get", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	if err := scanSession(row, s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.Get: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string, idleCutoff time.Time) error {
	defer logger.DeferLogDuration("session.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND last_accessed_at >= $2`, id, idleCutoff)
	if err != nil {
		return fmt.Errorf("sessionRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context) ([]model.Session, error) {
	defer logger.DeferLogDuration("session.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+sessionCols+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.List: %w", err)
	}
	defer rows.Close()
	list := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("sessionRepo.List: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SessionRepository) DeleteIdle(ctx context.Context, idleCutoff time.Time) ([]string, error) {
	defer logger.DeferLogDuration("session.DeleteIdle", time.Now())()
	rows, err := r.pool.Query(ctx, `DELETE FROM sessions WHERE last_accessed_at < $1 RETURNING id`, idleCutoff)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.DeleteIdle: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.DeleteIdle: %w", err)
	}
	return ids, nil
}

func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sessionRepo.Count: %w", err)
	}
	return n, nil
}
