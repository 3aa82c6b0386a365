// Package clock — источник времени сервиса. Все метки времени хранятся как абсолютные
// моменты (UTC), опорный часовой пояс применяется только при форматировании.
package clock

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// DefaultTimeZone — опорный часовой пояс для отображения времени.
const DefaultTimeZone = "America/Mexico_City"

// Precision — точность меток времени: микросекунды хранят все бэкенды (Postgres, Redis, память).
const Precision = time.Microsecond

type Clock interface {
	Now() time.Time
}

// Formatter — часы, которые умеют выводить время в опорном часовом поясе.
type Formatter interface {
	Format(t time.Time) string
}

// System — системные часы с опорным часовым поясом.
type System struct {
	loc *time.Location
}

func New(tz string) (*System, error) {
	if tz == "" {
		tz = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clock: load location %q: %w", tz, err)
	}
	return &System{loc: loc}, nil
}

// Now возвращает текущий момент в UTC, усечённый до Precision.
func (c *System) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

// UTC — системные часы с отображением в UTC (когда опорный пояс недоступен).
func UTC() *System { return &System{loc: time.UTC} }

func (c *System) Location() *time.Location { return c.loc }

// Format выводит t в опорном часовом поясе (RFC 3339 со смещением).
func (c *System) Format(t time.Time) string {
	return t.In(c.loc).Format(time.RFC3339)
}

// Manual — управляемые часы для тестов. Безопасны для конкурентного использования.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC().Truncate(Precision)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC().Truncate(Precision)
	m.mu.Unlock()
}

// Advance сдвигает время вперёд на d и возвращает новое значение.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d).Truncate(Precision)
	return m.now
}
