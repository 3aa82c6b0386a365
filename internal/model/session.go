package model

import (
	"fmt"
	"strings"
	"time"
)

// NetworkInfo — снимок сетевого адреса сервера на момент входа (только для информации).
type NetworkInfo struct {
	ServerIP  string `json:"serverIp"`
	ServerMAC string `json:"serverMac"`
}

// Session — одна отслеживаемая сессия. ID, MACAddress, Server и CreatedAt не меняются после создания.
type Session struct {
	ID             string      `json:"sessionId"`
	Email          string      `json:"email"`
	Nickname       string      `json:"nickname"`
	MACAddress     string      `json:"macAddress"`
	Server         NetworkInfo `json:"ip"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastAccessedAt time.Time   `json:"lastAccessed"`
}

// Touch обновляет поля из upd и продвигает LastAccessedAt, не допуская движения назад.
func (s *Session) Touch(upd SessionUpdate, now time.Time) {
	if upd.Email != "" {
		s.Email = upd.Email
	}
	if upd.Nickname != "" {
		s.Nickname = upd.Nickname
	}
	if now.After(s.LastAccessedAt) {
		s.LastAccessedAt = now
	}
}

// IdleBefore: последняя активность строго раньше cutoff (сессия подлежит удалению).
func (s *Session) IdleBefore(cutoff time.Time) bool {
	return s.LastAccessedAt.Before(cutoff)
}

// SessionUpdate — необязательные изменения; пустая строка означает «не менять».
type SessionUpdate struct {
	Email    string
	Nickname string
}

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// StatusAt: EXPIRED, если now - LastAccessedAt > timeout.
func (s *Session) StatusAt(now time.Time, timeout time.Duration) Status {
	if now.Sub(s.LastAccessedAt) > timeout {
		return StatusExpired
	}
	return StatusActive
}

// SessionView — снимок сессии с производными длительностями на момент запроса.
type SessionView struct {
	Session
	Status             Status
	ConnectionDuration time.Duration
	IdleDuration       time.Duration
}

func NewSessionView(s Session, now time.Time, timeout time.Duration) SessionView {
	return SessionView{
		Session:            s,
		Status:             s.StatusAt(now, timeout),
		ConnectionDuration: nonNegative(now.Sub(s.CreatedAt)),
		IdleDuration:       nonNegative(now.Sub(s.LastAccessedAt)),
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

type ListFilter string

const (
	FilterAll    ListFilter = "all"
	FilterActive ListFilter = "active"
)

// ParseListFilter принимает "all", "active"/"activeOnly"; пустое значение — all.
func ParseListFilter(s string) (ListFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "active", "activeonly", "active_only":
		return FilterActive, nil
	default:
		return "", fmt.Errorf("unknown list filter %q", s)
	}
}

type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventSessionUpdated EventType = "session_updated"
	EventSessionLogout  EventType = "session_logout"
	EventSessionExpired EventType = "session_expired"
)

// SessionEvent — событие жизненного цикла сессии для подписчиков /ws/events.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	At        time.Time `json:"at"`
}
