package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSession_TouchAppliesOnlyNonEmptyFields(t *testing.T) {
	s := Session{Email: "a@x.com", Nickname: "a", CreatedAt: t0, LastAccessedAt: t0}

	s.Touch(SessionUpdate{Nickname: "b"}, t0.Add(time.Second))

	assert.Equal(t, "a@x.com", s.Email)
	assert.Equal(t, "b", s.Nickname)
	assert.True(t, s.LastAccessedAt.Equal(t0.Add(time.Second)))
}

func TestSession_TouchNeverMovesBackwards(t *testing.T) {
	s := Session{CreatedAt: t0, LastAccessedAt: t0.Add(time.Minute)}

	s.Touch(SessionUpdate{}, t0)

	assert.True(t, s.LastAccessedAt.Equal(t0.Add(time.Minute)))
}

func TestSession_StatusAt(t *testing.T) {
	s := Session{CreatedAt: t0, LastAccessedAt: t0}
	timeout := 2 * time.Minute

	assert.Equal(t, StatusActive, s.StatusAt(t0, timeout))
	assert.Equal(t, StatusActive, s.StatusAt(t0.Add(timeout), timeout), "exactly at timeout is still active")
	assert.Equal(t, StatusExpired, s.StatusAt(t0.Add(timeout+time.Microsecond), timeout))
}

func TestSession_IdleBefore(t *testing.T) {
	s := Session{LastAccessedAt: t0}
	assert.False(t, s.IdleBefore(t0))
	assert.True(t, s.IdleBefore(t0.Add(time.Microsecond)))
}

func TestNewSessionView_Durations(t *testing.T) {
	s := Session{CreatedAt: t0, LastAccessedAt: t0.Add(30 * time.Second)}
	v := NewSessionView(s, t0.Add(45*time.Second), time.Minute)

	assert.Equal(t, 45*time.Second, v.ConnectionDuration)
	assert.Equal(t, 15*time.Second, v.IdleDuration)
	assert.Equal(t, StatusActive, v.Status)
}

func TestNewSessionView_ClockBehindRecordClampsToZero(t *testing.T) {
	s := Session{CreatedAt: t0, LastAccessedAt: t0}
	v := NewSessionView(s, t0.Add(-time.Second), time.Minute)
	assert.Zero(t, v.ConnectionDuration)
	assert.Zero(t, v.IdleDuration)
}

func TestParseListFilter(t *testing.T) {
	for in, want := range map[string]ListFilter{
		"":           FilterAll,
		"all":        FilterAll,
		"ALL":        FilterAll,
		"active":     FilterActive,
		"activeOnly": FilterActive,
	} {
		got, err := ParseListFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseListFilter("expired")
	assert.Error(t, err)
}
