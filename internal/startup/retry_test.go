package startup

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(t *testing.T) {
	t.Helper()
	prevInit, prevMax := initialBackoff, maxBackoff
	initialBackoff, maxBackoff = time.Millisecond, 4*time.Millisecond
	t.Cleanup(func() { initialBackoff, maxBackoff = prevInit, prevMax })
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	fastBackoff(t)
	calls := 0
	err := retry("db", time.Second, "test: ", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	fastBackoff(t)
	boom := errors.New("connection refused")
	calls := 0
	err := retry("redis", 20*time.Millisecond, "", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "redis (gave up after")
	assert.Greater(t, calls, 1)
}
