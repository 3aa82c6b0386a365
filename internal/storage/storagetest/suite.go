// Package storagetest — общий набор тестов контракта storage.SessionStore.
// Любая реализация (память, Redis, Postgres) должна его проходить.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/storage"
)

// Factory возвращает пустое хранилище; закрытие — забота фабрики (t.Cleanup).
type Factory func(t *testing.T) storage.SessionStore

var base = time.Date(2024, 3, 10, 15, 4, 5, 123456000, time.UTC)

func newSession(at time.Time) *model.Session {
	return &model.Session{
		ID:             uuid.NewString(),
		Email:          "a@x.com",
		Nickname:       "a",
		MACAddress:     "00:11:22:33:44:55",
		Server:         model.NetworkInfo{ServerIP: "10.0.0.5", ServerMAC: "aa:bb:cc:dd:ee:ff"},
		CreatedAt:      at,
		LastAccessedAt: at,
	}
}

func Run(t *testing.T, newStore Factory) {
	t.Run("InsertGet", func(t *testing.T) { testInsertGet(t, newStore(t)) })
	t.Run("InsertDuplicate", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("TouchUpdatesFields", func(t *testing.T) { testTouchUpdatesFields(t, newStore(t)) })
	t.Run("TouchIsMonotonic", func(t *testing.T) { testTouchIsMonotonic(t, newStore(t)) })
	t.Run("TouchIdleFailsWithoutMutation", func(t *testing.T) { testTouchIdle(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteIdleRefused", func(t *testing.T) { testDeleteIdleRefused(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("DeleteIdleExactSet", func(t *testing.T) { testDeleteIdle(t, newStore(t)) })
	t.Run("TouchVersusDeleteIdle", func(t *testing.T) { testTouchVersusDeleteIdle(t, newStore(t)) })
}

func assertSameSession(t *testing.T, want, got *model.Session) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.Nickname, got.Nickname)
	assert.Equal(t, want.MACAddress, got.MACAddress)
	assert.Equal(t, want.Server, got.Server)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.LastAccessedAt.Equal(got.LastAccessedAt), "lastAccessedAt %v != %v", want.LastAccessedAt, got.LastAccessedAt)
}

func testInsertGet(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assertSameSession(t, s, got)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testInsertDuplicate(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	dup := *s
	dup.Email = "other@x.com"
	err := st.Insert(ctx, &dup)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
}

func testGetMissing(t *testing.T, st storage.SessionStore) {
	_, err := st.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testTouchUpdatesFields(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	now := base.Add(10 * time.Second)
	got, err := st.Touch(ctx, s.ID, model.SessionUpdate{Email: "b@x.com"}, now, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", got.Email)
	assert.Equal(t, "a", got.Nickname)
	assert.Equal(t, s.MACAddress, got.MACAddress)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.True(t, got.LastAccessedAt.Equal(now))

	stored, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assertSameSession(t, got, stored)

	_, err = st.Touch(ctx, uuid.NewString(), model.SessionUpdate{}, now, base)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testTouchIsMonotonic(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	later := base.Add(time.Minute)
	_, err := st.Touch(ctx, s.ID, model.SessionUpdate{}, later, base.Add(-time.Hour))
	require.NoError(t, err)

	got, err := st.Touch(ctx, s.ID, model.SessionUpdate{Nickname: "z"}, base.Add(time.Second), base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "z", got.Nickname)
	assert.True(t, got.LastAccessedAt.Equal(later), "lastAccessedAt went backwards: %v", got.LastAccessedAt)
}

func testTouchIdle(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	_, err := st.Touch(ctx, s.ID, model.SessionUpdate{Email: "late@x.com"}, base.Add(time.Hour), base.Add(time.Second))
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assertSameSession(t, s, got)

	// Граница включительна: LastAccessedAt == cutoff ещё живая.
	_, err = st.Touch(ctx, s.ID, model.SessionUpdate{}, base.Add(time.Second), base)
	require.NoError(t, err)
}

func testDelete(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	require.NoError(t, st.Delete(ctx, s.ID, base))
	_, err := st.Get(ctx, s.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, st.Delete(ctx, s.ID, base), storage.ErrNotFound)
	_, err = st.Touch(ctx, s.ID, model.SessionUpdate{}, base, base.Add(-time.Hour))
	require.ErrorIs(t, err, storage.ErrNotFound)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// testDeleteIdleRefused: простаивающую запись Delete не трогает, её забирает DeleteIdle.
func testDeleteIdleRefused(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	s := newSession(base)
	require.NoError(t, st.Insert(ctx, s))

	require.ErrorIs(t, st.Delete(ctx, s.ID, base.Add(time.Microsecond)), storage.ErrNotFound)
	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.LastAccessedAt.Equal(base))

	removed, err := st.DeleteIdle(ctx, base.Add(time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, removed)
}

func testList(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	empty, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var ids []string
	for i := 0; i < 3; i++ {
		s := newSession(base.Add(time.Duration(i) * time.Second))
		require.NoError(t, st.Insert(ctx, s))
		ids = append(ids, s.ID)
	}
	list, err := st.List(ctx)
	require.NoError(t, err)
	var got []string
	for _, s := range list {
		got = append(got, s.ID)
	}
	sort.Strings(ids)
	sort.Strings(got)
	assert.Equal(t, ids, got)
}

func testDeleteIdle(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	cutoff := base.Add(time.Minute)

	stale := newSession(base)
	boundary := newSession(cutoff)
	fresh := newSession(cutoff.Add(time.Second))
	for _, s := range []*model.Session{stale, boundary, fresh} {
		require.NoError(t, st.Insert(ctx, s))
	}

	removed, err := st.DeleteIdle(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, removed)

	_, err = st.Get(ctx, stale.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	for _, s := range []*model.Session{boundary, fresh} {
		_, err := st.Get(ctx, s.ID)
		require.NoError(t, err)
	}

	again, err := st.DeleteIdle(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, again)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// testTouchVersusDeleteIdle: касание и удаление одной записи не должны «потеряться».
// Для каждой записи ровно один исход: касание успешно и запись осталась,
// либо касание получило ErrNotFound и запись удалена.
func testTouchVersusDeleteIdle(t *testing.T, st storage.SessionStore) {
	ctx := context.Background()
	const n = 40
	sessions := make([]*model.Session, n)
	for i := range sessions {
		sessions[i] = newSession(base)
		require.NoError(t, st.Insert(ctx, sessions[i]))
	}

	touchNow := base.Add(10 * time.Second)
	touchCutoff := base.Add(-time.Second)
	sweepCutoff := base.Add(time.Second)

	touched := make([]bool, n)
	var removed []string
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := st.Touch(ctx, sessions[i].ID, model.SessionUpdate{}, touchNow, touchCutoff)
			if err == nil {
				touched[i] = true
				return
			}
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		ids, err := st.DeleteIdle(ctx, sweepCutoff)
		assert.NoError(t, err)
		removed = ids
	}()
	close(start)
	wg.Wait()

	removedSet := make(map[string]bool, len(removed))
	for _, id := range removed {
		removedSet[id] = true
	}
	for i, s := range sessions {
		_, err := st.Get(ctx, s.ID)
		present := err == nil
		msg := fmt.Sprintf("session %d touched=%v removed=%v present=%v", i, touched[i], removedSet[s.ID], present)
		assert.NotEqual(t, touched[i], removedSet[s.ID], msg)
		assert.Equal(t, touched[i], present, msg)
	}
}
