package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
)

// steppedStore returns a store whose clock advances one second per call.
func steppedStore() *MemoryStore {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return s
}

func mustAdd(t *testing.T, s *MemoryStore, title string, userID *string) model.Notification {
	t.Helper()
	n, err := s.Add(model.Notification{Title: title, UserID: userID})
	require.NoError(t, err)
	return n
}

func TestAdd(t *testing.T) {
	t.Parallel()

	t.Run("assigns id and timestamp", func(t *testing.T) {
		t.Parallel()
		s := steppedStore()
		supplied := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

		n, err := s.Add(model.Notification{Title: "T1", Timestamp: supplied, IsRead: true})
		require.NoError(t, err)
		assert.NotEmpty(t, n.ID)
		assert.NotEqual(t, supplied, n.Timestamp)
		assert.False(t, n.IsRead)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("keeps supplied id and rejects duplicates", func(t *testing.T) {
		t.Parallel()
		s := steppedStore()

		_, err := s.Add(model.Notification{ID: "fixed"})
		require.NoError(t, err)
		_, err = s.Add(model.Notification{ID: "fixed"})
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("clamps a clock that goes backwards", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore()
		times := []time.Time{
			time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC),
			time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC),
		}
		s.now = func() time.Time {
			ts := times[0]
			times = times[1:]
			return ts
		}
		first := mustAdd(t, s, "a", nil)
		second := mustAdd(t, s, "b", nil)
		assert.False(t, second.Timestamp.Before(first.Timestamp))
	})
}

func TestConcurrentAddKeepsIDsUniqueAndTimestampsOrdered(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(model.Notification{Title: fmt.Sprintf("n%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all := s.List()
	require.Len(t, all, 50)
	seen := make(map[string]struct{}, len(all))
	for i, n := range all {
		_, dup := seen[n.ID]
		require.False(t, dup, "duplicate id %s", n.ID)
		seen[n.ID] = struct{}{}
		if i > 0 {
			require.False(t, n.Timestamp.After(all[i-1].Timestamp), "list not newest first at %d", i)
		}
	}
}

func TestListForUser(t *testing.T) {
	t.Parallel()
	s := steppedStore()

	broadcast := mustAdd(t, s, "all", nil)
	forU1 := mustAdd(t, s, "u1", model.StringPtr("u1"))
	forU2 := mustAdd(t, s, "u2", model.StringPtr("u2"))

	_, err := s.ListForUser("")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	got, err := s.ListForUser("u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, forU1.ID, got[0].ID)
	assert.Equal(t, broadcast.ID, got[1].ID)

	got, err = s.ListForUser("someone-else")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, broadcast.ID, got[0].ID)

	all := s.List()
	require.Len(t, all, 3)
	assert.Equal(t, forU2.ID, all[0].ID)
}

func TestMarkRead(t *testing.T) {
	t.Parallel()
	s := steppedStore()
	n := mustAdd(t, s, "T", nil)

	_, ok := s.MarkRead("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	for i := 0; i < 2; i++ {
		got, ok := s.MarkRead(n.ID)
		require.True(t, ok)
		assert.True(t, got.IsRead)
	}
	stored, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.True(t, stored.IsRead)
	assert.Equal(t, n.Timestamp, stored.Timestamp)
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()
	s := steppedStore()

	broadcast := mustAdd(t, s, "all", nil)
	forU1 := mustAdd(t, s, "u1", model.StringPtr("u1"))
	alreadyRead := mustAdd(t, s, "u1 read", model.StringPtr("u1"))
	forU2 := mustAdd(t, s, "u2", model.StringPtr("u2"))
	_, _ = s.MarkRead(alreadyRead.ID)

	_, err := s.MarkAllRead("")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	changed, err := s.MarkAllRead("u1")
	require.NoError(t, err)
	ids := []string{}
	for _, n := range changed {
		ids = append(ids, n.ID)
		assert.True(t, n.IsRead)
	}
	assert.ElementsMatch(t, []string{broadcast.ID, forU1.ID}, ids)

	other, ok := s.Get(forU2.ID)
	require.True(t, ok)
	assert.False(t, other.IsRead)
	assert.Equal(t, 0, s.UnreadCount("u1"))
	assert.Equal(t, 1, s.UnreadCount(""))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := steppedStore()
	keep := mustAdd(t, s, "keep", nil)
	gone := mustAdd(t, s, "gone", nil)

	_, ok := s.Delete("missing")
	assert.False(t, ok)

	deleted, ok := s.Delete(gone.ID)
	require.True(t, ok)
	assert.Equal(t, gone.ID, deleted.ID)

	_, ok = s.Get(gone.ID)
	assert.False(t, ok)
	all := s.List()
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)

	_, ok = s.Delete(gone.ID)
	assert.False(t, ok)
}

func TestSendReadDeleteScenario(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	n := mustAdd(t, s, "T1", nil)
	got, err := s.ListForUser("anyone")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T1", got[0].Title)
	assert.False(t, got[0].IsRead)

	_, ok := s.MarkRead(n.ID)
	require.True(t, ok)
	got, err = s.ListForUser("anyone")
	require.NoError(t, err)
	assert.True(t, got[0].IsRead)

	_, ok = s.Delete(n.ID)
	require.True(t, ok)
	assert.Empty(t, s.List())
}
