package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/notification-hub/internal/model"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func note(id string, minute int, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		Timestamp: epoch.Add(time.Duration(minute) * time.Minute),
		IsRead:    read,
	}
}

func ids(list []model.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestProjectionMergeRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		events     []ServerEvent
		wantIDs    []string
		wantUnread int
	}{
		{
			name:       "load sorts newest first and drops duplicate ids",
			events:     []ServerEvent{Loaded{Notifications: []model.Notification{note("a", 1, false), note("b", 3, true), note("a", 9, false)}}},
			wantIDs:    []string{"b", "a"},
			wantUnread: 1,
		},
		{
			name: "received prepends a new id",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 1, false)}},
				NotificationReceived{Notification: note("b", 2, false)},
			},
			wantIDs:    []string{"b", "a"},
			wantUnread: 2,
		},
		{
			name: "received older than the head is re-sorted into place",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 5, false), note("b", 1, false)}},
				NotificationReceived{Notification: note("c", 3, false)},
			},
			wantIDs:    []string{"a", "c", "b"},
			wantUnread: 3,
		},
		{
			name: "received twice keeps one copy",
			events: []ServerEvent{
				NotificationReceived{Notification: note("a", 1, false)},
				NotificationReceived{Notification: note("a", 1, true)},
			},
			wantIDs:    []string{"a"},
			wantUnread: 0,
		},
		{
			name: "updated replaces in place",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 2, false), note("b", 1, false)}},
				NotificationUpdated{Notification: note("b", 1, true)},
			},
			wantIDs:    []string{"a", "b"},
			wantUnread: 1,
		},
		{
			name: "updated for an unknown id is ignored",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 2, false)}},
				NotificationUpdated{Notification: note("z", 9, true)},
			},
			wantIDs:    []string{"a"},
			wantUnread: 1,
		},
		{
			name: "bulk update replaces known ids and appends the rest",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 2, false), note("b", 1, false)}},
				NotificationsUpdated{Notifications: []model.Notification{note("a", 2, true), note("c", 5, true)}},
			},
			wantIDs:    []string{"c", "a", "b"},
			wantUnread: 1,
		},
		{
			name: "deleted removes and is silent for unknown ids",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 2, false), note("b", 1, false)}},
				NotificationDeleted{ID: "a"},
				NotificationDeleted{ID: "a"},
				NotificationDeleted{ID: "nope"},
			},
			wantIDs:    []string{"b"},
			wantUnread: 1,
		},
		{
			name: "non notification events are ignored",
			events: []ServerEvent{
				Loaded{Notifications: []model.Notification{note("a", 2, false)}},
				JoinedGroup{Group: "ops"},
				NotificationAcknowledged{ID: "a", ConnectionID: "c1"},
			},
			wantIDs:    []string{"a"},
			wantUnread: 1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewProjection()
			for _, ev := range tt.events {
				p.Apply(ev)
			}
			snap := p.Snapshot()
			assert.Equal(t, tt.wantIDs, ids(snap.Notifications))
			assert.Equal(t, tt.wantUnread, snap.UnreadCount)
			assert.Equal(t, tt.wantUnread, p.UnreadCount())
		})
	}
}

func TestProjectionEqualTimestampsKeepOrder(t *testing.T) {
	t.Parallel()
	p := NewProjection()
	p.Load([]model.Notification{note("a", 1, false), note("b", 1, false)})
	p.Apply(NotificationReceived{Notification: note("c", 1, false)})

	assert.Equal(t, []string{"c", "a", "b"}, ids(p.Snapshot().Notifications))
}

func TestProjectionLocalMutations(t *testing.T) {
	t.Parallel()
	p := NewProjection()
	p.Load([]model.Notification{note("a", 1, false), note("b", 2, false), note("c", 3, true)})
	require.Equal(t, 2, p.UnreadCount())

	assert.True(t, p.MarkRead("a"))
	assert.True(t, p.MarkRead("a"))
	assert.False(t, p.MarkRead("missing"))
	assert.Equal(t, 1, p.UnreadCount())

	p.MarkAllRead()
	assert.Equal(t, 0, p.UnreadCount())

	assert.True(t, p.Remove("b"))
	assert.False(t, p.Remove("b"))
	_, ok := p.Get("b")
	assert.False(t, ok)

	got, ok := p.Get("c")
	require.True(t, ok)
	assert.True(t, got.IsRead)
}

func TestProjectionFilter(t *testing.T) {
	t.Parallel()
	alice := note("a", 1, false)
	alice.UserID = model.StringPtr("alice")
	alice.Type = model.TypeWarning
	bob := note("b", 2, true)
	bob.UserID = model.StringPtr("bob")
	everyone := note("c", 3, false)

	p := NewProjection()
	p.Load([]model.Notification{alice, bob, everyone})

	warning := model.TypeWarning
	unread := false
	read := true

	assert.Equal(t, []string{"a"}, ids(p.Filter(Filter{Type: &warning})))
	assert.Equal(t, []string{"c", "a"}, ids(p.Filter(Filter{IsRead: &unread})))
	assert.Equal(t, []string{"b"}, ids(p.Filter(Filter{IsRead: &read})))
	assert.Equal(t, []string{"b"}, ids(p.Filter(Filter{UserID: model.StringPtr("bob")})))
	assert.Equal(t, []string{"c"}, ids(p.Filter(Filter{UserID: model.StringPtr("")})))
	assert.Len(t, p.Filter(Filter{}), 3)
}

func TestProjectionSubscribeDeliversLatest(t *testing.T) {
	t.Parallel()
	p := NewProjection()
	ch := p.Subscribe()

	p.Apply(NotificationReceived{Notification: note("a", 1, false)})
	p.Apply(NotificationReceived{Notification: note("b", 2, false)})

	snap := <-ch
	assert.Equal(t, []string{"b", "a"}, ids(snap.Notifications))
	assert.Equal(t, 2, snap.UnreadCount)

	select {
	case <-ch:
		t.Fatal("stale snapshot left in the channel")
	default:
	}

	p.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	p.Apply(NotificationDeleted{ID: "a"})
}

func TestProjectionSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	p := NewProjection()
	p.Load([]model.Notification{note("a", 1, false)})

	snap := p.Snapshot()
	snap.Notifications[0].IsRead = true

	assert.Equal(t, 1, p.UnreadCount())
	got, _ := p.Get("a")
	assert.False(t, got.IsRead)
}
