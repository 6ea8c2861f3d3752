package client

import (
	"slices"
	"sync"

	"github.com/fathima-sithara/notification-hub/internal/model"
)

// Snapshot is a point in time copy of the projection.
type Snapshot struct {
	Notifications []model.Notification
	UnreadCount   int
}

// Filter narrows Projection.Filter. Nil fields match everything.
type Filter struct {
	Type   *model.Type
	IsRead *bool
	UserID *string
}

func (f Filter) match(n model.Notification) bool {
	if f.Type != nil && n.Type != *f.Type {
		return false
	}
	if f.IsRead != nil && n.IsRead != *f.IsRead {
		return false
	}
	if f.UserID != nil && n.Recipient() != *f.UserID {
		return false
	}
	return true
}

// Projection is the client's local view of the notification list. Items are unique by id and
// kept newest first; the unread count is recomputed from the items after every change.
type Projection struct {
	mu     sync.RWMutex
	items  []model.Notification
	unread int

	subsMu sync.Mutex
	subs   map[chan Snapshot]struct{}
}

func NewProjection() *Projection {
	return &Projection{subs: make(map[chan Snapshot]struct{})}
}

// Apply merges a server event. Events that do not touch notifications are ignored.
func (p *Projection) Apply(ev ServerEvent) {
	switch e := ev.(type) {
	case Loaded:
		p.mutate(func(items []model.Notification) []model.Notification {
			return dedupe(e.Notifications)
		})
	case NotificationReceived:
		p.mutate(func(items []model.Notification) []model.Notification {
			if i := indexOf(items, e.Notification.ID); i >= 0 {
				items[i] = e.Notification
				return items
			}
			return append([]model.Notification{e.Notification}, items...)
		})
	case NotificationUpdated:
		p.mutate(func(items []model.Notification) []model.Notification {
			if i := indexOf(items, e.Notification.ID); i >= 0 {
				items[i] = e.Notification
			}
			return items
		})
	case NotificationsUpdated:
		p.mutate(func(items []model.Notification) []model.Notification {
			for _, n := range e.Notifications {
				if i := indexOf(items, n.ID); i >= 0 {
					items[i] = n
				} else {
					items = append(items, n)
				}
			}
			return items
		})
	case NotificationDeleted:
		p.Remove(e.ID)
	}
}

// Load replaces the whole list.
func (p *Projection) Load(list []model.Notification) {
	p.Apply(Loaded{Notifications: list})
}

// MarkRead flags one item read locally. It reports false when id is not present.
func (p *Projection) MarkRead(id string) bool {
	found := false
	p.mutate(func(items []model.Notification) []model.Notification {
		if i := indexOf(items, id); i >= 0 {
			items[i].IsRead = true
			found = true
		}
		return items
	})
	return found
}

func (p *Projection) MarkAllRead() {
	p.mutate(func(items []model.Notification) []model.Notification {
		for i := range items {
			items[i].IsRead = true
		}
		return items
	})
}

func (p *Projection) Remove(id string) bool {
	found := false
	p.mutate(func(items []model.Notification) []model.Notification {
		if i := indexOf(items, id); i >= 0 {
			found = true
			return slices.Delete(items, i, i+1)
		}
		return items
	})
	return found
}

func (p *Projection) Get(id string) (model.Notification, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i := indexOf(p.items, id); i >= 0 {
		return p.items[i], true
	}
	return model.Notification{}, false
}

func (p *Projection) Filter(f Filter) []model.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Notification, 0, len(p.items))
	for _, n := range p.items {
		if f.match(n) {
			out = append(out, n)
		}
	}
	return out
}

func (p *Projection) UnreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unread
}

func (p *Projection) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after each change. A slow
// reader only ever sees the most recent one.
func (p *Projection) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	p.subsMu.Lock()
	p.subs[ch] = struct{}{}
	p.subsMu.Unlock()
	return ch
}

func (p *Projection) Unsubscribe(ch <-chan Snapshot) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for c := range p.subs {
		if c == ch {
			delete(p.subs, c)
			close(c)
			return
		}
	}
}

func (p *Projection) mutate(fn func([]model.Notification) []model.Notification) {
	p.mu.Lock()
	items := fn(slices.Clone(p.items))
	slices.SortStableFunc(items, func(a, b model.Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	p.items = items
	p.unread = unread
	p.publish(p.snapshotLocked())
	p.mu.Unlock()
}

func (p *Projection) publish(snap Snapshot) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (p *Projection) snapshotLocked() Snapshot {
	return Snapshot{Notifications: slices.Clone(p.items), UnreadCount: p.unread}
}

func indexOf(items []model.Notification, id string) int {
	return slices.IndexFunc(items, func(n model.Notification) bool { return n.ID == id })
}

// dedupe keeps the first occurrence of each id.
func dedupe(list []model.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, n := range list {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}
