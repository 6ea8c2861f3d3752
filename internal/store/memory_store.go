package store

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
)

// MemoryStore keeps notifications in insertion order. Timestamps never go backwards in that
// order, so walking the list from the back yields newest-first without sorting.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*list.Element
	order *list.List
	last  time.Time
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*list.Element),
		order: list.New(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) List() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(model.Notification) bool { return true })
}

func (s *MemoryStore) ListForUser(userID string) ([]model.Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty: %w", apperr.ErrInvalidArgument)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(n model.Notification) bool { return n.VisibleTo(userID) }), nil
}

func (s *MemoryStore) Get(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	return *el.Value.(*model.Notification), true
}

// Add stores n as a new unread notification stamped with the current time.
func (s *MemoryStore) Add(n model.Notification) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, dup := s.byID[n.ID]; dup {
		return model.Notification{}, fmt.Errorf("notification %s already exists: %w", n.ID, apperr.ErrInvalidArgument)
	}
	ts := s.now()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	n.Timestamp = ts
	n.IsRead = false
	if n.UserID != nil && *n.UserID == "" {
		n.UserID = nil
	}

	stored := n
	s.byID[n.ID] = s.order.PushBack(&stored)
	return n, nil
}

func (s *MemoryStore) MarkRead(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	n := el.Value.(*model.Notification)
	n.IsRead = true
	return *n, true
}

// MarkAllRead marks every unread notification visible to userID and returns the ones it changed.
func (s *MemoryStore) MarkAllRead(userID string) ([]model.Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty: %w", apperr.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]model.Notification, 0)
	for el := s.order.Back(); el != nil; el = el.Prev() {
		n := el.Value.(*model.Notification)
		if n.IsRead || !n.VisibleTo(userID) {
			continue
		}
		n.IsRead = true
		changed = append(changed, *n)
	}
	return changed, nil
}

func (s *MemoryStore) Delete(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	delete(s.byID, id)
	return *s.order.Remove(el).(*model.Notification), true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// UnreadCount counts unread notifications visible to userID, or all of them when userID is empty.
func (s *MemoryStore) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for el := s.order.Front(); el != nil; el = el.Next() {
		n := el.Value.(*model.Notification)
		if n.IsRead {
			continue
		}
		if userID == "" || n.VisibleTo(userID) {
			count++
		}
	}
	return count
}

// collect must be called with s.mu held.
func (s *MemoryStore) collect(keep func(model.Notification) bool) []model.Notification {
	out := make([]model.Notification, 0, s.order.Len())
	for el := s.order.Back(); el != nil; el = el.Prev() {
		n := *el.Value.(*model.Notification)
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
