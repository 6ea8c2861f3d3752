package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/metrics"
	"github.com/fathima-sithara/notification-hub/internal/model"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
	"github.com/fathima-sithara/notification-hub/internal/store"
)

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, target string, args ...any) error
	SendToUser(ctx context.Context, userID, target string, args ...any) error
}

type NotificationService struct {
	store  *store.MemoryStore
	push   Broadcaster
	events Publisher
	log    *zap.Logger
	now    func() time.Time
}

func New(st *store.MemoryStore, push Broadcaster, events Publisher, log *zap.Logger) *NotificationService {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{
		store:  st,
		push:   push,
		events: events,
		log:    log.Named("service"),
		now:    time.Now,
	}
}

func (s *NotificationService) List(ctx context.Context) []model.Notification {
	return s.store.List()
}

func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	out, err := s.store.ListForUser(userID)
	if err != nil {
		s.log.Warn("list for user rejected", zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (s *NotificationService) Get(ctx context.Context, id string) (model.Notification, error) {
	n, ok := s.store.Get(id)
	if !ok {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// Send stores n and pushes it to its recipient, or to everyone when it is a broadcast.
func (s *NotificationService) Send(ctx context.Context, n *model.Notification) (model.Notification, error) {
	if n == nil {
		s.log.Warn("send rejected: empty notification")
		metrics.Operations.WithLabelValues("send", "invalid").Inc()
		return model.Notification{}, fmt.Errorf("notification is required: %w", apperr.ErrInvalidArgument)
	}
	if !n.Type.Valid() {
		metrics.Operations.WithLabelValues("send", "invalid").Inc()
		return model.Notification{}, fmt.Errorf("notification type %d: %w", int(n.Type), apperr.ErrInvalidArgument)
	}

	stored, err := s.store.Add(*n)
	if err != nil {
		s.log.Warn("send rejected", zap.Error(err))
		metrics.Operations.WithLabelValues("send", "invalid").Inc()
		return model.Notification{}, err
	}
	metrics.Operations.WithLabelValues("send", "ok").Inc()
	s.log.Info("notification created",
		zap.String("id", stored.ID),
		zap.String("type", stored.Type.String()),
		zap.String("user_id", stored.Recipient()))

	if stored.IsBroadcast() {
		s.log.Debug("routing to all connections", zap.String("id", stored.ID))
		s.pushErr(s.push.Broadcast(ctx, protocol.ReceiveNotification, stored))
	} else {
		s.log.Debug("routing to user", zap.String("id", stored.ID), zap.String("user_id", stored.Recipient()))
		s.pushErr(s.push.SendToUser(ctx, stored.Recipient(), protocol.ReceiveNotification, stored))
	}
	s.emit(ctx, LifecycleEvent{Kind: EventCreated, UserID: stored.Recipient(), Notifications: []model.Notification{stored}})
	return stored, nil
}

// SendTest broadcasts a canned Info notification.
func (s *NotificationService) SendTest(ctx context.Context) (model.Notification, error) {
	now := s.now().UTC()
	return s.Send(ctx, &model.Notification{
		Title:   "Test Notification",
		Message: fmt.Sprintf("This is a test notification created at %s", now.Format("2006-01-02 15:04:05")),
		Type:    model.TypeInfo,
	})
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) (bool, error) {
	n, ok := s.store.MarkRead(id)
	if !ok {
		metrics.Operations.WithLabelValues("mark_read", "not_found").Inc()
		return false, nil
	}
	metrics.Operations.WithLabelValues("mark_read", "ok").Inc()
	s.log.Info("notification marked read", zap.String("id", id))

	s.pushErr(s.push.Broadcast(ctx, protocol.NotificationUpdated, n))
	s.emit(ctx, LifecycleEvent{Kind: EventRead, UserID: n.Recipient(), Notifications: []model.Notification{n}})
	return true, nil
}

// MarkAllRead marks everything visible to userID as read and pushes the changed set to that user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (bool, error) {
	changed, err := s.store.MarkAllRead(userID)
	if err != nil {
		s.log.Warn("mark all read rejected", zap.Error(err))
		metrics.Operations.WithLabelValues("mark_all_read", "invalid").Inc()
		return false, err
	}
	metrics.Operations.WithLabelValues("mark_all_read", "ok").Inc()
	s.log.Info("notifications marked read", zap.String("user_id", userID), zap.Int("changed", len(changed)))

	if changed == nil {
		changed = []model.Notification{}
	}
	s.pushErr(s.push.SendToUser(ctx, userID, protocol.NotificationsUpdated, changed))
	s.emit(ctx, LifecycleEvent{Kind: EventReadAll, UserID: userID, Notifications: changed})
	return true, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string) (bool, error) {
	n, ok := s.store.Delete(id)
	if !ok {
		metrics.Operations.WithLabelValues("delete", "not_found").Inc()
		return false, nil
	}
	metrics.Operations.WithLabelValues("delete", "ok").Inc()
	s.log.Info("notification deleted", zap.String("id", id))

	s.pushErr(s.push.Broadcast(ctx, protocol.NotificationDeleted, id))
	s.emit(ctx, LifecycleEvent{Kind: EventDeleted, UserID: n.Recipient(), Notifications: []model.Notification{n}})
	return true, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) int {
	return s.store.UnreadCount(userID)
}

func (s *NotificationService) pushErr(err error) {
	if err != nil {
		s.log.Error("push failed", zap.Error(err))
	}
}

func (s *NotificationService) emit(ctx context.Context, e LifecycleEvent) {
	e.At = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		metrics.EventPublishFailures.Inc()
		s.log.Warn("lifecycle event not published", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}
