package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/notification-hub/internal/model"
)

type EventKind string

const (
	EventCreated EventKind = "created"
	EventRead    EventKind = "read"
	EventReadAll EventKind = "read_all"
	EventDeleted EventKind = "deleted"
)

// LifecycleEvent is the record emitted to the event stream after each successful mutation.
type LifecycleEvent struct {
	Kind          EventKind            `json:"kind"`
	At            time.Time            `json:"at"`
	UserID        string               `json:"userId,omitempty"`
	Notifications []model.Notification `json:"notifications,omitempty"`
}

// Key groups records for the same recipient on one partition.
func (e LifecycleEvent) Key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return "broadcast"
}

type Publisher interface {
	Publish(ctx context.Context, e LifecycleEvent) error
}

// NopPublisher drops every record. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }
