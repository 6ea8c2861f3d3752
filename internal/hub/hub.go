package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/metrics"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
)

type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeGroup  Scope = "group"
	ScopeUser   Scope = "user"
	ScopeOthers Scope = "others"
)

// Delivery is an addressed, already encoded frame. Key is the group or user id, or the
// excluded connection id for ScopeOthers.
type Delivery struct {
	Origin string          `json:"origin"`
	Scope  Scope           `json:"scope"`
	Key    string          `json:"key,omitempty"`
	Target string          `json:"target"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay forwards deliveries to hub instances in other processes.
type Relay interface {
	Publish(ctx context.Context, d Delivery) error
}

// Presence records which connections are live, for operators and other instances.
type Presence interface {
	Add(ctx context.Context, c *Client) error
	Remove(ctx context.Context, c *Client) error
}

type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	groups      map[string]map[*Client]struct{}
	memberships map[*Client]map[string]struct{}

	origin   string
	relay    Relay
	presence Presence
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:     make(map[string]*Client),
		groups:      make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
		origin:      uuid.NewString(),
		log:         log.Named("hub"),
	}
}

// Origin identifies this hub instance on the relay.
func (h *Hub) Origin() string { return h.origin }

// SetRelay must be called before the hub starts serving connections.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

// SetPresence must be called before the hub starts serving connections.
func (h *Hub) SetPresence(p Presence) { h.presence = p }

// Register adds c and acknowledges the connection to c alone.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.memberships[c] = make(map[string]struct{})
	h.mu.Unlock()

	metrics.Connections.Inc()
	h.log.Info("client connected", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))

	if frame, err := protocol.Event(protocol.ConnectionEstablished, c.ID); err == nil {
		h.push(c, protocol.ConnectionEstablished, "caller", frame)
	}
	if h.presence != nil {
		if err := h.presence.Add(ctx, c); err != nil {
			h.log.Warn("presence add failed", zap.String("conn_id", c.ID), zap.Error(err))
		}
	}
}

// Unregister removes c from the registry and all groups and closes it. A non-nil cause marks
// an abnormal disconnect.
func (h *Hub) Unregister(ctx context.Context, c *Client, cause error) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for group := range h.memberships[c] {
		h.removeMemberLocked(group, c)
	}
	delete(h.memberships, c)
	h.mu.Unlock()

	c.Close()
	metrics.Connections.Dec()
	if cause != nil {
		h.log.Error("client disconnected with error", zap.String("conn_id", c.ID), zap.Error(cause))
	} else {
		h.log.Info("client disconnected", zap.String("conn_id", c.ID))
	}
	if h.presence != nil {
		if err := h.presence.Remove(ctx, c); err != nil {
			h.log.Warn("presence remove failed", zap.String("conn_id", c.ID), zap.Error(err))
		}
	}
}

func (h *Hub) JoinGroup(ctx context.Context, connID, group string) error {
	if group == "" {
		return fmt.Errorf("group name cannot be empty: %w", apperr.ErrInvalidArgument)
	}
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("connection %s: %w", connID, apperr.ErrNotFound)
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]struct{})
	}
	h.groups[group][c] = struct{}{}
	h.memberships[c][group] = struct{}{}
	h.mu.Unlock()

	h.log.Info("client joined group", zap.String("conn_id", connID), zap.String("group", group))
	return h.reply(c, protocol.JoinedGroup, group)
}

func (h *Hub) LeaveGroup(ctx context.Context, connID, group string) error {
	if group == "" {
		return fmt.Errorf("group name cannot be empty: %w", apperr.ErrInvalidArgument)
	}
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("connection %s: %w", connID, apperr.ErrNotFound)
	}
	h.removeMemberLocked(group, c)
	delete(h.memberships[c], group)
	h.mu.Unlock()

	h.log.Info("client left group", zap.String("conn_id", connID), zap.String("group", group))
	return h.reply(c, protocol.LeftGroup, group)
}

// Acknowledge tells every other connection that connID has seen the notification.
func (h *Hub) Acknowledge(ctx context.Context, notificationID, connID string) error {
	h.log.Info("notification acknowledged", zap.String("conn_id", connID), zap.String("notification_id", notificationID))
	return h.SendToOthers(ctx, connID, protocol.NotificationAcknowledged, notificationID, connID)
}

func (h *Hub) Broadcast(ctx context.Context, target string, args ...any) error {
	return h.dispatch(ctx, ScopeAll, "", target, args)
}

func (h *Hub) SendToGroup(ctx context.Context, group, target string, args ...any) error {
	return h.dispatch(ctx, ScopeGroup, group, target, args)
}

// SendToUser reaches connections opened for userID and connections in the group named userID.
func (h *Hub) SendToUser(ctx context.Context, userID, target string, args ...any) error {
	return h.dispatch(ctx, ScopeUser, userID, target, args)
}

func (h *Hub) SendToOthers(ctx context.Context, exceptConnID, target string, args ...any) error {
	return h.dispatch(ctx, ScopeOthers, exceptConnID, target, args)
}

// DeliverRelayed applies a delivery published by another instance. Our own are ignored.
func (h *Hub) DeliverRelayed(d Delivery) {
	if d.Origin == h.origin {
		return
	}
	metrics.RelayMessages.WithLabelValues("in").Inc()
	h.deliverLocal(d)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Groups lists the groups connID belongs to.
func (h *Hub) Groups(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(h.memberships[c]))
	for g := range h.memberships[c] {
		out = append(out, g)
	}
	return out
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.groups = make(map[string]map[*Client]struct{})
	h.memberships = make(map[*Client]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
		metrics.Connections.Dec()
	}
}

func (h *Hub) dispatch(ctx context.Context, scope Scope, key, target string, args []any) error {
	frame, err := protocol.Event(target, args...)
	if err != nil {
		return err
	}
	d := Delivery{Origin: h.origin, Scope: scope, Key: key, Target: target, Frame: frame}
	h.deliverLocal(d)

	if h.relay != nil {
		if err := h.relay.Publish(ctx, d); err != nil {
			h.log.Warn("relay publish failed", zap.String("target", target), zap.Error(err))
		} else {
			metrics.RelayMessages.WithLabelValues("out").Inc()
		}
	}
	return nil
}

func (h *Hub) deliverLocal(d Delivery) {
	h.mu.RLock()
	recipients := h.recipientsLocked(d.Scope, d.Key)
	h.mu.RUnlock()

	for _, c := range recipients {
		h.push(c, d.Target, d.Scope, d.Frame)
	}
	h.log.Debug("event dispatched",
		zap.String("target", d.Target),
		zap.String("scope", string(d.Scope)),
		zap.String("key", d.Key),
		zap.Int("recipients", len(recipients)))
}

// recipientsLocked must be called with h.mu held.
func (h *Hub) recipientsLocked(scope Scope, key string) []*Client {
	var out []*Client
	switch scope {
	case ScopeAll:
		out = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			out = append(out, c)
		}
	case ScopeOthers:
		for id, c := range h.clients {
			if id != key {
				out = append(out, c)
			}
		}
	case ScopeGroup:
		for c := range h.groups[key] {
			out = append(out, c)
		}
	case ScopeUser:
		seen := make(map[*Client]struct{})
		for _, c := range h.clients {
			if c.UserID == key {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
		for c := range h.groups[key] {
			if _, dup := seen[c]; !dup {
				out = append(out, c)
			}
		}
	}
	return out
}

// removeMemberLocked must be called with h.mu held.
func (h *Hub) removeMemberLocked(group string, c *Client) {
	if set, ok := h.groups[group]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.groups, group)
		}
	}
}

func (h *Hub) reply(c *Client, target string, args ...any) error {
	frame, err := protocol.Event(target, args...)
	if err != nil {
		return err
	}
	h.push(c, target, "caller", frame)
	return nil
}

func (h *Hub) push(c *Client, target string, scope Scope, frame []byte) {
	if c.Enqueue(frame) {
		metrics.EventsPushed.WithLabelValues(target, string(scope)).Inc()
		return
	}
	// slow or closing consumer: best effort, drop
	metrics.FramesDropped.Inc()
	h.log.Debug("frame dropped", zap.String("conn_id", c.ID), zap.String("target", target))
}
