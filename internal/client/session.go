package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
)

// Session ties a Manager and an API client to one Projection. Pushed events are merged as
// they arrive; REST writes update the projection once the server accepts them.
type Session struct {
	Manager    *Manager
	API        *API
	Projection *Projection

	log    *zap.Logger
	userID string
}

func NewSession(m *Manager, api *API, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		Manager:    m,
		API:        api,
		Projection: NewProjection(),
		log:        log.Named("session"),
	}
	m.OnEvent(s.Projection.Apply)
	return s
}

// Initialize connects to the hub and loads the notifications visible to userID, or all of
// them when userID is empty. A failed connect is logged and left to the retry policy; a failed
// load is returned.
func (s *Session) Initialize(ctx context.Context, userID string) error {
	s.userID = userID
	if err := s.Manager.Start(ctx); err != nil {
		s.log.Warn("hub connect failed, retrying in background", zap.Error(err))
	}
	return s.Refresh(ctx)
}

// Refresh replaces the projection with the server's current list.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		list []model.Notification
		err  error
	)
	if s.userID != "" {
		list, err = s.API.ListForUser(ctx, s.userID)
	} else {
		list, err = s.API.List(ctx)
	}
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	s.Projection.Load(list)
	s.log.Debug("notifications loaded", zap.Int("count", len(list)))
	return nil
}

func (s *Session) Send(ctx context.Context, d model.Draft) (model.Notification, error) {
	return s.API.Send(ctx, d)
}

func (s *Session) MarkRead(ctx context.Context, id string) error {
	if err := s.API.MarkRead(ctx, id); err != nil {
		return err
	}
	s.Projection.MarkRead(id)
	return nil
}

func (s *Session) MarkAllRead(ctx context.Context) error {
	if s.userID == "" {
		return fmt.Errorf("mark all read: session has no user: %w", apperr.ErrInvalidArgument)
	}
	if err := s.API.MarkAllRead(ctx, s.userID); err != nil {
		return err
	}
	s.Projection.MarkAllRead()
	return nil
}

func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.API.Delete(ctx, id); err != nil {
		return err
	}
	s.Projection.Remove(id)
	return nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.Manager.Stop(ctx)
}
