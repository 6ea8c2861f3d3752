package client

import (
	"fmt"

	"github.com/fathima-sithara/notification-hub/internal/model"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChange is emitted on every transition, and once more when the hub assigns the connection
// id. Reconnected marks a Connected state reached from Reconnecting.
type StateChange struct {
	State        State
	Previous     State
	ConnectionID string
	Reconnected  bool
}

func (c StateChange) Connected() bool    { return c.State == Connected }
func (c StateChange) Reconnecting() bool { return c.State == Reconnecting }

// ServerEvent is one decoded push from the hub, or a Loaded list fetched over HTTP.
type ServerEvent interface {
	isServerEvent()
}

type ConnectionEstablished struct{ ConnectionID string }
type NotificationReceived struct{ Notification model.Notification }
type NotificationUpdated struct{ Notification model.Notification }
type NotificationsUpdated struct{ Notifications []model.Notification }
type NotificationDeleted struct{ ID string }
type JoinedGroup struct{ Group string }
type LeftGroup struct{ Group string }
type NotificationAcknowledged struct{ ID, ConnectionID string }

// Loaded replaces the whole projection with a server ordered list.
type Loaded struct{ Notifications []model.Notification }

func (ConnectionEstablished) isServerEvent()    {}
func (NotificationReceived) isServerEvent()     {}
func (NotificationUpdated) isServerEvent()      {}
func (NotificationsUpdated) isServerEvent()     {}
func (NotificationDeleted) isServerEvent()      {}
func (JoinedGroup) isServerEvent()              {}
func (LeftGroup) isServerEvent()                {}
func (NotificationAcknowledged) isServerEvent() {}
func (Loaded) isServerEvent()                   {}

// DecodeEvent turns an event frame into its typed form.
func DecodeEvent(env protocol.Envelope) (ServerEvent, error) {
	if env.Type != protocol.TypeEvent {
		return nil, fmt.Errorf("frame type %q is not an event", env.Type)
	}
	switch env.Target {
	case protocol.ConnectionEstablished:
		id, err := env.StringArg(0)
		return ConnectionEstablished{ConnectionID: id}, err
	case protocol.ReceiveNotification:
		var n model.Notification
		err := env.Arg(0, &n)
		return NotificationReceived{Notification: n}, err
	case protocol.NotificationUpdated:
		var n model.Notification
		err := env.Arg(0, &n)
		return NotificationUpdated{Notification: n}, err
	case protocol.NotificationsUpdated:
		var list []model.Notification
		err := env.Arg(0, &list)
		return NotificationsUpdated{Notifications: list}, err
	case protocol.NotificationDeleted:
		id, err := env.StringArg(0)
		return NotificationDeleted{ID: id}, err
	case protocol.JoinedGroup:
		g, err := env.StringArg(0)
		return JoinedGroup{Group: g}, err
	case protocol.LeftGroup:
		g, err := env.StringArg(0)
		return LeftGroup{Group: g}, err
	case protocol.NotificationAcknowledged:
		id, err := env.StringArg(0)
		if err != nil {
			return nil, err
		}
		conn, err := env.StringArg(1)
		return NotificationAcknowledged{ID: id, ConnectionID: conn}, err
	default:
		return nil, fmt.Errorf("unknown event %q", env.Target)
	}
}
