// Package protocol defines the JSON frames exchanged over the notification hub WebSocket.
//
// Three frame types exist: server pushed events, client invocations, and the server's
// completion for each invocation. An invocation always gets exactly one completion; an
// empty Error means it succeeded.
package protocol

import (
	"encoding/json"
	"fmt"
)

type FrameType string

const (
	TypeEvent      FrameType = "event"
	TypeInvoke     FrameType = "invoke"
	TypeCompletion FrameType = "completion"
)

// Server to client event targets.
const (
	ConnectionEstablished    = "ConnectionEstablished"
	ReceiveNotification      = "ReceiveNotification"
	NotificationUpdated      = "NotificationUpdated"
	NotificationsUpdated     = "NotificationsUpdated"
	NotificationDeleted      = "NotificationDeleted"
	JoinedGroup              = "JoinedGroup"
	LeftGroup                = "LeftGroup"
	NotificationAcknowledged = "NotificationAcknowledged"
)

// Client to server invocation targets.
const (
	InvokeJoinGroup               = "JoinGroup"
	InvokeLeaveGroup              = "LeaveGroup"
	InvokeAcknowledgeNotification = "AcknowledgeNotification"
)

type Envelope struct {
	Type   FrameType         `json:"type"`
	ID     string            `json:"id,omitempty"`
	Target string            `json:"target,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Event encodes a server pushed event frame.
func Event(target string, args ...any) ([]byte, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", target, err)
	}
	return json.Marshal(Envelope{Type: TypeEvent, Target: target, Args: raw})
}

// Invoke encodes a client invocation frame.
func Invoke(id, target string, args ...any) ([]byte, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", target, err)
	}
	return json.Marshal(Envelope{Type: TypeInvoke, ID: id, Target: target, Args: raw})
}

// Completion encodes the reply to invocation id. A nil err means success.
func Completion(id string, err error) []byte {
	env := Envelope{Type: TypeCompletion, ID: id}
	if err != nil {
		env.Error = err.Error()
	}
	b, _ := json.Marshal(env)
	return b
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("frame without type")
	}
	return env, nil
}

// Arg decodes argument i into v.
func (e Envelope) Arg(i int, v any) error {
	if i >= len(e.Args) {
		return fmt.Errorf("%s: missing argument %d", e.Target, i)
	}
	if err := json.Unmarshal(e.Args[i], v); err != nil {
		return fmt.Errorf("%s: argument %d: %w", e.Target, i, err)
	}
	return nil
}

// StringArg decodes argument i as a string.
func (e Envelope) StringArg(i int) (string, error) {
	var s string
	err := e.Arg(i, &s)
	return s, err
}

func encodeArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
