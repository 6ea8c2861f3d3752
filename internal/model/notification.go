package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
)

type Type int

const (
	TypeInfo Type = iota
	TypeSuccess
	TypeWarning
	TypeError
)

var typeNames = [...]string{"Info", "Success", "Warning", "Error"}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) Valid() bool { return t >= TypeInfo && t <= TypeError }

// ParseType accepts a type name in any case.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(i), nil
		}
	}
	return TypeInfo, fmt.Errorf("unknown notification type %q: %w", s, apperr.ErrInvalidArgument)
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

// UnmarshalJSON accepts either the numeric value or the name.
func (t *Type) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = TypeInfo
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseType(s)
		if err != nil {
			return err
		}
		*t = v
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("notification type: %w", apperr.ErrInvalidArgument)
	}
	if !Type(n).Valid() {
		return fmt.Errorf("notification type %d out of range: %w", n, apperr.ErrInvalidArgument)
	}
	*t = Type(n)
	return nil
}

// Notification is addressed to a single user when UserID is set and to everyone otherwise.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
	UserID    *string   `json:"userId,omitempty"`
}

func (n Notification) IsBroadcast() bool {
	return n.UserID == nil || *n.UserID == ""
}

// VisibleTo reports whether a reader listing for userID should see n.
func (n Notification) VisibleTo(userID string) bool {
	return n.IsBroadcast() || *n.UserID == userID
}

// Recipient returns the addressed user id, or "" for broadcasts.
func (n Notification) Recipient() string {
	if n.IsBroadcast() {
		return ""
	}
	return *n.UserID
}

// Draft is the client-supplied part of a notification.
type Draft struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Type    Type    `json:"type"`
	UserID  *string `json:"userId,omitempty"`
}

func (d Draft) Notification() *Notification {
	n := &Notification{
		Title:   d.Title,
		Message: d.Message,
		Type:    d.Type,
	}
	if d.UserID != nil && *d.UserID != "" {
		uid := *d.UserID
		n.UserID = &uid
	}
	return n
}

// StringPtr is a convenience for addressing drafts and notifications.
func StringPtr(s string) *string { return &s }
