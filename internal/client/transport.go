package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// Conn is one open transport. ReadMessage is only called from a single goroutine;
// WriteMessage and Close may be called concurrently with it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketTransport dials the hub endpoint, adding userId to the query when set.
type WebSocketTransport struct {
	URL           string
	UserID        string
	Header        http.Header
	Dialer        *websocket.Dialer
	WriteDeadline time.Duration
}

func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("hub url: %w", err)
	}
	if t.UserID != "" {
		q := u.Query()
		q.Set("userId", t.UserID)
		u.RawQuery = q.Encode()
	}
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	ws, resp, err := d.DialContext(ctx, u.String(), t.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	wd := t.WriteDeadline
	if wd <= 0 {
		wd = 10 * time.Second
	}
	return &wsConn{ws: ws, writeDeadline: wd}, nil
}

type wsConn struct {
	ws            *websocket.Conn
	writeDeadline time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, b, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return b, nil
		}
	}
}

func (c *wsConn) WriteMessage(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}
