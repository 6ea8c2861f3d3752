package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/notification-hub/internal/hub"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
)

var errRateLimited = errors.New("rate limit exceeded")

type Options struct {
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteDeadline    time.Duration
	MaxMessageSize   int64
	SendBuffer       int
	InvokeRatePerSec int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InvokeRatePerSec <= 0 {
		o.InvokeRatePerSec = 20
	}
	return o
}

// Handler serves /hub connections: one write goroutine and a blocking read loop per socket.
type Handler struct {
	hub  *hub.Hub
	opts Options
	log  *zap.Logger
}

func NewHandler(h *hub.Hub, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{hub: h, opts: opts.withDefaults(), log: log.Named("ws")}
}

// RequireUpgrade rejects plain HTTP requests to the hub endpoint with 426.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Upgrade returns the fiber handler performing the websocket upgrade.
func (h *Handler) Upgrade() fiber.Handler {
	return websocket.New(h.Serve)
}

func (h *Handler) Serve(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := hub.NewClient(conn.Query("userId"), h.opts.SendBuffer)
	h.hub.Register(ctx, client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, client)
	}()

	cause := h.readPump(ctx, conn, client)
	h.hub.Unregister(ctx, client, cause)
	<-done
}

// readPump returns nil for a normal close and the read error otherwise.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, client *hub.Client) error {
	limiter := rate.NewLimiter(rate.Limit(h.opts.InvokeRatePerSec), h.opts.InvokeRatePerSec)

	conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || client.Closed() {
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		env, err := protocol.Decode(data)
		if err != nil || env.Type != protocol.TypeInvoke {
			h.log.Debug("ignoring frame", zap.String("conn_id", client.ID), zap.Error(err))
			continue
		}

		var result error
		if !limiter.Allow() {
			result = errRateLimited
		} else {
			result = h.invoke(ctx, client, env)
		}
		if result != nil {
			h.log.Warn("invocation failed",
				zap.String("conn_id", client.ID),
				zap.String("target", env.Target),
				zap.Error(result))
		}
		if env.ID != "" {
			client.Enqueue(protocol.Completion(env.ID, result))
		}
	}
}

func (h *Handler) invoke(ctx context.Context, client *hub.Client, env protocol.Envelope) error {
	switch env.Target {
	case protocol.InvokeJoinGroup:
		group, err := env.StringArg(0)
		if err != nil {
			return err
		}
		return h.hub.JoinGroup(ctx, client.ID, group)
	case protocol.InvokeLeaveGroup:
		group, err := env.StringArg(0)
		if err != nil {
			return err
		}
		return h.hub.LeaveGroup(ctx, client.ID, group)
	case protocol.InvokeAcknowledgeNotification:
		id, err := env.StringArg(0)
		if err != nil {
			return err
		}
		return h.hub.Acknowledge(ctx, id, client.ID)
	default:
		return fmt.Errorf("unknown method %q", env.Target)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Warn("write failed", zap.String("conn_id", client.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteDeadline)); err != nil {
				h.log.Debug("ping failed", zap.String("conn_id", client.ID), zap.Error(err))
				return
			}
		}
	}
}
