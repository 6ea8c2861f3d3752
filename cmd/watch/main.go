// Command watch connects to a notification hub and logs what arrives, keeping a local
// projection of the notifications visible to one user.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/client"
	"github.com/fathima-sithara/notification-hub/internal/config"
	"github.com/fathima-sithara/notification-hub/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("NOTIFY_CONFIG"), "path to a YAML config file")
	userID := flag.String("user", "", "user id to watch (overrides client.user_id)")
	groups := flag.String("groups", "", "comma separated groups to join once connected")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if *userID != "" {
		cfg.Client.UserID = *userID
	}

	lg, err := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, App: "notification-watch", Env: cfg.App.Env})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	policy := client.NewReconnectPolicy()
	policy.MaxRetries = cfg.Client.MaxRetries
	policy.BaseInterval = cfg.Client.BaseInterval
	policy.MaxDelay = cfg.Client.MaxDelay
	policy.MaxJitter = cfg.Client.MaxJitter

	m := client.NewManager(&client.WebSocketTransport{
		URL:           cfg.Client.HubURL,
		UserID:        cfg.Client.UserID,
		WriteDeadline: cfg.WS.WriteDeadline,
	}, client.ManagerOptions{Policy: policy, Log: lg})

	joinCh := make(chan struct{}, 1)
	m.OnStateChange(func(c client.StateChange) {
		lg.Info("connection state",
			zap.Stringer("state", c.State),
			zap.String("connection_id", c.ConnectionID),
			zap.Bool("reconnected", c.Reconnected))
		if c.Connected() && c.ConnectionID != "" {
			select {
			case joinCh <- struct{}{}:
			default:
			}
		}
	})
	m.OnEvent(func(ev client.ServerEvent) {
		switch e := ev.(type) {
		case client.NotificationReceived:
			lg.Info("notification",
				zap.String("id", e.Notification.ID),
				zap.Stringer("type", e.Notification.Type),
				zap.String("title", e.Notification.Title),
				zap.String("message", e.Notification.Message))
		case client.NotificationAcknowledged:
			lg.Debug("acknowledged elsewhere", zap.String("id", e.ID), zap.String("connection_id", e.ConnectionID))
		}
	})

	api := client.NewAPI(client.APIConfig{BaseURL: cfg.Client.APIURL})
	sess := client.NewSession(m, api, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snaps := sess.Projection.Subscribe()
	defer sess.Projection.Unsubscribe(snaps)

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = sess.Initialize(initCtx, cfg.Client.UserID)
	cancel()
	if err != nil {
		lg.Error("initial load failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sess.Close(shutdownCtx); err != nil {
				lg.Warn("close", zap.Error(err))
			}
			cancel()
			lg.Info("stopped")
			return
		case <-joinCh:
			for _, g := range splitGroups(*groups) {
				if err := m.JoinGroup(ctx, g); err != nil {
					lg.Warn("join group", zap.String("group", g), zap.Error(err))
				}
			}
		case s := <-snaps:
			lg.Info("projection", zap.Int("total", len(s.Notifications)), zap.Int("unread", s.UnreadCount))
		}
	}
}

func splitGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
