package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/hub"
	"github.com/fathima-sithara/notification-hub/internal/metrics"
	"github.com/fathima-sithara/notification-hub/internal/service"
	"github.com/fathima-sithara/notification-hub/internal/ws"
)

type Options struct {
	AppName         string
	BasePath        string
	HubPath         string
	CORSOrigins     []string
	RateLimitPerMin int
	RateBurst       int
	MetricsEnabled  bool
	MetricsPath     string
}

// NewServer builds the fiber app. ctx bounds background work such as the rate limiter sweep.
func NewServer(ctx context.Context, opts Options, svc *service.NotificationService, h *hub.Hub, wsh *ws.Handler, log *zap.Logger) *fiber.App {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")
	if opts.BasePath == "" {
		opts.BasePath = "/api"
	}
	if opts.HubPath == "" {
		opts.HubPath = "/hub"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(RequestLogger(log))
	if len(opts.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(opts.CORSOrigins, ","),
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders:     "Origin, Content-Type, Accept",
			AllowCredentials: !containsWildcard(opts.CORSOrigins),
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "connections": h.Count()})
	})
	if opts.MetricsEnabled {
		app.Get(opts.MetricsPath, adaptor.HTTPHandler(metrics.Handler()))
	}

	app.Get(opts.HubPath, ws.RequireUpgrade, wsh.Upgrade())

	api := app.Group(opts.BasePath)
	if opts.RateLimitPerMin > 0 {
		api.Use(NewIPRateLimiter(ctx, opts.RateLimitPerMin, opts.RateBurst, log).Handler())
	}

	nh := NewNotificationHandler(svc)
	notifications := api.Group("/notifications")
	notifications.Get("/", nh.List)
	notifications.Post("/", nh.Send)
	notifications.Post("/test", nh.SendTest)
	notifications.Get("/user/:userId?", nh.ListForUser)
	notifications.Put("/user/:userId/read-all", nh.MarkAllRead)
	notifications.Get("/:id", nh.Get)
	notifications.Put("/:id/read", nh.MarkRead)
	notifications.Delete("/:id", nh.Delete)

	return app
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
