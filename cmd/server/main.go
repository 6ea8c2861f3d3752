package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/api"
	"github.com/fathima-sithara/notification-hub/internal/config"
	"github.com/fathima-sithara/notification-hub/internal/hub"
	"github.com/fathima-sithara/notification-hub/internal/kafka"
	"github.com/fathima-sithara/notification-hub/internal/logger"
	"github.com/fathima-sithara/notification-hub/internal/relay"
	"github.com/fathima-sithara/notification-hub/internal/service"
	"github.com/fathima-sithara/notification-hub/internal/store"
	"github.com/fathima-sithara/notification-hub/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("NOTIFY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, App: cfg.App.Name, Env: cfg.App.Env})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	h := hub.NewHub(lg)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			lg.Fatal("redis ping", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		rl := relay.New(rdb, relay.Options{
			Channel:     cfg.Redis.Channel,
			Prefix:      cfg.Redis.Prefix,
			PresenceTTL: cfg.Redis.PresenceTTL,
		}, lg)
		h.SetRelay(rl)
		h.SetPresence(rl)
		go func() {
			if err := rl.Run(ctx, h.DeliverRelayed); err != nil {
				lg.Error("relay stopped", zap.Error(err))
			}
		}()
		lg.Info("redis relay enabled", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
	}

	var (
		events   service.Publisher = service.NopPublisher{}
		producer *kafka.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, kafka.BreakerOptions{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}, lg)
		events = producer
		lg.Info("kafka event stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.TopicEvents))
	}

	svc := service.New(store.NewMemoryStore(), h, events, lg)

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TopicInbound != "" {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInbound, cfg.Kafka.GroupID, svc, lg)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				lg.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
		lg.Info("kafka ingestion enabled", zap.String("topic", cfg.Kafka.TopicInbound))
	}

	wsh := ws.NewHandler(h, ws.Options{
		PingInterval:     cfg.WS.PingInterval,
		PongWait:         cfg.WS.PongWait,
		WriteDeadline:    cfg.WS.WriteDeadline,
		MaxMessageSize:   cfg.WS.MaxMessageSize,
		SendBuffer:       cfg.WS.SendBuffer,
		InvokeRatePerSec: cfg.WS.InvokeRatePerSec,
	}, lg)

	app := api.NewServer(ctx, api.Options{
		AppName:         cfg.App.Name,
		BasePath:        cfg.HTTP.BasePath,
		HubPath:         cfg.WS.Path,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimitPerMin: cfg.HTTP.RateLimitPerMin,
		RateBurst:       cfg.HTTP.RateBurst,
		MetricsEnabled:  cfg.Metrics.Enable,
		MetricsPath:     cfg.Metrics.Path,
	}, svc, h, wsh, lg)

	errs := make(chan error, 1)
	go func() {
		lg.Info("notification hub listening", zap.String("addr", cfg.Addr()), zap.String("env", cfg.App.Env))
		errs <- app.Listen(cfg.Addr())
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		lg.Error("server error", zap.Error(err))
	case s := <-sig:
		lg.Info("signal received", zap.String("signal", s.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// fiber does not track hijacked websocket connections
	h.Close()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Warn("fiber shutdown", zap.Error(err))
	}
	stop()

	if err := closeAll(consumer, producer, rdb); err != nil {
		lg.Warn("closing backends", zap.Error(err))
	}
	lg.Info("shutdown complete")
}

func closeAll(consumer *kafka.Consumer, producer *kafka.Producer, rdb *redis.Client) error {
	var errs []error
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka producer: %w", err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
