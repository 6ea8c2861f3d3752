package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/service"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type BreakerOptions struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Producer writes lifecycle records to a topic. A circuit breaker stops it from hammering an
// unreachable broker; while open, Publish fails fast with gobreaker.ErrOpenState.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

func NewProducer(brokers []string, topic string, bo BreakerOptions, log *zap.Logger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return newProducer(w, bo, log)
}

func newProducer(w messageWriter, bo BreakerOptions, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("kafka.producer")
	if bo.MaxFailures == 0 {
		bo.MaxFailures = 5
	}
	if bo.OpenTimeout <= 0 {
		bo.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     bo.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bo.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Producer{writer: w, cb: cb, log: log}
}

// Publish implements service.Publisher.
func (p *Producer) Publish(ctx context.Context, e service.LifecycleEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(e.Key()),
		Value: b,
		Time:  e.At,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	return err
}

func (p *Producer) State() gobreaker.State { return p.cb.State() }

func (p *Producer) Close() error {
	return p.writer.Close()
}
