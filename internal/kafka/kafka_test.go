package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
	"github.com/fathima-sithara/notification-hub/internal/service"
)

type fakeWriter struct {
	mu    sync.Mutex
	err   error
	calls int
	msgs  []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := newProducer(w, BreakerOptions{}, nil)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(context.Background(), service.LifecycleEvent{
		Kind:          service.EventCreated,
		At:            at,
		UserID:        "u1",
		Notifications: []model.Notification{{ID: "n-1", Title: "T"}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "u1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "created", string(msg.Headers[0].Value))

	var got service.LifecycleEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, service.EventCreated, got.Kind)
	require.Len(t, got.Notifications, 1)
	assert.Equal(t, "n-1", got.Notifications[0].ID)
}

func TestProducerBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := newProducer(w, BreakerOptions{MaxFailures: 3, OpenTimeout: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, p.Publish(ctx, service.LifecycleEvent{Kind: service.EventDeleted}))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(ctx, service.LifecycleEvent{Kind: service.EventDeleted})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, w.calls, "open breaker must not reach the writer")
}

type fakeSender struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (s *fakeSender) Send(_ context.Context, n *model.Notification) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *n
	out.ID = "generated"
	s.sent = append(s.sent, out)
	return out, nil
}

func (s *fakeSender) all() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.sent...)
}

func TestConsumerHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
		check   func(t *testing.T, n model.Notification)
	}{
		{
			name: "addressed draft",
			raw:  `{"title":"Build failed","message":"main is red","type":"Error","userId":"u1"}`,
			check: func(t *testing.T, n model.Notification) {
				assert.Equal(t, "Build failed", n.Title)
				assert.Equal(t, model.TypeError, n.Type)
				assert.Equal(t, "u1", n.Recipient())
			},
		},
		{
			name: "empty user id is a broadcast",
			raw:  `{"title":"Deploy","type":1,"userId":""}`,
			check: func(t *testing.T, n model.Notification) {
				assert.True(t, n.IsBroadcast())
				assert.Equal(t, model.TypeSuccess, n.Type)
			},
		},
		{name: "malformed", raw: `{"title":`, wantErr: apperr.ErrInvalidArgument},
		{name: "null", raw: `null`, wantErr: apperr.ErrInvalidArgument},
		{name: "bad type", raw: `{"type":"urgent"}`, wantErr: apperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeSender{}
			c := newConsumer(nil, sender, nil)

			err := c.Handle(context.Background(), []byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, sender.all())
				return
			}
			require.NoError(t, err)
			sent := sender.all()
			require.Len(t, sent, 1)
			tt.check(t, sent[0])
		})
	}
}

type fakeReader struct {
	msgs chan kafkago.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerRun(t *testing.T) {
	t.Parallel()
	r := &fakeReader{msgs: make(chan kafkago.Message, 3)}
	r.msgs <- kafkago.Message{Value: []byte(`{"title":"one"}`)}
	r.msgs <- kafkago.Message{Value: []byte(`garbage`)}
	r.msgs <- kafkago.Message{Value: []byte(`{"title":"two"}`)}

	sender := &fakeSender{}
	c := newConsumer(r, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sender.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sent := sender.all()
	assert.Equal(t, "one", sent[0].Title)
	assert.Equal(t, "two", sent[1].Title)
}
