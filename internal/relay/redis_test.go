package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/notification-hub/internal/hub"
	"github.com/fathima-sithara/notification-hub/internal/protocol"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return m, rdb
}

func receive(t *testing.T, c *hub.Client) protocol.Envelope {
	t.Helper()
	select {
	case b := <-c.Send():
		env, err := protocol.Decode(b)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Envelope{}
	}
}

func TestDeliveriesCrossInstances(t *testing.T) {
	t.Parallel()
	m, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := Options{Channel: "test:deliveries", Prefix: "test"}
	sender, receiver := hub.NewHub(nil), hub.NewHub(nil)
	sender.SetRelay(New(rdb, opts, nil))

	done := make(chan error, 1)
	go func() { done <- New(rdb, opts, nil).Run(ctx, receiver.DeliverRelayed) }()
	require.Eventually(t, func() bool {
		return m.PubSubNumSub(opts.Channel)[opts.Channel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	remote := hub.NewClient("u1", 8)
	receiver.Register(ctx, remote)
	assert.Equal(t, protocol.ConnectionEstablished, receive(t, remote).Target)

	require.NoError(t, sender.SendToUser(ctx, "u1", protocol.ReceiveNotification, map[string]string{"id": "n-1"}))
	env := receive(t, remote)
	assert.Equal(t, protocol.ReceiveNotification, env.Target)

	var payload map[string]string
	require.NoError(t, env.Arg(0, &payload))
	assert.Equal(t, "n-1", payload["id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	m, rdb := newRedis(t)
	ctx := context.Background()
	r := New(rdb, Options{Prefix: "p", PresenceTTL: time.Minute}, nil)

	c := hub.NewClient("u1", 1)
	require.NoError(t, r.Add(ctx, c))
	assert.True(t, m.Exists("p:conn:"+c.ID))
	assert.Equal(t, time.Minute, m.TTL("p:conn:"+c.ID))

	online, err := r.Online(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, r.Remove(ctx, c))
	assert.False(t, m.Exists("p:conn:"+c.ID))
	online, err = r.Online(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)

	anonymous := hub.NewClient("", 1)
	require.NoError(t, r.Add(ctx, anonymous))
	m.FastForward(2 * time.Minute)
	assert.False(t, m.Exists("p:conn:"+anonymous.ID))
}
