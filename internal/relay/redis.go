// Package relay fans hub deliveries out to other instances over Redis pub/sub and keeps a
// presence record per live connection.
//
// Keys:
//   - <prefix>:conn:<connID>  hash {user_id, connected_at}, expires after the presence TTL
//   - <prefix>:user:<userID>  set of connection ids opened for that user
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/hub"
)

var errSubscriptionClosed = errors.New("redis subscription closed")

type Options struct {
	Channel     string
	Prefix      string
	PresenceTTL time.Duration
}

type Relay struct {
	client *redis.Client
	opts   Options
	log    *zap.Logger
}

func New(client *redis.Client, opts Options, log *zap.Logger) *Relay {
	if opts.Channel == "" {
		opts.Channel = "notify:deliveries"
	}
	if opts.Prefix == "" {
		opts.Prefix = "notify"
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{client: client, opts: opts, log: log.Named("relay")}
}

func (r *Relay) connKey(connID string) string { return fmt.Sprintf("%s:conn:%s", r.opts.Prefix, connID) }
func (r *Relay) userKey(userID string) string { return fmt.Sprintf("%s:user:%s", r.opts.Prefix, userID) }

func (r *Relay) Publish(ctx context.Context, d hub.Delivery) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.opts.Channel, b).Err()
}

// Run consumes deliveries from other instances until ctx is done, resubscribing with
// exponential backoff whenever the subscription drops.
func (r *Relay) Run(ctx context.Context, deliver func(hub.Delivery)) error {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(eb, ctx)

	err := backoff.RetryNotify(func() error {
		err := r.consume(ctx, deliver, eb.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.log.Warn("relay subscription lost, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) consume(ctx context.Context, deliver func(hub.Delivery), subscribed func()) error {
	pubsub := r.client.Subscribe(ctx, r.opts.Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.opts.Channel, err)
	}
	subscribed()
	r.log.Info("relay subscribed", zap.String("channel", r.opts.Channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			var d hub.Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				r.log.Debug("ignoring malformed delivery", zap.Error(err))
				continue
			}
			deliver(d)
		}
	}
}

// Add records c as live. Implements hub.Presence.
func (r *Relay) Add(ctx context.Context, c *hub.Client) error {
	key := r.connKey(c.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "user_id", c.UserID, "connected_at", c.ConnectedAt.Unix())
	pipe.Expire(ctx, key, r.opts.PresenceTTL)
	if c.UserID != "" {
		pipe.SAdd(ctx, r.userKey(c.UserID), c.ID)
		pipe.Expire(ctx, r.userKey(c.UserID), r.opts.PresenceTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops the presence record for c. Implements hub.Presence.
func (r *Relay) Remove(ctx context.Context, c *hub.Client) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.connKey(c.ID))
	if c.UserID != "" {
		pipe.SRem(ctx, r.userKey(c.UserID), c.ID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Online reports whether any instance holds a connection opened for userID.
func (r *Relay) Online(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, r.userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
