package permcache

import (
	"context"
	"encoding/json"
	"log/slog"
)

type invalidation struct {
	Origin   string `json:"origin"`
	Keyspace string `json:"keyspace"`
	Key      string `json:"key,omitempty"`
	All      bool   `json:"all,omitempty"`
}

func (c *Cache) publish(ctx context.Context, msg invalidation) {
	msg.Origin = c.origin
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, c.channel(), raw).Err(); err != nil {
		c.logger.Warn("permcache publish invalidation", slog.String("keyspace", msg.Keyspace), slog.Any("error", err))
	}
}

// Listen subscribes to invalidations published by other processes and drops the matching
// in-process entries. It returns once the subscription is confirmed; delivery continues in the
// background until ctx is done.
func (c *Cache) Listen(ctx context.Context) error {
	pubsub := c.client.Subscribe(ctx, c.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.apply(msg.Payload)
			}
		}
	}()
	return nil
}

func (c *Cache) apply(payload string) {
	var msg invalidation
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.logger.Debug("permcache invalid message", slog.Any("error", err))
		return
	}
	if msg.Origin == c.origin {
		return
	}
	ks, err := c.lookup(msg.Keyspace)
	if err != nil {
		return
	}
	ks.dropLocal(msg.Key, msg.All)
}
