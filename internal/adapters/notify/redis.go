package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"roomhub/internal/domain"
)

// Redis publishes events on the room's pub/sub channel.
type Redis struct {
	inflight
	c       *redis.Client
	timeout time.Duration
}

func NewRedis(c *redis.Client) *Redis { return &Redis{c: c, timeout: defaultTimeout} }

func (r *Redis) Publish(ctx context.Context, ev domain.Event) {
	r.deliver(ctx, "redis", r.timeout, ev, func(ctx context.Context, body []byte) error {
		return r.c.Publish(ctx, Channel(ev.RoomID), body).Err()
	})
}
