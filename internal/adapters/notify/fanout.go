package notify

import (
	"context"
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Fanout is the set of publishers a process runs with.
type Fanout struct {
	Multi
	closers []io.Closer
}

// New builds the publishers selected by backend: redis, rabbitmq, both or
// none. An unreachable broker is logged and left out; events are
// best-effort and never block startup.
func New(backend string, rdb *redis.Client, rabbitURL, rabbitQueue string) *Fanout {
	f := &Fanout{}
	if backend == "redis" || backend == "both" {
		f.Multi = append(f.Multi, NewRedis(rdb))
	}
	if backend == "rabbitmq" || backend == "both" {
		r, err := DialRabbit(rabbitURL, rabbitQueue)
		if err != nil {
			log.Error().Err(err).Msg("rabbitmq unavailable, events will not be queued")
		} else {
			f.Multi = append(f.Multi, r)
			f.closers = append(f.closers, r)
		}
	}
	if len(f.Multi) == 0 {
		log.Info().Str("backend", backend).Msg("event notifications disabled")
	}
	return f
}

// Close drains in-flight deliveries, bounded by ctx, then releases broker
// connections. The redis client belongs to the caller and stays open.
func (f *Fanout) Close(ctx context.Context) error {
	err := f.Flush(ctx)
	for _, c := range f.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}
