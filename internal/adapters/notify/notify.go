// Package notify fans booking lifecycle events out to realtime subscribers.
// Every publisher is fire-and-forget: Publish returns immediately and a
// failed delivery is logged and counted, never surfaced to the caller.
// Flush drains deliveries still in flight before a process exits.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"roomhub/internal/adapters/observability"
	"roomhub/internal/domain"
)

const defaultTimeout = 3 * time.Second

// Channel is the per-room topic subscribers listen on.
func Channel(roomID string) string { return "room:" + roomID }

func encode(ev domain.Event) ([]byte, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return json.Marshal(ev)
}

// Flusher is implemented by publishers that deliver in the background.
type Flusher interface {
	Flush(ctx context.Context) error
}

// inflight counts background deliveries of one publisher.
type inflight struct{ wg sync.WaitGroup }

// Flush waits for every delivery started so far, or until ctx is done.
func (f *inflight) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver runs send in the background, detached from the caller's
// cancellation but bounded by timeout.
func (f *inflight) deliver(ctx context.Context, backend string, timeout time.Duration, ev domain.Event, send func(ctx context.Context, body []byte) error) {
	body, err := encode(ev)
	if err != nil {
		log.Warn().Err(err).Str("event", ev.Name).Msg("encode event failed")
		observability.ObserveNotify(backend, ev.Name, err)
		return
	}
	bg := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		err := send(ctx, body)
		observability.ObserveNotify(backend, ev.Name, err)
		if err != nil {
			log.Warn().Err(err).Str("backend", backend).Str("event", ev.Name).
				Str("room_id", ev.RoomID).Msg("publish event failed")
		}
	}()
}

// Multi publishes to every notifier in order.
type Multi []domain.Notifier

func (m Multi) Publish(ctx context.Context, ev domain.Event) {
	for _, n := range m {
		n.Publish(ctx, ev)
	}
}

func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if f, ok := n.(Flusher); ok {
			errs = append(errs, f.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) {}
