package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"roomhub/internal/domain"
)

// Deps are the collaborators shared by the booking and payment services.
// Nil Notifier and Cache are replaced by no-ops; a nil Clock means time.Now.
type Deps struct {
	Store    domain.Store
	Notifier domain.Notifier
	Cache    domain.Cache
	CacheTTL time.Duration
	Zone     domain.Zone
	Clock    func() time.Time
	Log      zerolog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Cache == nil {
		d.Cache = noCache{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Deps) now() time.Time { return d.Clock().UTC() }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, domain.Event) {}

type noCache struct{}

func (noCache) Get(context.Context, string, any) (bool, error)              { return false, nil }
func (noCache) Set(context.Context, string, any, int) error                 { return nil }
func (noCache) GetField(context.Context, string, string, any) (bool, error) { return false, nil }
func (noCache) SetField(context.Context, string, string, any, int) error    { return nil }
func (noCache) Del(context.Context, ...string) error                        { return nil }
