package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"roomhub/internal/app"
	"roomhub/internal/domain"
	"roomhub/internal/storage/memory"
)

var (
	zone = domain.MustZone("Asia/Phnom_Penh")
	t0   = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

// local returns h:m on Monday 2026-03-02 in the branch's timezone.
func local(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, zone.Location()).UTC()
}

// ---- fakes ----

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

// fakeCache keeps JSON copies, like the Redis cache does.
type fakeCache struct {
	mu   sync.Mutex
	kv   map[string][]byte
	hash map[string]map[string][]byte
	hits int
	dels int
}

func newFakeCache() *fakeCache {
	return &fakeCache{kv: map[string][]byte{}, hash: map[string]map[string][]byte{}}
}

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.kv[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	c.kv[key] = b
	return err
}

func (c *fakeCache) GetField(_ context.Context, key, field string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.hash[key][field]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) SetField(_ context.Context, key, field string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.hash[key] == nil {
		c.hash[key] = map[string][]byte{}
	}
	c.hash[key][field] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hash, k)
	}
	c.dels++
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	checkErr  error
	status    domain.GatewayStatus
	charges   []domain.ChargeRequest
	checks    int
}

func (g *fakeGateway) CreateCharge(_ context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if g.createErr != nil {
		return domain.ChargeResult{}, g.createErr
	}
	return domain.ChargeResult{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      "USD",
		QRString:      "qr:" + req.TransactionID,
		Deeplink:      "abamobilebank://pay/" + req.TransactionID,
	}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, _ string) (domain.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	return g.status, g.checkErr
}

func (g *fakeGateway) set(code int, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = domain.GatewayStatus{StatusCode: code, StatusText: text}
}

// ---- fixture ----

type fixture struct {
	store    *memory.Store
	cache    *fakeCache
	events   *recorder
	gw       *fakeGateway
	now      time.Time
	bookings *app.Bookings
	payments *app.Payments
	avail    *app.Availability
}

var (
	customer = domain.Actor{ID: "c1", Role: domain.RoleCustomer}
	stranger = domain.Actor{ID: "c2", Role: domain.RoleCustomer}
	admin    = domain.Actor{ID: "a1", Role: domain.RoleAdmin}
)

// newFixture seeds one branch open 07:00-21:00 every day with rooms r1
// (33.333/h) and r2 (10.000/h). Promotions are added per test.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		cache:  newFakeCache(),
		events: &recorder{},
		gw:     &fakeGateway{},
		now:    t0,
	}
	f.store.PutBranch(domain.Branch{
		ID:        "b1",
		OwnerID:   "o1",
		Name:      "Riverside",
		WorkDays:  []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"},
		OpenTime:  domain.MustClock("07:00"),
		CloseTime: domain.MustClock("21:00"),
		IsActive:  true,
	})
	f.store.PutRoom(domain.Room{ID: "r1", BranchID: "b1", Name: "Studio A", PricePerHour: decimal.RequireFromString("33.333"), IsAvailable: true})
	f.store.PutRoom(domain.Room{ID: "r2", BranchID: "b1", Name: "Studio B", PricePerHour: decimal.RequireFromString("10.000"), IsAvailable: true})
	f.store.PutCustomer(domain.Customer{ID: "c1", FirstName: "Dara", LastName: "Sok", Email: "dara@example.com"})
	f.store.PutCustomer(domain.Customer{ID: "c2", FirstName: "Vanna", LastName: "Chan", Email: "vanna@example.com"})

	d := app.Deps{
		Store:    f.store,
		Notifier: f.events,
		Cache:    f.cache,
		CacheTTL: 30 * time.Second,
		Zone:     zone,
		Clock:    func() time.Time { return f.now },
		Log:      zerolog.Nop(),
	}
	f.bookings = app.NewBookings(d)
	f.payments = app.NewPayments(d, f.gw)
	f.avail = app.NewAvailability(d)
	return f
}

func (f *fixture) promotion(id, percent string, scopes ...domain.Scope) {
	f.store.PutPromotion(domain.Promotion{
		ID:              id,
		Title:           id,
		DiscountPercent: decimal.RequireFromString(percent),
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:        true,
		Scopes:          scopes,
	})
}

func (f *fixture) book(t *testing.T, customerID, roomID string, start, end time.Time) domain.BookingDetail {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), app.CreateBookingInput{
		CustomerID: customerID, RoomID: roomID, Start: start, End: end,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func wantKind(t *testing.T, err error, k domain.ErrorKind, reason string) {
	t.Helper()
	if !domain.IsKind(err, k) {
		t.Fatalf("want %s error, got %v", k, err)
	}
	if reason != "" && domain.ReasonOf(err) != reason {
		t.Fatalf("want reason %q, got %q", reason, domain.ReasonOf(err))
	}
}
