//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"roomhub/internal/app"
	"roomhub/internal/domain"
	mysqlrepo "roomhub/internal/storage/mysql"
)

// ---------- small helpers ----------

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/migrations)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=roomhub"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/roomhub?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	applyMigrations(t, db)
	return db
}

const seedSQL = `
INSERT INTO customers (id, first_name, last_name, email) VALUES
  ('c1', 'Dara', 'Sok', 'dara@example.com'), ('c2', 'Vanna', 'Chan', 'vanna@example.com');
INSERT INTO branches (id, owner_id, name, work_days, open_time, close_time, is_active) VALUES
  ('b1', 'o1', 'Riverside', '["monday","tuesday","wednesday","thursday","friday","saturday","sunday"]', '07:00:00', '21:00:00', 1);
INSERT INTO rooms (id, branch_id, name, price_per_hour, is_available) VALUES
  ('r1', 'b1', 'Studio A', 33.333, 1), ('r2', 'b1', 'Studio B', 10.000, 1);
INSERT INTO promotions (id, title, discount_percent, start_date, end_date, is_active, target_type) VALUES
  ('p-room', 'room', 30.00, '2026-01-01', '2026-12-31', 1, 'room'),
  ('p-branch', 'branch', 20.00, '2026-01-01', '2026-12-31', 1, 'branch'),
  ('p-global', 'global', 10.00, '2026-01-01', '2026-12-31', 1, 'global');
INSERT INTO room_promotions (promotion_id, room_id) VALUES ('p-room', 'r2');
INSERT INTO branch_promotions (promotion_id, branch_id) VALUES ('p-branch', 'b1');
`

var (
	zone = domain.MustZone("Asia/Phnom_Penh")
	now  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

// local builds an instant on 2026-03-02 (a Monday) in branch time.
func local(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, zone.Location()).UTC()
}

func setup(t *testing.T) (*mysqlrepo.Repo, app.Deps) {
	t.Helper()
	db := startMySQL(t)
	if _, err := db.Exec(seedSQL); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := mysqlrepo.New(db)
	return repo, app.Deps{Store: repo, Zone: zone, Clock: func() time.Time { return now }, Log: zerolog.Nop()}
}

// ---------- tests ----------

func TestRepo_MySQL_BookingLifecycle(t *testing.T) {
	repo, deps := setup(t)
	ctx := context.Background()
	bookings := app.NewBookings(deps)

	// r1 has no room promotion, so the branch one applies: 49.9995 * 0.8
	b, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c1", RoomID: "r1", Start: local(10, 0), End: local(11, 30)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := b.TotalPrice.StringFixed(3); got != "40.000" {
		t.Fatalf("total: %s", got)
	}
	if b.PromotionID == nil || *b.PromotionID != "p-branch" {
		t.Fatalf("expected branch promotion, got %v", b.PromotionID)
	}

	// touching interval is legal
	if _, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c2", RoomID: "r1", Start: local(11, 30), End: local(12, 30)}); err != nil {
		t.Fatalf("touching booking: %v", err)
	}
	// overlapping interval is not
	_, err = bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c2", RoomID: "r1", Start: local(11, 0), End: local(12, 0)})
	if !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	list, err := repo.ListRoomBookings(ctx, domain.RoomBookingFilter{RoomID: "r1", Statuses: domain.ActiveStatuses})
	if err != nil || len(list) != 2 || !list[0].StartTime.Before(list[1].StartTime) {
		t.Fatalf("room schedule: %v %+v", err, list)
	}

	if _, err := bookings.Cancel(ctx, b.ID, domain.Actor{ID: "c2", Role: domain.RoleCustomer}); !domain.IsKind(err, domain.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := bookings.Cancel(ctx, b.ID, domain.Actor{ID: "c1", Role: domain.RoleCustomer}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := bookings.Cancel(ctx, b.ID, domain.Actor{ID: "admin", Role: domain.RoleAdmin}); !domain.IsKind(err, domain.KindState) {
		t.Fatalf("expected state error, got %v", err)
	}
	// the cancelled slot is free again
	if _, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c2", RoomID: "r1", Start: local(10, 0), End: local(11, 0)}); err != nil {
		t.Fatalf("rebook cancelled slot: %v", err)
	}
}

func TestRepo_MySQL_ConcurrentOverlapsBookOnce(t *testing.T) {
	_, deps := setup(t)
	ctx := context.Background()
	bookings := app.NewBookings(deps)

	var ok, conflicts int32
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		i := i
		g.Go(func() error {
			// every request overlaps 14:00-15:00
			start := local(13, 30).Add(time.Duration(i) * 5 * time.Minute)
			_, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c1", RoomID: "r2", Start: start, End: start.Add(time.Hour)})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case domain.IsKind(err, domain.KindConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok != 1 || conflicts != 11 {
		t.Fatalf("expected exactly one success, got ok=%d conflicts=%d", ok, conflicts)
	}
}

// at shifts local(h, m) by day days.
func at(day, h, m int) time.Time { return local(h, m).AddDate(0, 0, day) }

// randomInterval picks a quarter-hour aligned interval of up to two hours
// inside the 07:00-21:00 opening window.
func randomInterval(rng *rand.Rand, day int) [2]time.Time {
	const open, closing, step = 7 * 60, 21 * 60, 15
	start := open + step*rng.Intn((closing-open)/step)
	n := (closing - start) / step
	if n > 8 {
		n = 8
	}
	end := start + step*(1+rng.Intn(n))
	base := at(day, 0, 0)
	return [2]time.Time{base.Add(time.Duration(start) * time.Minute), base.Add(time.Duration(end) * time.Minute)}
}

func TestRepo_MySQL_RandomConcurrentPairs(t *testing.T) {
	_, deps := setup(t)
	ctx := context.Background()
	bookings := app.NewBookings(deps)

	seed := time.Now().UnixNano()
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	// each pair gets its own day so earlier pairs never interfere
	pairs := [][2][2]time.Time{
		{{at(0, 10, 0), at(0, 11, 0)}, {at(0, 11, 0), at(0, 12, 0)}}, // touching
		{{at(1, 10, 0), at(1, 11, 0)}, {at(1, 10, 0), at(1, 11, 0)}}, // identical
		{{at(2, 9, 0), at(2, 13, 0)}, {at(2, 10, 0), at(2, 11, 0)}},  // nested
		{{at(3, 8, 0), at(3, 9, 0)}, {at(3, 15, 0), at(3, 16, 0)}},   // disjoint
	}
	for day := len(pairs); day < 48; day++ {
		pairs = append(pairs, [2][2]time.Time{randomInterval(rng, day), randomInterval(rng, day)})
	}

	for day, pair := range pairs {
		room := "r1"
		if day%2 == 1 {
			room = "r2"
		}
		var ok int32
		var g errgroup.Group
		for i, iv := range pair {
			customer := fmt.Sprintf("c%d", i+1)
			g.Go(func() error {
				_, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: customer, RoomID: room, Start: iv[0], End: iv[1]})
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case domain.IsKind(err, domain.KindConflict):
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("day %d: unexpected error: %v", day, err)
		}
		want := int32(2)
		if domain.Overlaps(pair[0][0], pair[0][1], pair[1][0], pair[1][1]) {
			want = 1
		}
		if ok != want {
			t.Fatalf("day %d on %s: [%s, %s) and [%s, %s) booked %d times, want %d", day, room,
				pair[0][0].Format(time.Kitchen), pair[0][1].Format(time.Kitchen),
				pair[1][0].Format(time.Kitchen), pair[1][1].Format(time.Kitchen), ok, want)
		}
	}
}

type stubGateway struct {
	checks int32
	status domain.GatewayStatus
}

func (g *stubGateway) CreateCharge(_ context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	return domain.ChargeResult{TransactionID: req.TransactionID, Amount: req.Amount, QRString: "qr"}, nil
}

func (g *stubGateway) CheckStatus(context.Context, string) (domain.GatewayStatus, error) {
	atomic.AddInt32(&g.checks, 1)
	return g.status, nil
}

func TestRepo_MySQL_SettleOnce(t *testing.T) {
	repo, deps := setup(t)
	ctx := context.Background()
	gw := &stubGateway{status: domain.GatewayStatus{StatusCode: 1, APV: "A1"}}
	bookings, payments := app.NewBookings(deps), app.NewPayments(deps, gw)

	b, err := bookings.Create(ctx, app.CreateBookingInput{CustomerID: "c1", RoomID: "r1", Start: local(8, 0), End: local(9, 30)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	charge, err := payments.GenerateCharge(ctx, b.ID, app.Payer{})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if charge.Amount.StringFixed(2) != "40.00" || len(charge.TransactionID) > 20 {
		t.Fatalf("unexpected charge: %+v", charge)
	}

	var confirmed int32
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			s, err := payments.VerifyAndSettle(ctx, charge.TransactionID)
			if err != nil {
				return err
			}
			if s.PaymentStatus != domain.PaymentCompleted || s.BookingStatus != domain.BookingConfirmed {
				return fmt.Errorf("unexpected settlement %+v", s)
			}
			if s.Confirmed {
				atomic.AddInt32(&confirmed, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("booking confirmed %d times", confirmed)
	}

	p, err := repo.GetPaymentByTransaction(ctx, charge.TransactionID)
	if err != nil || p.PaidAt == nil || p.APV == nil || *p.APV != "A1" {
		t.Fatalf("payment row: %v %+v", err, p)
	}

	// a second completed payment for the same booking violates the unique index
	err = repo.WithTx(ctx, func(tx domain.Tx) error {
		dup := domain.Payment{ID: "p2", BookingID: b.ID, TransactionID: "BKdup-1", Amount: decimal.NewFromInt(1),
			Currency: "USD", Method: domain.DefaultPaymentMethod, Status: domain.PaymentPending, CreatedAt: now, UpdatedAt: now}
		if err := tx.InsertPayment(ctx, dup); err != nil {
			return err
		}
		_, err := tx.SettlePayment(ctx, domain.PaymentSettlement{TransactionID: "BKdup-1", Status: domain.PaymentCompleted, StatusCode: 1, CheckedAt: now})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate on second success, got %v", err)
	}
}
