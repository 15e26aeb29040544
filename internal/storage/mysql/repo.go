package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"roomhub/internal/domain"
)

const (
	errDuplicateEntry = 1062
	errLockWaitTime   = 1205
	errDeadlock       = 1213
	maxTxAttempts     = 3
)

// queryer is what *sql.DB and *sql.Tx have in common.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// WithTx runs fn in a READ COMMITTED transaction. Deadlocks and lock wait
// timeouts roll back and rerun fn from scratch.
func (r *Repo) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !isMySQLError(err, errDeadlock, errLockWaitTime) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("transaction aborted by lock conflict, retrying")
	}
	return err
}

func (r *Repo) runTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *Repo) GetRoom(ctx context.Context, id string) (domain.Room, domain.Branch, error) {
	return scanRoom(r.db.QueryRowContext(ctx, getRoomSQL, id))
}

func (r *Repo) GetPromotion(ctx context.Context, id string) (domain.Promotion, error) {
	var p domain.Promotion
	var kind string
	err := r.db.QueryRowContext(ctx, getPromotionSQL, id).Scan(
		&p.ID, &p.Title, &p.DiscountPercent, &p.StartDate, &p.EndDate, &p.IsActive, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Promotion{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Promotion{}, err
	}
	switch domain.ScopeKind(kind) {
	case domain.ScopeGlobal:
		p.Scopes = []domain.Scope{domain.GlobalScope{}}
	case domain.ScopeRoom:
		ids, err := r.ids(ctx, promotionRoomsSQL, id)
		if err != nil {
			return domain.Promotion{}, err
		}
		for _, rid := range ids {
			p.Scopes = append(p.Scopes, domain.RoomScope{RoomID: rid})
		}
	case domain.ScopeBranch:
		ids, err := r.ids(ctx, promotionBranchesSQL, id)
		if err != nil {
			return domain.Promotion{}, err
		}
		for _, bid := range ids {
			p.Scopes = append(p.Scopes, domain.BranchScope{BranchID: bid})
		}
	default:
		return domain.Promotion{}, fmt.Errorf("promotion %s: unknown target type %q", id, kind)
	}
	return p, nil
}

func (r *Repo) ids(ctx context.Context, query, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := r.db.QueryRowContext(ctx, getCustomerSQL, id).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.ErrNotFound
	}
	return c, err
}

func (r *Repo) FindPromotion(ctx context.Context, q domain.PromotionQuery) (*domain.Promotion, error) {
	return findPromotion(ctx, r.db, q)
}

func (r *Repo) HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	return hasOverlap(ctx, r.db, roomID, start, end)
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
}

func (r *Repo) ListCustomerBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, listCustomerBookingsSQL, f.CustomerID, string(f.Status), string(f.Status), f.Limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *Repo) ListRoomBookings(ctx context.Context, f domain.RoomBookingFilter) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE room_id = ?`
	args := []any{f.RoomID}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(f.Statuses)-1) + `)`
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.StartFrom != nil {
		query += ` AND start_time >= ?`
		args = append(args, f.StartFrom.UTC())
	}
	if f.StartTo != nil {
		query += ` AND start_time < ?`
		args = append(args, f.StartTo.UTC())
	}
	if f.EndAfter != nil {
		query += ` AND end_time >= ?`
		args = append(args, f.EndAfter.UTC())
	}
	query += ` ORDER BY start_time ASC, id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *Repo) GetPaymentByTransaction(ctx context.Context, txID string) (domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, getPaymentByTxSQL, txID))
}

func (r *Repo) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, listPaymentsSQL, bookingID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *Repo) ListStalePayments(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, listStalePaymentsSQL, checkedBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// ---- shared between Repo and sqlTx ----

func hasOverlap(ctx context.Context, q queryer, roomID string, start, end time.Time) (bool, error) {
	start, end = start.UTC(), end.UTC()
	var exists bool
	err := q.QueryRowContext(ctx, overlapSQL, roomID, start, start, end, end, start, end).Scan(&exists)
	return exists, err
}

func findPromotion(ctx context.Context, q queryer, pq domain.PromotionQuery) (*domain.Promotion, error) {
	var query, target string
	switch s := pq.Scope.(type) {
	case domain.RoomScope:
		query, target = roomPromotionSQL, s.RoomID
	case domain.BranchScope:
		query, target = branchPromotionSQL, s.BranchID
	case domain.GlobalScope:
		query = globalPromotionSQL
	default:
		return nil, fmt.Errorf("unsupported promotion scope %T", pq.Scope)
	}
	args := []any{pq.Start.UTC(), pq.End.UTC()}
	if target != "" {
		args = append([]any{target}, args...)
	}
	var p domain.Promotion
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.Title, &p.DiscountPercent, &p.StartDate, &p.EndDate, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Scopes = []domain.Scope{pq.Scope}
	return &p, nil
}

// ---- scanning ----

type scanner interface{ Scan(dest ...any) error }

func scanRoom(row scanner) (domain.Room, domain.Branch, error) {
	var (
		r               domain.Room
		b               domain.Branch
		workDays        []byte
		openAt, closeAt string
	)
	err := row.Scan(&r.ID, &r.BranchID, &r.Name, &r.PricePerHour, &r.IsAvailable,
		&b.ID, &b.OwnerID, &b.Name, &workDays, &openAt, &closeAt, &b.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.Branch{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, domain.Branch{}, err
	}
	if len(workDays) > 0 {
		if err := json.Unmarshal(workDays, &b.WorkDays); err != nil {
			return domain.Room{}, domain.Branch{}, fmt.Errorf("branch %s work_days: %w", b.ID, err)
		}
	}
	if b.OpenTime, err = domain.ParseClock(openAt); err != nil {
		return domain.Room{}, domain.Branch{}, fmt.Errorf("branch %s open_time: %w", b.ID, err)
	}
	if b.CloseTime, err = domain.ParseClock(closeAt); err != nil {
		return domain.Room{}, domain.Branch{}, fmt.Errorf("branch %s close_time: %w", b.ID, err)
	}
	return r, b, nil
}

func scanBooking(row scanner) (domain.Booking, error) {
	var (
		b      domain.Booking
		promo  sql.NullString
		status string
	)
	err := row.Scan(&b.ID, &b.CustomerID, &b.RoomID, &b.StartTime, &b.EndTime, &b.TotalPrice,
		&promo, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	if promo.Valid {
		b.PromotionID = &promo.String
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanPayment(row scanner) (domain.Payment, error) {
	var (
		p                         domain.Payment
		status                    string
		code                      sql.NullInt64
		apv                       sql.NullString
		txDate, paidAt, checkedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.BookingID, &p.TransactionID, &p.Amount, &p.Currency, &p.Method, &status, &code,
		&p.QRString, &p.QRImage, &p.Deeplink,
		&p.OriginalAmount, &p.RefundAmount, &p.DiscountAmount, &apv, &txDate, &paidAt, &checkedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	if code.Valid {
		c := int(code.Int64)
		p.StatusCode = &c
	}
	if apv.Valid {
		p.APV = &apv.String
	}
	p.TransactionDate = timePtr(txDate)
	p.PaidAt = timePtr(paidAt)
	p.LastCheckedAt = timePtr(checkedAt)
	return p, nil
}

func collectPayments(rows *sql.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- value helpers ----

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func valDec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(2)
}

func isMySQLError(err error, numbers ...uint16) bool {
	var me *gomysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}

var (
	_ domain.Store = (*Repo)(nil)
	_ domain.Tx    = (*sqlTx)(nil)
)
