// Package memory is an in-process domain.Store. A transaction holds the
// store-wide lock for its whole duration, which gives the same serialization
// the MySQL room lock gives, and restores a snapshot on failure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roomhub/internal/domain"
)

type state struct {
	rooms      map[string]domain.Room
	branches   map[string]domain.Branch
	customers  map[string]domain.Customer
	promotions map[string]domain.Promotion
	bookings   map[string]domain.Booking
	payments   map[string]domain.Payment // by transaction id
}

func (s state) clone() state {
	return state{
		rooms:      cloneMap(s.rooms),
		branches:   cloneMap(s.branches),
		customers:  cloneMap(s.customers),
		promotions: cloneMap(s.promotions),
		bookings:   cloneMap(s.bookings),
		payments:   cloneMap(s.payments),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu sync.RWMutex
	st state
}

func New() *Store {
	return &Store{st: state{
		rooms:      map[string]domain.Room{},
		branches:   map[string]domain.Branch{},
		customers:  map[string]domain.Customer{},
		promotions: map[string]domain.Promotion{},
		bookings:   map[string]domain.Booking{},
		payments:   map[string]domain.Payment{},
	}}
}

// ---- seeding ----

func (s *Store) PutBranch(b domain.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.branches[b.ID] = b
}

func (s *Store) PutRoom(r domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rooms[r.ID] = r
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[c.ID] = c
}

func (s *Store) PutPromotion(p domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.promotions[p.ID] = p
}

func (s *Store) DeletePromotion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.promotions, id)
}

func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.bookings[b.ID] = b
}

// ---- transactions ----

func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// ---- reads ----

func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.room(id)
}

func (s *Store) GetPromotion(ctx context.Context, id string) (domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.promotions[id]
	if !ok {
		return domain.Promotion{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindPromotion(ctx context.Context, q domain.PromotionQuery) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findPromotion(q), nil
}

func (s *Store) HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hasOverlap(roomID, start, end), nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListCustomerBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range s.st.bookings {
		if b.CustomerID != f.CustomerID || (f.Status != "" && b.Status != f.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListRoomBookings(ctx context.Context, f domain.RoomBookingFilter) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range s.st.bookings {
		if b.RoomID != f.RoomID || !statusIn(b.Status, f.Statuses) {
			continue
		}
		if f.StartFrom != nil && b.StartTime.Before(*f.StartFrom) {
			continue
		}
		if f.StartTo != nil && !b.StartTime.Before(*f.StartTo) {
			continue
		}
		if f.EndAfter != nil && b.EndTime.Before(*f.EndAfter) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) GetPaymentByTransaction(ctx context.Context, txID string) (domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.payments[txID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range s.st.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStalePayments(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range s.st.payments {
		if p.Status != domain.PaymentPending {
			continue
		}
		last := p.CreatedAt
		if p.LastCheckedAt != nil {
			last = *p.LastCheckedAt
		}
		if last.Before(checkedBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- shared helpers (callers hold the lock) ----

func (st *state) room(id string) (domain.Room, domain.Branch, error) {
	r, ok := st.rooms[id]
	if !ok {
		return domain.Room{}, domain.Branch{}, domain.ErrNotFound
	}
	b, ok := st.branches[r.BranchID]
	if !ok {
		return domain.Room{}, domain.Branch{}, domain.ErrNotFound
	}
	return r, b, nil
}

func (st *state) hasOverlap(roomID string, start, end time.Time) bool {
	for _, b := range st.bookings {
		if b.RoomID != roomID || b.Status == domain.BookingCancelled {
			continue
		}
		if domain.Overlaps(b.StartTime, b.EndTime, start, end) {
			return true
		}
	}
	return false
}

// findPromotion picks the largest discount among matches, then the lowest id.
func (st *state) findPromotion(q domain.PromotionQuery) *domain.Promotion {
	var best *domain.Promotion
	for _, p := range st.promotions {
		if !p.AttachedTo(q.Scope) || !p.Covers(q.Start, q.End) {
			continue
		}
		if best == nil || p.DiscountPercent.GreaterThan(best.DiscountPercent) ||
			(p.DiscountPercent.Equal(best.DiscountPercent) && p.ID < best.ID) {
			p := p
			best = &p
		}
	}
	if best != nil {
		best.Scopes = []domain.Scope{q.Scope}
	}
	return best
}

func statusIn(s domain.BookingStatus, set []domain.BookingStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*tx)(nil)
)
