package app

import (
	"context"
	"errors"
	"time"

	"roomhub/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (s *Bookings) Get(ctx context.Context, id string) (domain.Booking, error) {
	b, err := s.d.Store.GetBooking(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Booking{}, domain.NotFoundError("Booking")
	}
	return b, err
}

// ListForUser returns a customer's bookings, newest start first.
func (s *Bookings) ListForUser(ctx context.Context, customerID, status string, limit int) ([]domain.Booking, error) {
	f := domain.BookingFilter{CustomerID: customerID, Limit: limit}
	if status != "" {
		st, ok := domain.ParseBookingStatus(status)
		if !ok {
			return nil, domain.ValidationError("Invalid booking status")
		}
		f.Status = st
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	return s.d.Store.ListCustomerBookings(ctx, f)
}

// ListForRoom returns a room's schedule of non-cancelled bookings in start
// order, optionally restricted to one local calendar date.
func (s *Bookings) ListForRoom(ctx context.Context, roomID, date string) ([]domain.Booking, error) {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return nil, err
	}
	f := domain.RoomBookingFilter{RoomID: roomID, Statuses: domain.ActiveStatuses}
	if date != "" {
		from, to, err := s.d.Zone.ParseDate(date)
		if err != nil {
			return nil, domain.ValidationError("Invalid date, expected YYYY-MM-DD")
		}
		f.StartFrom, f.StartTo = &from, &to
	}
	return s.d.Store.ListRoomBookings(ctx, f)
}

// OccupiedTimes lists the intervals a room cannot be booked in. Without a
// date only current and future bookings are shown. Results are cached per
// room and dropped whenever a booking on the room changes.
func (s *Bookings) OccupiedTimes(ctx context.Context, roomID, date, status string) ([]domain.OccupiedSlot, error) {
	statuses := domain.ActiveStatuses
	if status != "" {
		st, ok := domain.ParseBookingStatus(status)
		if !ok || st == domain.BookingCancelled {
			return nil, domain.ValidationError("Invalid booking status")
		}
		statuses = []domain.BookingStatus{st}
	}
	f := domain.RoomBookingFilter{RoomID: roomID, Statuses: statuses}
	if date != "" {
		from, to, err := s.d.Zone.ParseDate(date)
		if err != nil {
			return nil, domain.ValidationError("Invalid date, expected YYYY-MM-DD")
		}
		f.StartFrom, f.StartTo = &from, &to
	}

	now := s.d.now()
	key, field := occupiedKey(roomID), date+"|"+status
	var slots []domain.OccupiedSlot
	if ok, _ := s.d.Cache.GetField(ctx, key, field, &slots); !ok {
		if err := s.requireRoom(ctx, roomID); err != nil {
			return nil, err
		}
		if date == "" {
			f.EndAfter = &now
		}
		bs, err := s.d.Store.ListRoomBookings(ctx, f)
		if err != nil {
			return nil, err
		}
		slots = make([]domain.OccupiedSlot, 0, len(bs))
		for _, b := range bs {
			slots = append(slots, s.slotOf(b))
		}
		_ = s.d.Cache.SetField(ctx, key, field, slots, int(s.d.CacheTTL.Seconds()))
	}
	return refreshSlots(slots, now, date == ""), nil
}

func (s *Bookings) slotOf(b domain.Booking) domain.OccupiedSlot {
	start, end := s.d.Zone.Local(b.StartTime), s.d.Zone.Local(b.EndTime)
	hours, _ := durationHours(b.StartTime, b.EndTime).Float64()
	return domain.OccupiedSlot{
		BookingID:     b.ID,
		Status:        b.Status,
		TimeSlot:      start.Format("3:04pm") + " - " + end.Format("3:04pm"),
		Start:         start,
		End:           end,
		DurationHours: hours,
	}
}

// refreshSlots recomputes the time-dependent parts of a possibly cached view.
func refreshSlots(in []domain.OccupiedSlot, now time.Time, upcomingOnly bool) []domain.OccupiedSlot {
	out := make([]domain.OccupiedSlot, 0, len(in))
	for _, sl := range in {
		if upcomingOnly && sl.End.Before(now) {
			continue
		}
		sl.IsCurrent = !now.Before(sl.Start) && now.Before(sl.End)
		out = append(out, sl)
	}
	return out
}

func (s *Bookings) requireRoom(ctx context.Context, roomID string) error {
	_, _, err := s.d.Store.GetRoom(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFoundError("Room")
	}
	return err
}
