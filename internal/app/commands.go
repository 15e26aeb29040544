package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"roomhub/internal/domain"
)

// Bookings owns the booking state machine and its read projections.
type Bookings struct {
	d       Deps
	pricing Pricing
}

func NewBookings(d Deps) *Bookings { return &Bookings{d: d.withDefaults()} }

type CreateBookingInput struct {
	CustomerID  string
	RoomID      string
	Start       time.Time
	End         time.Time
	PromotionID string
}

// Create validates, prices and inserts a pending booking in one
// transaction. The room row stays locked from the overlap test until the
// insert commits, so two overlapping requests on one room cannot both pass.
func (s *Bookings) Create(ctx context.Context, in CreateBookingInput) (domain.BookingDetail, error) {
	if in.CustomerID == "" || in.RoomID == "" || in.Start.IsZero() || in.End.IsZero() {
		return domain.BookingDetail{}, domain.ValidationError("Missing required fields")
	}
	start, end := in.Start.UTC(), in.End.UTC()
	now := s.d.now()
	if err := checkInterval(start, end, now); err != nil {
		return domain.BookingDetail{}, err
	}

	var (
		b      domain.Booking
		room   domain.Room
		branch domain.Branch
		quote  Quote
	)
	err := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		room, branch, err = tx.LockRoom(ctx, in.RoomID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError("Room")
		}
		if err != nil {
			return err
		}
		if err := checkRoom(s.d.Zone, room, branch, start, end); err != nil {
			return err
		}
		taken, err := tx.HasOverlap(ctx, room.ID, start, end)
		if err != nil {
			return err
		}
		if taken {
			return domain.ConflictError(reasonSlotTaken)
		}
		quote, err = s.pricing.Quote(ctx, tx, room, start, end, in.PromotionID)
		if err != nil {
			return err
		}
		b = domain.Booking{
			ID:         uuid.NewString(),
			CustomerID: in.CustomerID,
			RoomID:     room.ID,
			StartTime:  start,
			EndTime:    end,
			TotalPrice: quote.Total,
			Status:     domain.BookingPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if quote.Promotion != nil {
			id := quote.Promotion.ID
			b.PromotionID = &id
		}
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		return domain.BookingDetail{}, err
	}

	s.d.Log.Info().Str("booking_id", b.ID).Str("room_id", b.RoomID).
		Str("total", b.TotalPrice.StringFixed(3)).Msg("booking created")
	s.invalidateRoom(ctx, b.RoomID)

	detail := domain.BookingDetail{Booking: b, Room: room, Branch: branch, Promotion: quote.Promotion}
	if c, err := s.d.Store.GetCustomer(ctx, b.CustomerID); err == nil {
		detail.Customer = &c
	}
	s.d.Notifier.Publish(ctx, domain.Event{Name: domain.EventBookingCreated, RoomID: b.RoomID, Payload: domain.PayloadOf(b), At: now})
	return detail, nil
}

// Cancel moves a pending or confirmed booking to cancelled. Only the
// booking's customer or an admin may do so.
func (s *Bookings) Cancel(ctx context.Context, bookingID string, by domain.Actor) (domain.Booking, error) {
	now := s.d.now()
	var b domain.Booking
	err := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		b, err = tx.GetBookingForUpdate(ctx, bookingID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError("Booking")
		}
		if err != nil {
			return err
		}
		if !by.IsAdmin() && b.CustomerID != by.ID {
			return domain.UnauthorizedError("Unauthorized")
		}
		if b.Status == domain.BookingCancelled {
			return domain.StateError("Booking already cancelled")
		}
		return s.transition(ctx, tx, &b, domain.BookingCancelled, now)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	s.d.Log.Info().Str("booking_id", b.ID).Str("by", by.ID).Msg("booking cancelled")
	s.invalidateRoom(ctx, b.RoomID)
	s.d.Notifier.Publish(ctx, domain.Event{
		Name:    domain.EventBookingCancelled,
		RoomID:  b.RoomID,
		Payload: domain.PayloadOf(b),
		At:      now,
	})
	return b, nil
}

// Complete is the hook for the scheduled job that closes out confirmed
// bookings once they have been used.
func (s *Bookings) Complete(ctx context.Context, bookingID string) (domain.Booking, error) {
	now := s.d.now()
	var b domain.Booking
	err := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		b, err = tx.GetBookingForUpdate(ctx, bookingID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError("Booking")
		}
		if err != nil {
			return err
		}
		return s.transition(ctx, tx, &b, domain.BookingCompleted, now)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	s.invalidateRoom(ctx, b.RoomID)
	return b, nil
}

func (s *Bookings) transition(ctx context.Context, tx domain.Tx, b *domain.Booking, to domain.BookingStatus, at time.Time) error {
	if !domain.CanTransition(b.Status, to) {
		return domain.StateError(fmt.Sprintf("Cannot move booking from %s to %s", b.Status, to))
	}
	ok, err := tx.UpdateBookingStatus(ctx, b.ID, b.Status, to, at)
	if err != nil {
		return err
	}
	if !ok {
		return domain.StateError("Booking was modified concurrently")
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

// ---- cache invalidation ----

func occupiedKey(roomID string) string { return "occupied:" + roomID }

func (s *Bookings) invalidateRoom(ctx context.Context, roomID string) {
	invalidateRoom(ctx, s.d, roomID)
}

func invalidateRoom(ctx context.Context, d Deps, roomID string) {
	if err := d.Cache.Del(ctx, occupiedKey(roomID)); err != nil {
		d.Log.Warn().Err(err).Str("room_id", roomID).Msg("cache invalidation failed")
	}
}
