package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"roomhub/internal/domain"
)

// SlotCheck is the read-only verdict on a candidate interval.
type SlotCheck struct {
	Available      bool
	Reason         string
	DurationHours  decimal.Decimal
	EstimatedPrice decimal.Decimal // undiscounted, 3dp
}

type Availability struct{ d Deps }

func NewAvailability(d Deps) *Availability { return &Availability{d: d.withDefaults()} }

// CheckSlot tells whether [start, end) on room is free. Business rule
// failures come back as Available=false with a reason; a missing room is
// a NotFound error.
func (a *Availability) CheckSlot(ctx context.Context, roomID string, start, end time.Time) (SlotCheck, error) {
	if roomID == "" || start.IsZero() || end.IsZero() {
		return SlotCheck{}, domain.ValidationError("Missing required fields")
	}
	if err := checkInterval(start, end, a.d.now()); err != nil {
		return SlotCheck{Reason: domain.ReasonOf(err)}, nil
	}
	room, branch, err := a.d.Store.GetRoom(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return SlotCheck{}, domain.NotFoundError("Room")
	}
	if err != nil {
		return SlotCheck{}, err
	}
	if err := checkRoom(a.d.Zone, room, branch, start, end); err != nil {
		return SlotCheck{Reason: domain.ReasonOf(err)}, nil
	}
	taken, err := a.d.Store.HasOverlap(ctx, room.ID, start, end)
	if err != nil {
		return SlotCheck{}, err
	}
	if taken {
		return SlotCheck{Reason: reasonSlotTaken}, nil
	}
	hours := durationHours(start, end)
	return SlotCheck{
		Available:      true,
		DurationHours:  hours,
		EstimatedPrice: room.PricePerHour.Mul(hours).Round(3),
	}, nil
}

const reasonSlotTaken = "Time slot is already booked"

func checkInterval(start, end, now time.Time) error {
	if !start.Before(end) {
		return domain.ValidationError("Start time must be before end time")
	}
	if start.Before(now) {
		return domain.ValidationError("Cannot book in the past")
	}
	return nil
}

// checkRoom applies the room, branch and opening-hours rules. The overlap
// test is separate because writers must run it under the room lock.
func checkRoom(z domain.Zone, room domain.Room, branch domain.Branch, start, end time.Time) error {
	if !room.IsAvailable {
		return domain.ConflictError("Room is not available")
	}
	if !branch.IsActive {
		return domain.ConflictError("Branch is not active")
	}
	if reason := z.CheckBusinessHours(branch, start, end); reason != "" {
		return domain.ValidationError(reason)
	}
	return nil
}
