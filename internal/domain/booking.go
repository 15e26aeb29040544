package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return st, true
	}
	return "", false
}

func (s BookingStatus) Terminal() bool { return s == BookingCancelled || s == BookingCompleted }

// ActiveStatuses are the statuses that occupy a room.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingCompleted}

var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID          string
	CustomerID  string
	RoomID      string
	StartTime   time.Time
	EndTime     time.Time
	TotalPrice  decimal.Decimal // 3dp, captured at booking time
	PromotionID *string
	Status      BookingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overlaps is the room-conflict test between an existing booking
// [existingStart, existingEnd) and a requested [start, end). Touching
// intervals do not overlap.
func Overlaps(existingStart, existingEnd, start, end time.Time) bool {
	return (!existingStart.After(start) && existingEnd.After(start)) ||
		(existingStart.Before(end) && !existingEnd.Before(end)) ||
		(!existingStart.Before(start) && !existingEnd.After(end))
}

// BookingDetail is a booking with its denormalized projections.
type BookingDetail struct {
	Booking
	Customer  *Customer
	Room      Room
	Branch    Branch
	Promotion *Promotion
}

// OccupiedSlot is one entry of a room's occupied-times view, in local time.
type OccupiedSlot struct {
	BookingID     string        `json:"booking_id"`
	Status        BookingStatus `json:"status"`
	TimeSlot      string        `json:"time_slot"`
	Start         time.Time     `json:"start_time"`
	End           time.Time     `json:"end_time"`
	DurationHours float64       `json:"duration_hours"`
	IsCurrent     bool          `json:"is_current"`
}

// BookingPayload is the event body published for lifecycle changes.
type BookingPayload struct {
	ID         string        `json:"id"`
	RoomID     string        `json:"room_id"`
	CustomerID string        `json:"customer_id"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Status     BookingStatus `json:"status"`
	TotalPrice string        `json:"total_price"`
}

func PayloadOf(b Booking) BookingPayload {
	return BookingPayload{
		ID:         b.ID,
		RoomID:     b.RoomID,
		CustomerID: b.CustomerID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Status:     b.Status,
		TotalPrice: b.TotalPrice.StringFixed(3),
	}
}
