package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PromotionFinder is satisfied by both Store reads and a Tx.
type PromotionFinder interface {
	FindPromotion(ctx context.Context, q PromotionQuery) (*Promotion, error)
}

type BookingFilter struct {
	CustomerID string
	Status     BookingStatus // empty means any
	Limit      int
}

type RoomBookingFilter struct {
	RoomID   string
	Statuses []BookingStatus
	// StartFrom/StartTo bound start_time to [StartFrom, StartTo) when set.
	StartFrom, StartTo *time.Time
	// EndAfter keeps bookings with end_time >= EndAfter when set.
	EndAfter *time.Time
}

// Store is the durable state of rooms, bookings and payments.
type Store interface {
	PromotionFinder

	// WithTx runs fn in one READ COMMITTED transaction and commits only if
	// fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetRoom(ctx context.Context, id string) (Room, Branch, error)
	GetPromotion(ctx context.Context, id string) (Promotion, error)
	GetCustomer(ctx context.Context, id string) (Customer, error)
	HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error)

	GetBooking(ctx context.Context, id string) (Booking, error)
	ListCustomerBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	ListRoomBookings(ctx context.Context, f RoomBookingFilter) ([]Booking, error)

	GetPaymentByTransaction(ctx context.Context, txID string) (Payment, error)
	ListPayments(ctx context.Context, bookingID string) ([]Payment, error)
	ListStalePayments(ctx context.Context, checkedBefore time.Time, limit int) ([]Payment, error)
}

// Tx is the locked, transactional view used by writers.
type Tx interface {
	PromotionFinder

	// LockRoom loads a room and its branch and holds the room's row lock
	// until the transaction ends; concurrent creations on a room serialize here.
	LockRoom(ctx context.Context, roomID string) (Room, Branch, error)
	HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error)
	InsertBooking(ctx context.Context, b Booking) error

	GetBookingForUpdate(ctx context.Context, id string) (Booking, error)
	// UpdateBookingStatus moves a booking only if it is still in from.
	UpdateBookingStatus(ctx context.Context, id string, from, to BookingStatus, at time.Time) (bool, error)

	HasCompletedPayment(ctx context.Context, bookingID string) (bool, error)
	// InsertPayment returns ErrDuplicate when the transaction id is taken.
	InsertPayment(ctx context.Context, p Payment) error
	RecordCharge(ctx context.Context, txID string, c ChargeResult, at time.Time) error
	MarkPaymentFailed(ctx context.Context, txID string, at time.Time) error
	GetPaymentForUpdate(ctx context.Context, txID string) (Payment, error)
	// SettlePayment applies s unless the payment is already terminal and
	// reports whether a row changed.
	SettlePayment(ctx context.Context, s PaymentSettlement) (bool, error)
}

type ChargeRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	FirstName     string
	LastName      string
	Email         string
}

type ChargeResult struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	QRString      string
	QRImage       string
	Deeplink      string
	AppStore      string
	PlayStore     string
}

type GatewayStatus struct {
	StatusCode      int
	StatusText      string
	OriginalAmount  decimal.NullDecimal
	RefundAmount    decimal.NullDecimal
	DiscountAmount  decimal.NullDecimal
	APV             string
	TransactionDate *time.Time
}

// PaymentGateway is the external QR payment provider.
// Errors wrap ErrGatewayUnavailable or ErrTransactionNotFound.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	CheckStatus(ctx context.Context, txID string) (GatewayStatus, error)
}

const (
	EventBookingCreated   = "booking:created"
	EventBookingCancelled = "booking:cancelled"
	EventBookingConfirmed = "booking:confirmed"
)

type Event struct {
	Name    string    `json:"event"`
	RoomID  string    `json:"room_id"`
	Payload any       `json:"data"`
	At      time.Time `json:"timestamp"`
}

// Notifier broadcasts booking lifecycle events. Publish must not block the
// caller and never reports failure.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	// GetField/SetField address one field of a hash so that deleting key
	// drops every variant cached under it.
	GetField(ctx context.Context, key, field string, dst any) (bool, error)
	SetField(ctx context.Context, key, field string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}
