package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
	// PaymentUnknown is what an unmapped gateway code yields; it is never persisted.
	PaymentUnknown PaymentStatus = "unknown"
)

// Terminal payments are settled and must never be touched again.
func (s PaymentStatus) Terminal() bool { return s == PaymentCompleted || s == PaymentRefunded }

var gatewayCodes = map[int]PaymentStatus{
	0: PaymentPending,
	1: PaymentCompleted,
	2: PaymentFailed,
	3: PaymentCancelled,
	4: PaymentRefunded,
	5: PaymentExpired,
}

// MapGatewayStatus converts a gateway code/text pair. The text APPROVED or
// COMPLETED wins over the numeric code; gateways do report mismatched pairs.
func MapGatewayStatus(code int, text string) PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "APPROVED", "COMPLETED":
		return PaymentCompleted
	}
	if s, ok := gatewayCodes[code]; ok {
		return s
	}
	return PaymentUnknown
}

const (
	DefaultCurrency      = "USD"
	DefaultPaymentMethod = "ABA_PAYWAY"
	maxTransactionIDLen  = 20
)

// NewTransactionID derives the gateway transaction id for a booking:
// "BK" + first 8 id characters + "-" + last 8 digits of the unix millis.
// attempt > 0 adds a base36 suffix so a retry after a duplicate key never
// reproduces the same id within one millisecond.
func NewTransactionID(bookingID string, now time.Time, attempt int) string {
	var short strings.Builder
	for _, r := range bookingID {
		if short.Len() == 8 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			short.WriteRune(r)
		}
	}
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	id := "BK" + short.String() + "-" + ms
	if attempt > 0 {
		id += strconv.FormatInt(int64(attempt%36), 36)
	}
	if len(id) > maxTransactionIDLen {
		id = id[:maxTransactionIDLen]
	}
	return id
}

type Payment struct {
	ID              string
	BookingID       string
	TransactionID   string
	Amount          decimal.Decimal // 2dp
	Currency        string
	Method          string
	Status          PaymentStatus
	StatusCode      *int
	QRString        string
	QRImage         string
	Deeplink        string
	OriginalAmount  decimal.NullDecimal
	RefundAmount    decimal.NullDecimal
	DiscountAmount  decimal.NullDecimal
	APV             *string
	TransactionDate *time.Time
	PaidAt          *time.Time
	LastCheckedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentSettlement is the local write that follows a gateway status check.
type PaymentSettlement struct {
	TransactionID   string
	Status          PaymentStatus
	StatusCode      int
	OriginalAmount  decimal.NullDecimal
	RefundAmount    decimal.NullDecimal
	DiscountAmount  decimal.NullDecimal
	APV             *string
	TransactionDate *time.Time
	CheckedAt       time.Time
	PaidAt          *time.Time
}
