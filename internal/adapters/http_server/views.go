package httpserver

import (
	"time"

	"github.com/shopspring/decimal"

	"roomhub/internal/app"
	"roomhub/internal/domain"
)

type bookingJSON struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	RoomID      string    `json:"room_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalPrice  string    `json:"total_price"`
	PromotionID *string   `json:"promotion_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBooking(b domain.Booking) bookingJSON {
	return bookingJSON{
		ID:          b.ID,
		CustomerID:  b.CustomerID,
		RoomID:      b.RoomID,
		StartTime:   b.StartTime.UTC(),
		EndTime:     b.EndTime.UTC(),
		TotalPrice:  b.TotalPrice.StringFixed(3),
		PromotionID: b.PromotionID,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt.UTC(),
	}
}

func toBookings(bs []domain.Booking) []bookingJSON {
	out := make([]bookingJSON, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBooking(b))
	}
	return out
}

type bookingDetailJSON struct {
	bookingJSON
	Customer *struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer,omitempty"`
	Room struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		PricePerHour string `json:"price_per_hour"`
	} `json:"room"`
	Branch struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"branch"`
	Promotion *struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		DiscountPercent string `json:"discount_percent"`
	} `json:"promotion,omitempty"`
}

func toBookingDetail(d domain.BookingDetail) bookingDetailJSON {
	out := bookingDetailJSON{bookingJSON: toBooking(d.Booking)}
	if d.Customer != nil {
		out.Customer = &struct {
			ID        string `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		}{d.Customer.ID, d.Customer.FirstName, d.Customer.LastName}
	}
	out.Room.ID, out.Room.Name, out.Room.PricePerHour = d.Room.ID, d.Room.Name, d.Room.PricePerHour.StringFixed(3)
	out.Branch.ID, out.Branch.Name = d.Branch.ID, d.Branch.Name
	if d.Promotion != nil {
		out.Promotion = &struct {
			ID              string `json:"id"`
			Title           string `json:"title"`
			DiscountPercent string `json:"discount_percent"`
		}{d.Promotion.ID, d.Promotion.Title, d.Promotion.DiscountPercent.StringFixed(2)}
	}
	return out
}

type chargeJSON struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	QRString      string `json:"qr_string"`
	QRImage       string `json:"qr_image"`
	Deeplink      string `json:"abapay_deeplink"`
	AppStore      string `json:"app_store,omitempty"`
	PlayStore     string `json:"play_store,omitempty"`
}

func toCharge(c app.Charge) chargeJSON {
	return chargeJSON{
		PaymentID:     c.PaymentID,
		TransactionID: c.TransactionID,
		Amount:        c.Amount.StringFixed(2),
		Currency:      c.Currency,
		QRString:      c.QRString,
		QRImage:       c.QRImage,
		Deeplink:      c.Deeplink,
		AppStore:      c.AppStore,
		PlayStore:     c.PlayStore,
	}
}

type settlementJSON struct {
	TransactionID    string     `json:"transaction_id"`
	BookingID        string     `json:"booking_id"`
	PaymentStatus    string     `json:"payment_status"`
	BookingStatus    string     `json:"booking_status"`
	Amount           string     `json:"amount"`
	PaidAt           *time.Time `json:"paid_at"`
	AlreadyProcessed bool       `json:"already_processed"`
}

func toSettlement(s app.Settlement) settlementJSON {
	return settlementJSON{
		TransactionID:    s.TransactionID,
		BookingID:        s.BookingID,
		PaymentStatus:    string(s.PaymentStatus),
		BookingStatus:    string(s.BookingStatus),
		Amount:           s.Amount.StringFixed(2),
		PaidAt:           s.PaidAt,
		AlreadyProcessed: s.AlreadyProcessed,
	}
}

type paymentJSON struct {
	ID              string     `json:"id"`
	BookingID       string     `json:"booking_id"`
	TransactionID   string     `json:"transaction_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	PaymentMethod   string     `json:"payment_method"`
	Status          string     `json:"payment_status"`
	StatusCode      *int       `json:"payment_status_code"`
	OriginalAmount  *string    `json:"original_amount"`
	RefundAmount    *string    `json:"refund_amount"`
	DiscountAmount  *string    `json:"discount_amount"`
	APV             *string    `json:"apv"`
	TransactionDate *time.Time `json:"transaction_date"`
	PaidAt          *time.Time `json:"paid_at"`
	LastCheckedAt   *time.Time `json:"last_checked_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toPayment(p domain.Payment) paymentJSON {
	out := paymentJSON{
		ID:              p.ID,
		BookingID:       p.BookingID,
		TransactionID:   p.TransactionID,
		Amount:          p.Amount.StringFixed(2),
		Currency:        p.Currency,
		PaymentMethod:   p.Method,
		Status:          string(p.Status),
		StatusCode:      p.StatusCode,
		APV:             p.APV,
		TransactionDate: p.TransactionDate,
		PaidAt:          p.PaidAt,
		LastCheckedAt:   p.LastCheckedAt,
		CreatedAt:       p.CreatedAt.UTC(),
	}
	out.OriginalAmount = money(p.OriginalAmount)
	out.RefundAmount = money(p.RefundAmount)
	out.DiscountAmount = money(p.DiscountAmount)
	return out
}

func money(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func toPayments(ps []domain.Payment) []paymentJSON {
	out := make([]paymentJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPayment(p))
	}
	return out
}

type slotCheckJSON struct {
	Available      bool   `json:"available"`
	Reason         string `json:"reason,omitempty"`
	DurationHours  string `json:"duration_hours,omitempty"`
	EstimatedPrice string `json:"estimated_price,omitempty"`
}

func toSlotCheck(c app.SlotCheck) slotCheckJSON {
	out := slotCheckJSON{Available: c.Available, Reason: c.Reason}
	if c.Available {
		out.DurationHours = c.DurationHours.StringFixed(2)
		out.EstimatedPrice = c.EstimatedPrice.StringFixed(3)
	}
	return out
}
