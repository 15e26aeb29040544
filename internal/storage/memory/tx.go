package memory

import (
	"context"
	"time"

	"roomhub/internal/domain"
)

type tx struct{ st *state }

func (t *tx) LockRoom(ctx context.Context, roomID string) (domain.Room, domain.Branch, error) {
	return t.st.room(roomID)
}

func (t *tx) HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	return t.st.hasOverlap(roomID, start, end), nil
}

func (t *tx) FindPromotion(ctx context.Context, q domain.PromotionQuery) (*domain.Promotion, error) {
	return t.st.findPromotion(q), nil
}

func (t *tx) InsertBooking(ctx context.Context, b domain.Booking) error {
	if _, ok := t.st.bookings[b.ID]; ok {
		return domain.ErrDuplicate
	}
	t.st.bookings[b.ID] = b
	return nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (t *tx) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) (bool, error) {
	b, ok := t.st.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	t.st.bookings[id] = b
	return true, nil
}

func (t *tx) HasCompletedPayment(ctx context.Context, bookingID string) (bool, error) {
	for _, p := range t.st.payments {
		if p.BookingID == bookingID && p.Status == domain.PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertPayment(ctx context.Context, p domain.Payment) error {
	if _, ok := t.st.payments[p.TransactionID]; ok {
		return domain.ErrDuplicate
	}
	t.st.payments[p.TransactionID] = p
	return nil
}

func (t *tx) RecordCharge(ctx context.Context, txID string, c domain.ChargeResult, at time.Time) error {
	p, ok := t.st.payments[txID]
	if !ok {
		return domain.ErrNotFound
	}
	p.QRString, p.QRImage, p.Deeplink = c.QRString, c.QRImage, c.Deeplink
	if c.Currency != "" {
		p.Currency = c.Currency
	}
	p.UpdatedAt = at
	t.st.payments[txID] = p
	return nil
}

func (t *tx) MarkPaymentFailed(ctx context.Context, txID string, at time.Time) error {
	p, ok := t.st.payments[txID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return nil
	}
	p.Status = domain.PaymentFailed
	p.LastCheckedAt = &at
	p.UpdatedAt = at
	t.st.payments[txID] = p
	return nil
}

func (t *tx) GetPaymentForUpdate(ctx context.Context, txID string) (domain.Payment, error) {
	p, ok := t.st.payments[txID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (t *tx) SettlePayment(ctx context.Context, s domain.PaymentSettlement) (bool, error) {
	p, ok := t.st.payments[s.TransactionID]
	if !ok || p.Status.Terminal() {
		return false, nil
	}
	if s.Status == domain.PaymentCompleted {
		for _, other := range t.st.payments {
			if other.BookingID == p.BookingID && other.TransactionID != p.TransactionID &&
				other.Status == domain.PaymentCompleted {
				return false, domain.ErrDuplicate
			}
		}
	}
	code := s.StatusCode
	p.Status = s.Status
	p.StatusCode = &code
	p.OriginalAmount, p.RefundAmount, p.DiscountAmount = s.OriginalAmount, s.RefundAmount, s.DiscountAmount
	p.APV = s.APV
	p.TransactionDate = s.TransactionDate
	checked := s.CheckedAt
	p.LastCheckedAt = &checked
	if s.PaidAt != nil {
		p.PaidAt = s.PaidAt
	}
	p.UpdatedAt = s.CheckedAt
	t.st.payments[s.TransactionID] = p
	return true, nil
}
