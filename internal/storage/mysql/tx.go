package mysql

import (
	"context"
	"errors"
	"time"

	"roomhub/internal/domain"
)

type sqlTx struct{ q queryer }

func (t *sqlTx) LockRoom(ctx context.Context, roomID string) (domain.Room, domain.Branch, error) {
	return scanRoom(t.q.QueryRowContext(ctx, lockRoomSQL, roomID))
}

func (t *sqlTx) HasOverlap(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	return hasOverlap(ctx, t.q, roomID, start, end)
}

func (t *sqlTx) FindPromotion(ctx context.Context, q domain.PromotionQuery) (*domain.Promotion, error) {
	return findPromotion(ctx, t.q, q)
}

func (t *sqlTx) InsertBooking(ctx context.Context, b domain.Booking) error {
	_, err := t.q.ExecContext(ctx, insertBookingSQL,
		b.ID, b.CustomerID, b.RoomID, b.StartTime.UTC(), b.EndTime.UTC(), b.TotalPrice.StringFixed(3),
		valStr(b.PromotionID), string(b.Status), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	return mapErr(err)
}

func (t *sqlTx) GetBookingForUpdate(ctx context.Context, id string) (domain.Booking, error) {
	return scanBooking(t.q.QueryRowContext(ctx, getBookingForUpdateSQL, id))
}

func (t *sqlTx) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, updateBookingStatusSQL, string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *sqlTx) HasCompletedPayment(ctx context.Context, bookingID string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, hasCompletedPaymentSQL, bookingID).Scan(&exists)
	return exists, err
}

func (t *sqlTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, insertPaymentSQL,
		p.ID, p.BookingID, p.TransactionID, p.Amount.StringFixed(2), p.Currency, p.Method, string(p.Status),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return mapErr(err)
}

func (t *sqlTx) RecordCharge(ctx context.Context, txID string, c domain.ChargeResult, at time.Time) error {
	res, err := t.q.ExecContext(ctx, recordChargeSQL, c.QRString, c.QRImage, c.Deeplink, c.Currency, at.UTC(), txID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *sqlTx) MarkPaymentFailed(ctx context.Context, txID string, at time.Time) error {
	_, err := t.q.ExecContext(ctx, markPaymentFailedSQL, at.UTC(), at.UTC(), txID)
	return err
}

func (t *sqlTx) GetPaymentForUpdate(ctx context.Context, txID string) (domain.Payment, error) {
	return scanPayment(t.q.QueryRowContext(ctx, getPaymentForUpdateSQL, txID))
}

func (t *sqlTx) SettlePayment(ctx context.Context, s domain.PaymentSettlement) (bool, error) {
	res, err := t.q.ExecContext(ctx, settlePaymentSQL,
		string(s.Status), s.StatusCode,
		valDec(s.OriginalAmount), valDec(s.RefundAmount), valDec(s.DiscountAmount),
		valStr(s.APV), valTime(s.TransactionDate), s.CheckedAt.UTC(), valTime(s.PaidAt), s.CheckedAt.UTC(),
		s.TransactionID)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func mapErr(err error) error {
	if isMySQLError(err, errDuplicateEntry) {
		return errors.Join(domain.ErrDuplicate, err)
	}
	return err
}
