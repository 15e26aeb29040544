package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"roomhub/internal/domain"
)

const maxTransactionIDAttempts = 5

// Payments generates gateway charges for bookings and reconciles their
// outcome with booking state.
type Payments struct {
	d  Deps
	gw domain.PaymentGateway
}

func NewPayments(d Deps, gw domain.PaymentGateway) *Payments {
	return &Payments{d: d.withDefaults(), gw: gw}
}

// Payer identifies who the gateway should bill. Empty fields are filled
// from the customer record.
type Payer struct {
	FirstName string
	LastName  string
	Email     string
}

type Charge struct {
	PaymentID     string
	TransactionID string
	Amount        decimal.Decimal // 2dp
	Currency      string
	QRString      string
	QRImage       string
	Deeplink      string
	AppStore      string
	PlayStore     string
}

// GenerateCharge records a pending payment for a pending booking, then asks
// the gateway for a QR charge. A gateway failure marks that payment failed
// and leaves the booking pending so the charge can be retried.
func (s *Payments) GenerateCharge(ctx context.Context, bookingID string, payer Payer) (Charge, error) {
	now := s.d.now()
	var p domain.Payment
	err := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError("Booking")
		}
		if err != nil {
			return err
		}
		if b.Status != domain.BookingPending {
			return domain.StateError("Booking is not awaiting payment")
		}
		paid, err := tx.HasCompletedPayment(ctx, b.ID)
		if err != nil {
			return err
		}
		if paid {
			return domain.StateError("Booking is already paid")
		}
		p = domain.Payment{
			ID:        uuid.NewString(),
			BookingID: b.ID,
			Amount:    b.TotalPrice.Round(2),
			Currency:  domain.DefaultCurrency,
			Method:    domain.DefaultPaymentMethod,
			Status:    domain.PaymentPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for attempt := 0; attempt < maxTransactionIDAttempts; attempt++ {
			p.TransactionID = domain.NewTransactionID(b.ID, now, attempt)
			err = tx.InsertPayment(ctx, p)
			if !errors.Is(err, domain.ErrDuplicate) {
				return err
			}
		}
		return err
	})
	if err != nil {
		return Charge{}, err
	}

	if payer.Email == "" || payer.FirstName == "" {
		payer = s.fillPayer(ctx, p.BookingID, payer)
	}
	res, err := s.gw.CreateCharge(ctx, domain.ChargeRequest{
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		FirstName:     payer.FirstName,
		LastName:      payer.LastName,
		Email:         payer.Email,
	})
	if err != nil {
		s.d.Log.Warn().Err(err).Str("transaction_id", p.TransactionID).Msg("charge generation failed")
		failedAt := s.d.now()
		if ferr := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
			return tx.MarkPaymentFailed(ctx, p.TransactionID, failedAt)
		}); ferr != nil {
			s.d.Log.Error().Err(ferr).Str("transaction_id", p.TransactionID).Msg("mark payment failed")
		}
		return Charge{}, domain.GatewayError(err)
	}
	if err := s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		return tx.RecordCharge(ctx, p.TransactionID, res, s.d.now())
	}); err != nil {
		return Charge{}, err
	}

	currency := p.Currency
	if res.Currency != "" {
		currency = res.Currency
	}
	s.d.Log.Info().Str("transaction_id", p.TransactionID).Str("booking_id", p.BookingID).
		Str("amount", p.Amount.StringFixed(2)).Msg("charge generated")
	return Charge{
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		Currency:      currency,
		QRString:      res.QRString,
		QRImage:       res.QRImage,
		Deeplink:      res.Deeplink,
		AppStore:      res.AppStore,
		PlayStore:     res.PlayStore,
	}, nil
}

func (s *Payments) fillPayer(ctx context.Context, bookingID string, payer Payer) Payer {
	b, err := s.d.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return payer
	}
	c, err := s.d.Store.GetCustomer(ctx, b.CustomerID)
	if err != nil {
		return payer
	}
	if payer.FirstName == "" {
		payer.FirstName, payer.LastName = c.FirstName, c.LastName
	}
	if payer.Email == "" {
		payer.Email = c.Email
	}
	return payer
}

// Settlement is the outcome of VerifyAndSettle.
type Settlement struct {
	TransactionID    string
	BookingID        string
	PaymentStatus    domain.PaymentStatus
	BookingStatus    domain.BookingStatus
	Amount           decimal.Decimal
	PaidAt           *time.Time
	AlreadyProcessed bool
	// Duplicate marks a gateway success for a booking that another payment
	// already paid; the payment keeps its status and only the check is recorded.
	Duplicate bool
	// Confirmed is true only for the call that moved the booking to confirmed.
	Confirmed bool
}

// Outcome labels the settlement for metrics and logs: the payment status
// for a fresh settlement, otherwise already_processed or duplicate.
func (s Settlement) Outcome() string {
	switch {
	case s.AlreadyProcessed:
		return "already_processed"
	case s.Duplicate:
		return "duplicate"
	}
	return string(s.PaymentStatus)
}

// VerifyAndSettle reconciles one payment with the gateway. A payment that
// is already completed or refunded is returned as is without contacting
// the gateway. Otherwise the payment update and the booking confirmation
// commit together, guarded so that concurrent calls apply them once.
func (s *Payments) VerifyAndSettle(ctx context.Context, txID string) (Settlement, error) {
	p, err := s.d.Store.GetPaymentByTransaction(ctx, txID)
	if errors.Is(err, domain.ErrNotFound) {
		return Settlement{}, domain.NotFoundError("Payment")
	}
	if err != nil {
		return Settlement{}, err
	}
	if p.Status.Terminal() {
		return s.processed(ctx, p)
	}

	gs, err := s.gw.CheckStatus(ctx, txID)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return Settlement{}, &domain.Error{Kind: domain.KindNotFound, Reason: "Transaction not found at payment gateway", Err: err}
	}
	if err != nil {
		return Settlement{}, domain.GatewayError(err)
	}

	status := domain.MapGatewayStatus(gs.StatusCode, gs.StatusText)
	now := s.d.now()
	out := Settlement{TransactionID: txID, BookingID: p.BookingID, Amount: p.Amount}
	err = s.d.Store.WithTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		cur, err := tx.GetPaymentForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		out.BookingStatus = b.Status
		if cur.Status.Terminal() {
			out.PaymentStatus, out.PaidAt, out.AlreadyProcessed = cur.Status, cur.PaidAt, true
			return nil
		}

		st := domain.PaymentSettlement{
			TransactionID:   txID,
			Status:          status,
			StatusCode:      gs.StatusCode,
			OriginalAmount:  gs.OriginalAmount,
			RefundAmount:    gs.RefundAmount,
			DiscountAmount:  gs.DiscountAmount,
			TransactionDate: gs.TransactionDate,
			CheckedAt:       now,
		}
		if status == domain.PaymentUnknown {
			st.Status = cur.Status
		}
		if gs.APV != "" {
			apv := gs.APV
			st.APV = &apv
		}
		if status == domain.PaymentCompleted {
			paid, err := tx.HasCompletedPayment(ctx, b.ID)
			if err != nil {
				return err
			}
			if paid {
				s.d.Log.Warn().Str("transaction_id", txID).Str("booking_id", b.ID).
					Msg("gateway reports success for a booking that is already paid")
				st.Status, out.Duplicate = cur.Status, true
			} else {
				st.PaidAt = &now
			}
		}
		changed, err := tx.SettlePayment(ctx, st)
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ConflictError("Booking already has a completed payment")
		}
		if err != nil {
			return err
		}
		if !changed {
			out.PaymentStatus, out.PaidAt, out.AlreadyProcessed = cur.Status, cur.PaidAt, true
			return nil
		}
		out.PaymentStatus, out.PaidAt = st.Status, st.PaidAt

		if st.Status != domain.PaymentCompleted {
			return nil
		}
		if b.Status != domain.BookingPending {
			s.d.Log.Warn().Str("transaction_id", txID).Str("booking_id", b.ID).
				Str("booking_status", string(b.Status)).Msg("payment completed for booking that is no longer pending")
			return nil
		}
		ok, err := tx.UpdateBookingStatus(ctx, b.ID, domain.BookingPending, domain.BookingConfirmed, now)
		if err != nil {
			return err
		}
		if ok {
			out.BookingStatus, out.Confirmed = domain.BookingConfirmed, true
		}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}

	s.d.Log.Info().Str("transaction_id", txID).Str("payment_status", string(out.PaymentStatus)).
		Str("booking_status", string(out.BookingStatus)).Bool("confirmed", out.Confirmed).Msg("payment verified")
	if out.Confirmed {
		if b, err := s.d.Store.GetBooking(ctx, out.BookingID); err == nil {
			invalidateRoom(ctx, s.d, b.RoomID)
			s.d.Notifier.Publish(ctx, domain.Event{
				Name:    domain.EventBookingConfirmed,
				RoomID:  b.RoomID,
				Payload: domain.PayloadOf(b),
				At:      now,
			})
		}
	}
	return out, nil
}

func (s *Payments) processed(ctx context.Context, p domain.Payment) (Settlement, error) {
	out := Settlement{
		TransactionID:    p.TransactionID,
		BookingID:        p.BookingID,
		PaymentStatus:    p.Status,
		Amount:           p.Amount,
		PaidAt:           p.PaidAt,
		AlreadyProcessed: true,
	}
	b, err := s.d.Store.GetBooking(ctx, p.BookingID)
	if err != nil {
		return Settlement{}, err
	}
	out.BookingStatus = b.Status
	return out, nil
}

// PaymentView is a payment with the booking it belongs to.
type PaymentView struct {
	Payment domain.Payment
	Booking domain.Booking
}

func (s *Payments) GetByTransaction(ctx context.Context, txID string) (PaymentView, error) {
	p, err := s.d.Store.GetPaymentByTransaction(ctx, txID)
	if errors.Is(err, domain.ErrNotFound) {
		return PaymentView{}, domain.NotFoundError("Payment")
	}
	if err != nil {
		return PaymentView{}, err
	}
	b, err := s.d.Store.GetBooking(ctx, p.BookingID)
	if err != nil {
		return PaymentView{}, err
	}
	return PaymentView{Payment: p, Booking: b}, nil
}

// History lists a booking's payment attempts, newest first.
func (s *Payments) History(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	if _, err := s.d.Store.GetBooking(ctx, bookingID); errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFoundError("Booking")
	} else if err != nil {
		return nil, err
	}
	return s.d.Store.ListPayments(ctx, bookingID)
}

// StalePending lists pending payments not checked within olderThan.
func (s *Payments) StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Payment, error) {
	return s.d.Store.ListStalePayments(ctx, s.d.now().Add(-olderThan), limit)
}
