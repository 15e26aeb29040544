package app_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"roomhub/internal/app"
	"roomhub/internal/domain"
)

func TestGenerateCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, "c1", "r1", local(10, 0), local(11, 30))

	c, err := f.payments.GenerateCharge(ctx, b.ID, app.Payer{})
	require.NoError(t, err)
	assert.Equal(t, "50.00", c.Amount.StringFixed(2))
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, "qr:"+c.TransactionID, c.QRString)
	assert.LessOrEqual(t, len(c.TransactionID), 20)

	require.Len(t, f.gw.charges, 1)
	req := f.gw.charges[0]
	assert.Equal(t, "50.00", req.Amount.StringFixed(2))
	assert.Equal(t, "Dara", req.FirstName)
	assert.Equal(t, "dara@example.com", req.Email)

	p, err := f.store.GetPaymentByTransaction(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, c.QRString, p.QRString)
}

func TestGenerateCharge_GatewayFailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, "c1", "r1", local(10, 0), local(11, 0))

	f.gw.createErr = fmt.Errorf("dial: %w", domain.ErrGatewayUnavailable)
	_, err := f.payments.GenerateCharge(ctx, b.ID, app.Payer{FirstName: "D", Email: "d@x.io"})
	wantKind(t, err, domain.KindGateway, "Payment gateway request failed")

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)

	ps, err := f.payments.History(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, domain.PaymentFailed, ps[0].Status)

	// retry in the same millisecond gets a fresh transaction id
	f.gw.createErr = nil
	c, err := f.payments.GenerateCharge(ctx, b.ID, app.Payer{FirstName: "D", Email: "d@x.io"})
	require.NoError(t, err)
	assert.NotEqual(t, ps[0].TransactionID, c.TransactionID)
}

func TestGenerateCharge_RequiresPendingBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, "c1", "r1", local(10, 0), local(11, 0))
	_, err := f.bookings.Cancel(ctx, b.ID, customer)
	require.NoError(t, err)

	_, err = f.payments.GenerateCharge(ctx, b.ID, app.Payer{})
	wantKind(t, err, domain.KindState, "")
	assert.Empty(t, f.gw.charges)

	_, err = f.payments.GenerateCharge(ctx, "missing", app.Payer{})
	wantKind(t, err, domain.KindNotFound, "Booking not found")
}

func chargedBooking(t *testing.T, f *fixture) (domain.BookingDetail, app.Charge) {
	t.Helper()
	b := f.book(t, "c1", "r1", local(10, 0), local(11, 30))
	c, err := f.payments.GenerateCharge(context.Background(), b.ID, app.Payer{})
	require.NoError(t, err)
	return b, c
}

func TestVerifyAndSettle_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, c := chargedBooking(t, f)
	f.gw.set(1, "")

	first, err := f.payments.VerifyAndSettle(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.True(t, first.Confirmed)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, domain.PaymentCompleted, first.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, first.BookingStatus)
	require.NotNil(t, first.PaidAt)

	second, err := f.payments.VerifyAndSettle(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.False(t, second.Confirmed)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.Equal(t, first.BookingStatus, second.BookingStatus)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt))
	assert.Equal(t, "completed", first.Outcome())
	assert.Equal(t, "already_processed", second.Outcome())

	assert.Equal(t, 1, f.gw.checks)
	assert.Equal(t, 1, f.events.count(domain.EventBookingConfirmed))

	got, _ := f.bookings.Get(ctx, b.ID)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
}

func TestVerifyAndSettle_SecondSuccessForPaidBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, first := chargedBooking(t, f)
	second, err := f.payments.GenerateCharge(ctx, b.ID, app.Payer{})
	require.NoError(t, err)
	require.NotEqual(t, first.TransactionID, second.TransactionID)
	f.gw.set(1, "")

	s, err := f.payments.VerifyAndSettle(ctx, first.TransactionID)
	require.NoError(t, err)
	require.True(t, s.Confirmed)

	s, err = f.payments.VerifyAndSettle(ctx, second.TransactionID)
	require.NoError(t, err)
	assert.True(t, s.Duplicate)
	assert.Equal(t, "duplicate", s.Outcome())
	assert.False(t, s.Confirmed)
	assert.False(t, s.AlreadyProcessed)
	assert.Equal(t, domain.PaymentPending, s.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, s.BookingStatus)

	p, err := f.store.GetPaymentByTransaction(ctx, second.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Nil(t, p.PaidAt)
	require.NotNil(t, p.LastCheckedAt)
	assert.True(t, p.LastCheckedAt.Equal(f.now))
	require.NotNil(t, p.StatusCode)
	assert.Equal(t, 1, *p.StatusCode)
	assert.Equal(t, 1, f.events.count(domain.EventBookingConfirmed))
}

func TestVerifyAndSettle_ConcurrentConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	_, c := chargedBooking(t, f)
	f.gw.set(1, "")

	var confirmed atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			s, err := f.payments.VerifyAndSettle(context.Background(), c.TransactionID)
			if err != nil {
				return err
			}
			if s.Confirmed {
				confirmed.Add(1)
			}
			if s.PaymentStatus != domain.PaymentCompleted || s.BookingStatus != domain.BookingConfirmed {
				return fmt.Errorf("unexpected settlement %+v", s)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, confirmed.Load())
	assert.Equal(t, 1, f.events.count(domain.EventBookingConfirmed))
}

func TestVerifyAndSettle_StatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		text    string
		payment domain.PaymentStatus
		booking domain.BookingStatus
	}{
		{"approved text wins", 0, "APPROVED", domain.PaymentCompleted, domain.BookingConfirmed},
		{"still pending", 0, "", domain.PaymentPending, domain.BookingPending},
		{"failed", 2, "", domain.PaymentFailed, domain.BookingPending},
		{"expired", 5, "", domain.PaymentExpired, domain.BookingPending},
		{"unknown code keeps status", 42, "WHATEVER", domain.PaymentPending, domain.BookingPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, c := chargedBooking(t, f)
			f.gw.set(tc.code, tc.text)
			f.now = t0.Add(time.Minute)

			s, err := f.payments.VerifyAndSettle(context.Background(), c.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, tc.payment, s.PaymentStatus)
			assert.Equal(t, tc.booking, s.BookingStatus)

			p, err := f.store.GetPaymentByTransaction(context.Background(), c.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, tc.payment, p.Status)
			require.NotNil(t, p.LastCheckedAt)
			assert.True(t, p.LastCheckedAt.Equal(f.now))
		})
	}
}

func TestVerifyAndSettle_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, c := chargedBooking(t, f)
	_, err := f.bookings.Cancel(ctx, b.ID, customer)
	require.NoError(t, err)
	f.gw.set(1, "")

	s, err := f.payments.VerifyAndSettle(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, s.PaymentStatus)
	assert.Equal(t, domain.BookingCancelled, s.BookingStatus)
	assert.False(t, s.Confirmed)
	assert.Zero(t, f.events.count(domain.EventBookingConfirmed))
}

func TestVerifyAndSettle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, c := chargedBooking(t, f)

	_, err := f.payments.VerifyAndSettle(ctx, "BKnope")
	wantKind(t, err, domain.KindNotFound, "Payment not found")

	f.gw.checkErr = domain.ErrTransactionNotFound
	_, err = f.payments.VerifyAndSettle(ctx, c.TransactionID)
	wantKind(t, err, domain.KindNotFound, "Transaction not found at payment gateway")

	f.gw.checkErr = domain.ErrGatewayUnavailable
	_, err = f.payments.VerifyAndSettle(ctx, c.TransactionID)
	wantKind(t, err, domain.KindGateway, "")
}

func TestPaymentQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, c := chargedBooking(t, f)

	v, err := f.payments.GetByTransaction(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, v.Booking.ID)
	assert.Equal(t, c.PaymentID, v.Payment.ID)

	_, err = f.payments.History(ctx, "missing")
	wantKind(t, err, domain.KindNotFound, "Booking not found")

	stale, err := f.payments.StalePending(ctx, 2*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	f.now = t0.Add(3 * time.Minute)
	stale, err = f.payments.StalePending(ctx, 2*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, c.TransactionID, stale[0].TransactionID)
}
