package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"roomhub/internal/domain"
)

var millisPerHour = decimal.NewFromInt(int64(time.Hour / time.Millisecond))

func durationHours(start, end time.Time) decimal.Decimal {
	return decimal.NewFromInt(end.Sub(start).Milliseconds()).Div(millisPerHour)
}

// Quote is a priced interval.
type Quote struct {
	Hours     decimal.Decimal
	Base      decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal // 3dp
	Promotion *domain.Promotion
}

// Pricing computes a booking's price and picks at most one promotion,
// room-attached first, then branch-attached, then global.
type Pricing struct{}

// Quote prices [start, end) on room. The promotion is always the first one
// found in lookup order; a non-empty promotionID only has to name it.
func (Pricing) Quote(ctx context.Context, f domain.PromotionFinder, room domain.Room, start, end time.Time, promotionID string) (Quote, error) {
	hours := durationHours(start, end)
	base := room.PricePerHour.Mul(hours)
	q := Quote{Hours: hours, Base: base, Discount: decimal.Zero, Total: base.Round(3)}

	for _, scope := range domain.LookupOrder(room) {
		p, err := f.FindPromotion(ctx, domain.PromotionQuery{Scope: scope, Start: start, End: end})
		if err != nil {
			return Quote{}, err
		}
		if p == nil {
			continue
		}
		if promotionID != "" && promotionID != p.ID {
			return Quote{}, domain.ValidationError("Promotion is not applicable to this booking")
		}
		q.Promotion = p
		q.Discount = p.Discount(base)
		q.Total = base.Sub(q.Discount).Round(3)
		return q, nil
	}
	if promotionID != "" {
		return Quote{}, domain.ValidationError("Promotion is not applicable to this booking")
	}
	return q, nil
}
