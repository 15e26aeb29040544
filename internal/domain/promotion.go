package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope says what a promotion is attached to. The variants are RoomScope,
// BranchScope and GlobalScope; nothing else implements it.
type Scope interface{ scope() }

type RoomScope struct{ RoomID string }
type BranchScope struct{ BranchID string }
type GlobalScope struct{}

func (RoomScope) scope()   {}
func (BranchScope) scope() {}
func (GlobalScope) scope() {}

type ScopeKind string

const (
	ScopeRoom   ScopeKind = "room"
	ScopeBranch ScopeKind = "branch"
	ScopeGlobal ScopeKind = "global"
)

func KindOfScope(s Scope) ScopeKind {
	switch s.(type) {
	case RoomScope:
		return ScopeRoom
	case BranchScope:
		return ScopeBranch
	case GlobalScope:
		return ScopeGlobal
	}
	panic("domain: unknown promotion scope")
}

// LookupOrder lists the scopes a booking on room can draw a promotion
// from, most specific first.
func LookupOrder(room Room) []Scope {
	return []Scope{RoomScope{RoomID: room.ID}, BranchScope{BranchID: room.BranchID}, GlobalScope{}}
}

type Promotion struct {
	ID              string
	Title           string
	DiscountPercent decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
	IsActive        bool
	// Scopes holds one entry per attachment: several RoomScope values for a
	// promotion attached to several rooms, or a single GlobalScope.
	Scopes []Scope
}

func (p Promotion) AttachedTo(s Scope) bool {
	for _, a := range p.Scopes {
		if a == s {
			return true
		}
	}
	return false
}

// Covers reports whether p is active and its window fully contains [start, end].
func (p Promotion) Covers(start, end time.Time) bool {
	return p.IsActive && !p.StartDate.After(start) && !p.EndDate.Before(end)
}

func (p Promotion) Discount(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(p.DiscountPercent).Div(decimal.NewFromInt(100))
}

// PromotionQuery selects a promotion covering [Start, End] attached to Scope.
type PromotionQuery struct {
	Scope Scope
	Start time.Time
	End   time.Time
}
