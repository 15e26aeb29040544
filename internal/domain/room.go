package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Room struct {
	ID           string
	BranchID     string
	Name         string
	PricePerHour decimal.Decimal // 3dp
	IsAvailable  bool
}

// Branch defines the legal time envelope for bookings on its rooms.
type Branch struct {
	ID        string
	OwnerID   string
	Name      string
	WorkDays  []string // lowercase day names, e.g. "monday"
	OpenTime  ClockTime
	CloseTime ClockTime
	IsActive  bool
}

func (b Branch) OpensOn(day string) bool {
	for _, d := range b.WorkDays {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return true
		}
	}
	return false
}

type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
