// Package subscription holds subscription plans and turns paid payment
// transactions into time-boxed premium subscriptions, exactly once per
// transaction.
package subscription

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Plan is a purchasable subscription tier. Prices are whole rupiah.
type Plan struct {
	ID           int64     `json:"id" yaml:"-"`
	Name         string    `json:"name" yaml:"name"`
	Price        int64     `json:"price" yaml:"price"`
	DurationDays int       `json:"durationDays" yaml:"duration_days"`
	Description  string    `json:"description" yaml:"description"`
	IsActive     bool      `json:"isActive" yaml:"is_active"`
	CreatedAt    time.Time `json:"createdAt" yaml:"-"`
}

type Subscription struct {
	ID                   int64     `json:"id"`
	UserID               string    `json:"userId"`
	PlanID               int64     `json:"planId"`
	StartDate            time.Time `json:"startDate"`
	EndDate              time.Time `json:"endDate"`
	Status               Status    `json:"status"`
	PaymentTransactionID *int64    `json:"paymentTransactionId"`
	CreatedAt            time.Time `json:"createdAt"`
}

// IsActiveAt reports whether s grants premium access at t.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s != nil && s.Status == StatusActive && s.EndDate.After(t)
}

// Payment is the part of a payment transaction activation cares about.
type Payment struct {
	TransactionID int64
	UserID        string
	PlanID        int64
	Paid          bool
}
