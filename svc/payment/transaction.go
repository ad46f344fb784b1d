// Package payment creates payment transactions with external gateways and
// reconciles their outcome, from client polling, gateway webhooks or manual
// updates, into subscriptions.
//
// Every path funnels into Manager.Apply, which moves a transaction out of
// pending at most once and activates the subscription when it lands in paid.
package payment

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Final reports whether no further transition is allowed.
func (s Status) Final() bool {
	return s == StatusPaid || s == StatusExpired || s == StatusFailed
}

type Transaction struct {
	ID         int64          `json:"id"`
	UserID     string         `json:"userId"`
	PlanID     int64          `json:"planId"`
	Amount     int64          `json:"amount"`
	Status     Status         `json:"status"`
	Gateway    string         `json:"gateway"`
	ExternalID string         `json:"externalId"`
	PaymentURL string         `json:"paymentUrl,omitempty"`
	QRContent  string         `json:"qrContent,omitempty"`
	QRImage    string         `json:"qrImage,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ExpiredAt  time.Time      `json:"expiredAt"`
	PaidAt     *time.Time     `json:"paidAt"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// Source names what triggered a transition, for logs and metrics.
type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
	SourceManual  Source = "manual"
	SourceExpiry  Source = "expiry"
)
