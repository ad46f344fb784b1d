package payment

import (
	"context"
	"net/http"
	"time"
)

type Customer struct {
	Name  string
	Email string
}

// CreateRequest describes the charge a gateway should set up.
type CreateRequest struct {
	// Reference is unique per attempt and safe to use as a merchant invoice
	// number.
	Reference string
	UserID    string
	PlanID    int64
	PlanName  string
	Amount    int64
	Customer  Customer
}

// Charge is what a gateway returns for a created payment. ExternalID is the
// key later notifications and status checks refer to.
type Charge struct {
	ExternalID string
	PaymentURL string
	QRContent  string
	ExpiresAt  time.Time
	Metadata   map[string]any
}

// Update is a gateway's report about a payment. A pending Status means
// nothing happened yet.
type Update struct {
	ExternalID string
	Status     Status
	PaidAt     *time.Time
	Metadata   map[string]any
}

type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req CreateRequest) (*Charge, error)
}

// StatusChecker is implemented by gateways that can be polled.
type StatusChecker interface {
	CheckStatus(ctx context.Context, externalID string) (*Update, error)
}

// Notifier is implemented by gateways that push notifications.
// ParseNotification returns nil, nil for events that carry no payment outcome.
type Notifier interface {
	VerifyNotification(header http.Header, body []byte) error
	ParseNotification(body []byte) (*Update, error)
}
