// Package xendit integrates Xendit hosted invoices. Invoices can be polled and
// Xendit pushes callbacks authenticated by a shared x-callback-token.
package xendit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/payment"
)

const (
	Name = "xendit"

	DefaultBaseURL = "https://api.xendit.co"

	HeaderCallbackToken = "X-Callback-Token"
)

var ErrNotConfigured = errors.New("xendit: secret key is required")

type Config struct {
	SecretKey       string        `env:"XENDIT_SECRET_KEY"`
	WebhookToken    string        `env:"XENDIT_WEBHOOK_TOKEN"`
	BaseURL         string        `env:"XENDIT_BASE_URL" envDefault:"https://api.xendit.co"`
	InvoiceDuration time.Duration `env:"XENDIT_INVOICE_DURATION" envDefault:"24h"`
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:5000"`
}

func (c Config) Enabled() bool {
	return c.SecretKey != ""
}

type Gateway struct {
	cfg    Config
	client *httpclient.Client
	now    func() time.Time
}

// New returns the Xendit invoice gateway. It fails with ErrNotConfigured
// when no secret key is set.
func New(cfg Config, client *httpclient.Client) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.InvoiceDuration <= 0 {
		cfg.InvoiceDuration = 24 * time.Hour
	}
	return &Gateway{cfg: cfg, client: client, now: time.Now}, nil
}

func (g *Gateway) Name() string { return Name }

type invoiceRequest struct {
	ExternalID             string                 `json:"external_id"`
	Amount                 int64                  `json:"amount"`
	Description            string                 `json:"description"`
	InvoiceDuration        int64                  `json:"invoice_duration"`
	Customer               customer               `json:"customer"`
	NotificationPreference notificationPreference `json:"customer_notification_preference"`
	SuccessRedirectURL     string                 `json:"success_redirect_url"`
	FailureRedirectURL     string                 `json:"failure_redirect_url"`
	Currency               string                 `json:"currency"`
	PaymentMethods         []string               `json:"payment_methods"`
	Metadata               map[string]string      `json:"metadata,omitempty"`
}

type customer struct {
	GivenNames string `json:"given_names"`
	Email      string `json:"email"`
}

type notificationPreference struct {
	InvoiceCreated  []string `json:"invoice_created"`
	InvoiceReminder []string `json:"invoice_reminder"`
	InvoicePaid     []string `json:"invoice_paid"`
}

type invoice struct {
	ID             string `json:"id"`
	ExternalID     string `json:"external_id"`
	Status         string `json:"status"`
	InvoiceURL     string `json:"invoice_url"`
	ExpiryDate     string `json:"expiry_date"`
	PaidAt         string `json:"paid_at"`
	PaymentMethod  string `json:"payment_method"`
	PaymentChannel string `json:"payment_channel"`
}

func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	name := req.Customer.Name
	if name == "" {
		name = "User"
	}
	body := invoiceRequest{
		ExternalID:      fmt.Sprintf("storify-%s-%d", req.UserID, g.now().UnixMilli()),
		Amount:          req.Amount,
		Description:     "Storify Premium - " + req.PlanName,
		InvoiceDuration: int64(g.cfg.InvoiceDuration / time.Second),
		Customer:        customer{GivenNames: name, Email: req.Customer.Email},
		NotificationPreference: notificationPreference{
			InvoiceCreated:  []string{"email"},
			InvoiceReminder: []string{"email"},
			InvoicePaid:     []string{"email"},
		},
		SuccessRedirectURL: g.cfg.AppURL + "/subscription?payment=success",
		FailureRedirectURL: g.cfg.AppURL + "/subscription?payment=failed",
		Currency:           "IDR",
		PaymentMethods:     []string{"QRIS", "EWALLET", "VIRTUAL_ACCOUNT", "RETAIL_OUTLET"},
		Metadata:           map[string]string{"reference": req.Reference},
	}

	var out invoice
	if err := g.client.DoJSON(ctx, http.MethodPost, g.cfg.BaseURL+"/v2/invoices", body, &out,
		httpclient.WithBasicAuth(g.cfg.SecretKey, "")); err != nil {
		return nil, fmt.Errorf("xendit invoice: %w", err)
	}
	if out.ID == "" || out.InvoiceURL == "" {
		return nil, errors.New("xendit invoice: response has no id or url")
	}

	return &payment.Charge{
		ExternalID: out.ID,
		PaymentURL: out.InvoiceURL,
		ExpiresAt:  parseTime(out.ExpiryDate),
		Metadata: map[string]any{
			"xenditInvoiceId":  out.ID,
			"xenditExternalId": body.ExternalID,
		},
	}, nil
}

func (g *Gateway) CheckStatus(ctx context.Context, externalID string) (*payment.Update, error) {
	var out invoice
	err := g.client.DoJSON(ctx, http.MethodGet, g.cfg.BaseURL+"/v2/invoices/"+url.PathEscape(externalID), nil, &out,
		httpclient.WithBasicAuth(g.cfg.SecretKey, ""))
	if err != nil {
		return nil, fmt.Errorf("xendit invoice status: %w", err)
	}
	if out.ID == "" {
		out.ID = externalID
	}
	return toUpdate(out), nil
}

// VerifyNotification compares the callback token header with the configured one.
func (g *Gateway) VerifyNotification(header http.Header, _ []byte) error {
	return webhook.VerifyToken(g.cfg.WebhookToken, header.Get(HeaderCallbackToken))
}

// ParseNotification reads an invoice callback. Callbacks key on the invoice
// id, the same value CreatePayment returned as ExternalID.
func (g *Gateway) ParseNotification(body []byte) (*payment.Update, error) {
	var inv invoice
	if err := json.Unmarshal(body, &inv); err != nil {
		return nil, fmt.Errorf("xendit callback: %w", err)
	}
	if inv.ID == "" {
		return nil, errors.New("xendit callback: missing invoice id")
	}
	return toUpdate(inv), nil
}

func toUpdate(inv invoice) *payment.Update {
	upd := &payment.Update{ExternalID: inv.ID, Status: payment.StatusPending, Metadata: map[string]any{}}
	switch strings.ToUpper(inv.Status) {
	case "PAID", "SETTLED":
		upd.Status = payment.StatusPaid
		if t := parseTime(inv.PaidAt); !t.IsZero() {
			upd.PaidAt = &t
		}
	case "EXPIRED":
		upd.Status = payment.StatusExpired
	case "FAILED":
		upd.Status = payment.StatusFailed
	}
	if inv.PaymentMethod != "" {
		upd.Metadata["xenditPaymentMethod"] = inv.PaymentMethod
	}
	if inv.PaymentChannel != "" {
		upd.Metadata["xenditPaymentChannel"] = inv.PaymentChannel
	}
	return upd
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
