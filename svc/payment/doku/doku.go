// Package doku integrates DOKU Checkout: hosted payment pages created with
// signed requests, and HMAC-signed HTTP notifications. DOKU cannot be polled.
package doku

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/payment"
)

const (
	Name = "doku"

	SandboxURL    = "https://api-sandbox.doku.com"
	ProductionURL = "https://api.doku.com"

	checkoutTarget = "/checkout/v1/payment"
)

var ErrNotConfigured = errors.New("doku: client id and secret key are required")

var paymentMethods = []string{
	"QRIS",
	"VIRTUAL_ACCOUNT_BCA",
	"VIRTUAL_ACCOUNT_BANK_MANDIRI",
	"VIRTUAL_ACCOUNT_BRI",
	"VIRTUAL_ACCOUNT_BNI",
	"VIRTUAL_ACCOUNT_DOKU",
	"EMONEY_SHOPEE_PAY",
	"EMONEY_OVO",
}

type Config struct {
	ClientID         string `env:"DOKU_CLIENT_ID"`
	SecretKey        string `env:"DOKU_SECRET_KEY"`
	Production       bool   `env:"DOKU_PRODUCTION" envDefault:"false"`
	BaseURL          string `env:"DOKU_BASE_URL"`
	NotificationPath string `env:"DOKU_NOTIFICATION_PATH" envDefault:"/api/webhook/doku"`
	PaymentDueMins   int    `env:"DOKU_PAYMENT_DUE_MINUTES" envDefault:"60"`
	AppURL           string `env:"APP_URL" envDefault:"http://localhost:5000"`
}

func (c Config) Enabled() bool {
	return c.ClientID != "" && c.SecretKey != ""
}

func (c Config) baseURL() string {
	switch {
	case c.BaseURL != "":
		return strings.TrimSuffix(c.BaseURL, "/")
	case c.Production:
		return ProductionURL
	default:
		return SandboxURL
	}
}

type Gateway struct {
	cfg    Config
	client *httpclient.Client
	now    func() time.Time
}

// New returns the DOKU checkout gateway.
func New(cfg Config, client *httpclient.Client) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.PaymentDueMins <= 0 {
		cfg.PaymentDueMins = 60
	}
	return &Gateway{cfg: cfg, client: client, now: time.Now}, nil
}

func (g *Gateway) Name() string { return Name }

type checkoutRequest struct {
	Order struct {
		Amount            int64      `json:"amount"`
		InvoiceNumber     string     `json:"invoice_number"`
		Currency          string     `json:"currency"`
		CallbackURL       string     `json:"callback_url"`
		CallbackURLCancel string     `json:"callback_url_cancel"`
		Language          string     `json:"language"`
		AutoRedirect      bool       `json:"auto_redirect"`
		LineItems         []lineItem `json:"line_items"`
	} `json:"order"`
	Payment struct {
		PaymentDueDate     int      `json:"payment_due_date"`
		PaymentMethodTypes []string `json:"payment_method_types"`
	} `json:"payment"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer"`
}

type lineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type checkoutResponse struct {
	Response struct {
		Order struct {
			InvoiceNumber string `json:"invoice_number"`
			SessionID     string `json:"session_id"`
		} `json:"order"`
		Payment struct {
			TokenID     string `json:"token_id"`
			URL         string `json:"url"`
			ExpiredDate string `json:"expired_date"`
		} `json:"payment"`
	} `json:"response"`
}

func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	var body checkoutRequest
	body.Order.Amount = req.Amount
	body.Order.InvoiceNumber = req.Reference
	body.Order.Currency = "IDR"
	body.Order.CallbackURL = g.cfg.AppURL + "/subscription?payment=success"
	body.Order.CallbackURLCancel = g.cfg.AppURL + "/subscription?payment=cancelled"
	body.Order.Language = "ID"
	body.Order.AutoRedirect = true
	body.Order.LineItems = []lineItem{{Name: "Storify Premium - " + req.PlanName, Quantity: 1, Price: req.Amount}}
	body.Payment.PaymentDueDate = g.cfg.PaymentDueMins
	body.Payment.PaymentMethodTypes = paymentMethods
	body.Customer.Name = req.Customer.Name
	body.Customer.Email = req.Customer.Email

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	sigReq := webhook.DokuRequest{
		ClientID:  g.cfg.ClientID,
		RequestID: uuid.NewString(),
		Timestamp: g.now().UTC().Format("2006-01-02T15:04:05Z"),
		Target:    checkoutTarget,
	}
	signature := webhook.SignDoku(g.cfg.SecretKey, sigReq, raw)

	var out checkoutResponse
	err = g.client.DoJSON(ctx, http.MethodPost, g.cfg.baseURL()+checkoutTarget, json.RawMessage(raw), &out,
		httpclient.WithHeader(webhook.HeaderClientID, sigReq.ClientID),
		httpclient.WithHeader(webhook.HeaderRequestID, sigReq.RequestID),
		httpclient.WithHeader(webhook.HeaderRequestTimestamp, sigReq.Timestamp),
		httpclient.WithHeader(webhook.HeaderSignature, signature),
	)
	if err != nil {
		return nil, fmt.Errorf("doku checkout: %w", err)
	}
	if out.Response.Payment.URL == "" {
		return nil, errors.New("doku checkout: response has no payment url")
	}

	return &payment.Charge{
		ExternalID: req.Reference,
		PaymentURL: out.Response.Payment.URL,
		ExpiresAt:  parseExpiry(out.Response.Payment.ExpiredDate),
		Metadata: map[string]any{
			"dokuInvoiceNumber": req.Reference,
			"dokuSessionId":     out.Response.Order.SessionID,
			"dokuTokenId":       out.Response.Payment.TokenID,
			"dokuRequestId":     sigReq.RequestID,
		},
	}, nil
}

// VerifyNotification checks the Signature header against our own
// notification path as the request target.
func (g *Gateway) VerifyNotification(header http.Header, body []byte) error {
	if got := header.Get(webhook.HeaderClientID); got != "" && got != g.cfg.ClientID {
		return fmt.Errorf("%w: unexpected client id", webhook.ErrVerificationFailed)
	}
	return webhook.VerifyDoku(g.cfg.SecretKey, header, g.cfg.NotificationPath, body)
}

type notification struct {
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
	} `json:"order"`
	Transaction struct {
		Status string `json:"status"`
		Date   string `json:"date"`
	} `json:"transaction"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Service struct {
		ID string `json:"id"`
	} `json:"service"`
}

func (g *Gateway) ParseNotification(body []byte) (*payment.Update, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("doku notification: %w", err)
	}
	if n.Order.InvoiceNumber == "" {
		return nil, errors.New("doku notification: missing invoice number")
	}

	upd := &payment.Update{ExternalID: n.Order.InvoiceNumber, Status: payment.StatusPending}
	switch strings.ToUpper(n.Transaction.Status) {
	case "SUCCESS":
		upd.Status = payment.StatusPaid
		if t, err := time.Parse(time.RFC3339, n.Transaction.Date); err == nil {
			upd.PaidAt = &t
		}
	case "FAILED":
		upd.Status = payment.StatusFailed
	case "EXPIRED":
		upd.Status = payment.StatusExpired
	}
	upd.Metadata = map[string]any{}
	if n.Channel.ID != "" {
		upd.Metadata["dokuChannel"] = n.Channel.ID
	}
	if n.Service.ID != "" {
		upd.Metadata["dokuService"] = n.Service.ID
	}
	return upd, nil
}

var wib = time.FixedZone("WIB", 7*60*60)

// parseExpiry accepts DOKU's compact yyyyMMddHHmmss local time as well as
// RFC 3339. Unknown formats yield the zero time.
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation("20060102150405", s, wib); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
