// Package pewaca integrates the Pewaca QRIS subscription API. Payments are
// QR codes settled out of band; the only way to learn the outcome is to poll.
package pewaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/pkg/tokencache"
	"github.com/storify-asia/storify/svc/payment"
)

const (
	Name = "pewaca"

	DefaultBaseURL = "https://admin-v2.pewaca.id"
)

var (
	ErrNotConfigured = errors.New("pewaca: email and password are required")
	ErrMissingToken  = errors.New("pewaca: login response has no token")
)

type Config struct {
	Email    string `env:"PEWACA_EMAIL"`
	Password string `env:"PEWACA_PASSWORD"`
	BaseURL  string `env:"PEWACA_BASE_URL" envDefault:"https://admin-v2.pewaca.id"`
	// PlanIDs maps local plan ids to Pewaca plan ids, e.g. "1:3,2:4".
	// Unmapped plans are sent with their local id.
	PlanIDs map[string]string `env:"PEWACA_PLAN_IDS" envKeyValSeparator:":"`
}

func (c Config) Enabled() bool {
	return c.Email != "" && c.Password != ""
}

type Gateway struct {
	cfg    Config
	client *httpclient.Client
	tokens *tokencache.Cache
}

// New builds the gateway. opts configure the token cache, e.g. a shared
// Redis store.
func New(cfg Config, client *httpclient.Client, opts ...tokencache.Option) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	g := &Gateway{cfg: cfg, client: client}
	g.tokens = tokencache.New("pewaca:"+cfg.Email, g.login, opts...)
	return g, nil
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) login(ctx context.Context) (string, error) {
	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	in := map[string]string{"email": g.cfg.Email, "password": g.cfg.Password}
	if err := g.client.DoJSON(ctx, http.MethodPost, g.cfg.BaseURL+"/api/auth/login/", in, &out); err != nil {
		return "", fmt.Errorf("pewaca login: %w", err)
	}
	if out.Data.Token == "" {
		return "", ErrMissingToken
	}
	return out.Data.Token, nil
}

// call performs an authenticated request. A 401 drops the cached token and
// the request is retried once with a fresh login.
func (g *Gateway) call(ctx context.Context, method, path string, in, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := g.tokens.Token(ctx)
		if err != nil {
			return err
		}
		err = g.client.DoJSON(ctx, method, g.cfg.BaseURL+path, in, out, tok.SetAuthHeader)
		if err == nil || attempt > 0 || !httpclient.IsStatus(err, http.StatusUnauthorized) {
			return err
		}
		if err := g.tokens.Invalidate(ctx); err != nil {
			return err
		}
	}
}

type transaction struct {
	ID                  string `json:"id"`
	Status              string `json:"status"`
	Amount              int64  `json:"amount"`
	QRISContent         string `json:"qris_content"`
	QRISInvoiceID       string `json:"qris_invoice_id"`
	TransactionNumber   string `json:"transaction_number"`
	ExpiredAt           string `json:"expired_at"`
	PaidAt              string `json:"paid_at"`
	PaymentCustomerName string `json:"payment_customer_name"`
	PaymentMethodBy     string `json:"payment_method_by"`
}

func (g *Gateway) planID(local int64) int64 {
	key := strconv.FormatInt(local, 10)
	if mapped, ok := g.cfg.PlanIDs[key]; ok {
		if id, err := strconv.ParseInt(mapped, 10, 64); err == nil {
			return id
		}
	}
	return local
}

func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	in := map[string]any{
		"plan_id":         g.planID(req.PlanID),
		"user_email":      req.Customer.Email,
		"user_name":       req.Customer.Name,
		"storify_user_id": req.UserID,
	}
	var out transaction
	if err := g.call(ctx, http.MethodPost, "/api/storify-subscription/payment/create/", in, &out); err != nil {
		return nil, fmt.Errorf("pewaca create payment: %w", err)
	}
	if out.ID == "" || out.QRISContent == "" {
		return nil, errors.New("pewaca create payment: response has no id or qris content")
	}

	return &payment.Charge{
		ExternalID: out.ID,
		QRContent:  out.QRISContent,
		ExpiresAt:  parseTime(out.ExpiredAt),
		Metadata: map[string]any{
			"pewacaTransactionId":     out.ID,
			"pewacaQrisInvoiceId":     out.QRISInvoiceID,
			"pewacaTransactionNumber": out.TransactionNumber,
		},
	}, nil
}

func (g *Gateway) CheckStatus(ctx context.Context, externalID string) (*payment.Update, error) {
	var out transaction
	path := "/api/storify-subscription/payment/" + url.PathEscape(externalID) + "/"
	if err := g.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("pewaca payment status: %w", err)
	}

	upd := &payment.Update{ExternalID: externalID, Status: payment.Status(strings.ToLower(out.Status)), Metadata: map[string]any{}}
	if !upd.Status.Valid() {
		upd.Status = payment.StatusPending
	}
	if upd.Status == payment.StatusPaid {
		if t := parseTime(out.PaidAt); !t.IsZero() {
			upd.PaidAt = &t
		}
	}
	if out.PaymentCustomerName != "" {
		upd.Metadata["paymentCustomerName"] = out.PaymentCustomerName
	}
	if out.PaymentMethodBy != "" {
		upd.Metadata["paymentMethodBy"] = out.PaymentMethodBy
	}
	return upd, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
