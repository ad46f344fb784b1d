// Package paddle integrates Paddle Billing one-off transactions for card
// payments. Catalog prices are mapped from local plans.
package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/payment"
)

const Name = "paddle"

var (
	ErrNotConfigured  = errors.New("paddle: api key and webhook secret are required")
	ErrPriceNotMapped = errors.New("paddle: plan has no catalog price")
)

type Config struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"sandbox"`
	// PriceIDs maps local plan ids to Paddle price ids, e.g. "1:pri_01h...".
	PriceIDs map[string]string `env:"PADDLE_PRICE_IDS" envKeyValSeparator:":"`
	AppURL   string            `env:"APP_URL" envDefault:"http://localhost:5000"`
}

func (c Config) Enabled() bool {
	return c.APIKey != "" && c.WebhookSecret != ""
}

// Transactions is the part of the Paddle SDK the gateway calls.
type Transactions interface {
	CreateTransaction(ctx context.Context, req *paddlesdk.CreateTransactionRequest) (*paddlesdk.Transaction, error)
	GetTransaction(ctx context.Context, req *paddlesdk.GetTransactionRequest) (*paddlesdk.Transaction, error)
}

type Gateway struct {
	cfg      Config
	txns     Transactions
	verifier *paddlesdk.WebhookVerifier
}

type Option func(*Gateway)

// WithTransactions replaces the SDK transactions client.
func WithTransactions(t Transactions) Option {
	return func(g *Gateway) { g.txns = t }
}

// New builds the Paddle gateway on the official SDK client.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	g := &Gateway{cfg: cfg, verifier: paddlesdk.NewWebhookVerifier(cfg.WebhookSecret)}
	for _, opt := range opts {
		opt(g)
	}
	if g.txns != nil {
		return g, nil
	}

	var (
		sdk *paddlesdk.SDK
		err error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox", "":
		sdk, err = paddlesdk.NewSandbox(cfg.APIKey)
	case "production":
		sdk, err = paddlesdk.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("paddle: invalid environment %q", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("paddle: create client: %w", err)
	}
	g.txns = sdk.TransactionsClient
	return g, nil
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	priceID, ok := g.cfg.PriceIDs[strconv.FormatInt(req.PlanID, 10)]
	if !ok || priceID == "" {
		return nil, fmt.Errorf("%w: plan %d", ErrPriceNotMapped, req.PlanID)
	}

	item := paddlesdk.NewCreateTransactionItemsTransactionItemFromCatalog(&paddlesdk.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})
	txn, err := g.txns.CreateTransaction(ctx, &paddlesdk.CreateTransactionRequest{
		Items: []paddlesdk.CreateTransactionItems{*item},
		CustomData: paddlesdk.CustomData{
			"reference": req.Reference,
			"user_id":   req.UserID,
			"plan_id":   req.PlanID,
			"email":     req.Customer.Email,
		},
		Checkout: &paddlesdk.TransactionCheckout{
			URL: paddlesdk.PtrTo(g.cfg.AppURL + "/subscription?payment=success"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("paddle create transaction: %w", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return nil, errors.New("paddle create transaction: no checkout url returned")
	}

	return &payment.Charge{
		ExternalID: txn.ID,
		PaymentURL: *txn.Checkout.URL,
		Metadata: map[string]any{
			"paddleTransactionId": txn.ID,
			"paddlePriceId":       priceID,
		},
	}, nil
}

func (g *Gateway) CheckStatus(ctx context.Context, externalID string) (*payment.Update, error) {
	txn, err := g.txns.GetTransaction(ctx, &paddlesdk.GetTransactionRequest{TransactionID: externalID})
	if err != nil {
		return nil, fmt.Errorf("paddle get transaction: %w", err)
	}
	return &payment.Update{ExternalID: externalID, Status: transactionStatus(string(txn.Status))}, nil
}

// VerifyNotification checks the Paddle-Signature header with the SDK verifier.
func (g *Gateway) VerifyNotification(header http.Header, body []byte) error {
	if header.Get("Paddle-Signature") == "" {
		return fmt.Errorf("%w: Paddle-Signature", webhook.ErrMissingHeader)
	}
	req, err := http.NewRequest(http.MethodPost, "/api/webhook/paddle", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = header.Clone()

	ok, err := g.verifier.Verify(req)
	if err != nil {
		return errors.Join(webhook.ErrVerificationFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: signature mismatch", webhook.ErrVerificationFailed)
	}
	return nil
}

// ParseNotification maps transaction events. A declined attempt leaves the
// transaction open for another card, so only cancellation fails it. Events
// about anything else return nil.
func (g *Gateway) ParseNotification(body []byte) (*payment.Update, error) {
	var evt struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Data      struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("paddle notification: %w", err)
	}

	var status payment.Status
	switch evt.EventType {
	case "transaction.completed", "transaction.paid":
		status = payment.StatusPaid
	case "transaction.canceled":
		status = payment.StatusFailed
	default:
		return nil, nil
	}
	if evt.Data.ID == "" {
		return nil, errors.New("paddle notification: missing transaction id")
	}
	return &payment.Update{
		ExternalID: evt.Data.ID,
		Status:     status,
		Metadata:   map[string]any{"paddleEventId": evt.EventID},
	}, nil
}

func transactionStatus(s string) payment.Status {
	switch s {
	case "paid", "completed":
		return payment.StatusPaid
	case "canceled":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}
