package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/storify-asia/storify/pkg/async"
	"github.com/storify-asia/storify/pkg/email"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/svc/subscription"
)

var (
	wib     = time.FixedZone("WIB", 7*60*60)
	idPrint = message.NewPrinter(language.Indonesian)
)

// FormatRupiah renders amount the way Indonesian receipts do, e.g. "Rp 49.000".
func FormatRupiah(amount int64) string {
	return idPrint.Sprintf("Rp %d", amount)
}

// Contacts resolves where to send a user's mail.
type Contacts interface {
	Contact(ctx context.Context, userID string) (name, address string, err error)
}

// ReceiptMailer emails a receipt once a subscription is activated.
type ReceiptMailer struct {
	sender   email.EmailSender
	store    Store
	contacts Contacts
	log      *slog.Logger
	timeout  time.Duration
}

// NewReceiptMailer returns a mailer that sends a receipt once a subscription
// is activated by a payment.
func NewReceiptMailer(sender email.EmailSender, store Store, contacts Contacts, log *slog.Logger) *ReceiptMailer {
	if log == nil {
		log = logger.Nop()
	}
	return &ReceiptMailer{
		sender:   sender,
		store:    store,
		contacts: contacts,
		log:      log.With(logger.Component("receipt")),
		timeout:  30 * time.Second,
	}
}

// Hook adapts the mailer to subscription activation. Sending happens in the
// background and never affects the activation.
func (r *ReceiptMailer) Hook() subscription.ActivationHook {
	return func(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan) {
		r.SendAsync(ctx, sub, plan)
	}
}

// SendAsync runs Send detached from ctx cancellation. Failures are logged.
func (r *ReceiptMailer) SendAsync(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan) *async.Future[struct{}] {
	return async.Detached(ctx, r.timeout, func(ctx context.Context) error {
		err := r.Send(ctx, sub, plan)
		if err != nil {
			r.log.WarnContext(ctx, "failed to send payment receipt",
				logger.UserID(sub.UserID), logger.Error(err))
		}
		return err
	})
}

// Send mails the receipt. Subscriptions not tied to a transaction are skipped.
func (r *ReceiptMailer) Send(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan) error {
	if sub.PaymentTransactionID == nil {
		return nil
	}
	tx, err := r.store.Get(ctx, *sub.PaymentTransactionID)
	if err != nil {
		return err
	}
	name, address, err := r.contacts.Contact(ctx, sub.UserID)
	if err != nil {
		return err
	}

	paidAt := sub.StartDate
	if tx.PaidAt != nil {
		paidAt = *tx.PaidAt
	}
	body, err := email.Render(email.TemplatePaymentReceipt, email.PaymentReceiptData{
		Name:          name,
		PlanName:      plan.Name,
		Amount:        FormatRupiah(tx.Amount),
		TransactionID: strconv.FormatInt(tx.ID, 10),
		PaidAt:        paidAt.In(wib).Format("02 Jan 2006 15:04 MST"),
		ValidUntil:    sub.EndDate.In(wib).Format("02 Jan 2006"),
	})
	if err != nil {
		return err
	}

	return r.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   address,
		Subject:  fmt.Sprintf("Pembayaran Storify Premium %s berhasil", plan.Name),
		BodyHTML: body,
		Tag:      "payment-receipt",
	})
}
