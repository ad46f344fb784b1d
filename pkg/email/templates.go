package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	TemplateVerifyEmail    = "verify_email.html"
	TemplatePaymentReceipt = "payment_receipt.html"
)

type VerifyEmailData struct {
	Name      string
	VerifyURL string
}

type PaymentReceiptData struct {
	Name          string
	PlanName      string
	Amount        string
	TransactionID string
	PaidAt        string
	ValidUntil    string
}

// Render executes one of the embedded templates.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
