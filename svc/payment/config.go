package payment

import "time"

type Config struct {
	DefaultGateway    string        `env:"PAYMENT_DEFAULT_GATEWAY" envDefault:"xendit"`
	Expiry            time.Duration `env:"PAYMENT_EXPIRY" envDefault:"60m"`
	WebhookPolicy     string        `env:"WEBHOOK_VERIFICATION_POLICY" envDefault:"strict"`
	ExpirySchedule    string        `env:"PAYMENT_EXPIRY_SCHEDULE" envDefault:"@every 5m"`
	AllowManualUpdate bool          `env:"PAYMENT_ALLOW_MANUAL_UPDATE" envDefault:"false"`
}
