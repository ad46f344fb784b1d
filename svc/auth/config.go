package auth

import "time"

type Config struct {
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:5000"`
	VerificationTTL time.Duration `env:"AUTH_VERIFICATION_TTL" envDefault:"24h"`
	BcryptCost      int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`
	MinPasswordLen  int           `env:"AUTH_MIN_PASSWORD_LENGTH" envDefault:"8"`
}

func DefaultConfig() Config {
	return Config{
		AppURL:          "http://localhost:5000",
		VerificationTTL: 24 * time.Hour,
		BcryptCost:      12,
		MinPasswordLen:  8,
	}
}
