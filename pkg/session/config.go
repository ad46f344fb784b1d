package session

import "time"

type Config struct {
	CookieName      string        `env:"SESSION_COOKIE_NAME" envDefault:"storify_session"`
	TTL             time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m"`
	SecureCookies   bool          `env:"SESSION_SECURE_COOKIES" envDefault:"false"`
}

func DefaultConfig() Config {
	return Config{
		CookieName:      "storify_session",
		TTL:             30 * 24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}
