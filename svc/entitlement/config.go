package entitlement

type Config struct {
	FreeLimit  int `env:"LISTENING_FREE_LIMIT" envDefault:"3"`
	GuestLimit int `env:"LISTENING_GUEST_LIMIT" envDefault:"1"`
}

func (c Config) Limits() Limits {
	return Limits{Free: c.FreeLimit, Guest: c.GuestLimit}
}
