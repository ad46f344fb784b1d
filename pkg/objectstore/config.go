package objectstore

import "time"

// Config describes an S3-compatible bucket holding audio files.
type Config struct {
	Bucket         string        `env:"OBJECT_STORE_BUCKET"`
	Region         string        `env:"OBJECT_STORE_REGION" envDefault:"ap-southeast-1"`
	AccessKeyID    string        `env:"OBJECT_STORE_ACCESS_KEY_ID"`
	SecretKey      string        `env:"OBJECT_STORE_SECRET_KEY"`
	Endpoint       string        `env:"OBJECT_STORE_ENDPOINT"`
	ForcePathStyle bool          `env:"OBJECT_STORE_FORCE_PATH_STYLE" envDefault:"false"`
	PresignTTL     time.Duration `env:"OBJECT_STORE_PRESIGN_TTL" envDefault:"1h"`
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}
