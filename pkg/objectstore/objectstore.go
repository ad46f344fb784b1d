// Package objectstore hands out presigned GET URLs for objects in an
// S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/storify-asia/storify/pkg/cache"
)

// Presigner is the subset of *s3.PresignClient in use.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Header is the subset of *s3.Client in use.
type Header interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Store struct {
	bucket    string
	ttl       time.Duration
	presigner Presigner
	head      Header
	urls      *cache.LRU[string, string]
}

type Option func(*Store)

// WithClients replaces the SDK clients, mostly for tests.
func WithClients(p Presigner, h Header) Option {
	return func(s *Store) {
		s.presigner = p
		s.head = h
	}
}

// New builds a store from cfg. Credentials fall back to the default AWS chain
// when no static keys are set.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	s := &Store{
		bucket: cfg.Bucket,
		ttl:    cfg.PresignTTL,
		urls:   cache.NewLRU[string, string](1024),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presigner != nil && s.head != nil {
		return s, nil
	}

	awsOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	s.presigner = s3.NewPresignClient(client)
	s.head = client
	return s, nil
}

// IsObjectKey reports whether ref names an object in the bucket rather than
// an absolute URL.
func IsObjectKey(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://")
}

// URL returns a presigned GET URL for key. URLs are reused for half their
// lifetime.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if u, ok := s.urls.Get(key); ok {
		return u, nil
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", errors.Join(ErrPresign, err)
	}

	s.urls.Set(key, req.URL, s.ttl/2)
	return req.URL, nil
}

// Exists checks the object with a HEAD request.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.head.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = mapError(err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}

func mapError(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return errors.Join(ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return errors.Join(ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return errors.Join(ErrAccessDenied, err)
		}
	}
	return err
}
