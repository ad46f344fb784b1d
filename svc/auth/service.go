package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/storify-asia/storify/pkg/email"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/validator"
)

type Service struct {
	cfg    Config
	store  Store
	mailer email.EmailSender
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithMailer enables verification emails. Without it tokens are created
// but never sent.
func WithMailer(m email.EmailSender) Option {
	return func(s *Service) { s.mailer = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, store Store, opts ...Option) *Service {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.MinPasswordLen <= 0 {
		cfg.MinPasswordLen = 8
	}
	s := &Service{
		cfg:   cfg,
		store: store,
		log:   logger.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("auth"))
	return s
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// SignUp creates an unverified account and sends the verification email.
// Mail delivery failures are logged; the account is still created.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validator.Apply(
		validator.Required("name", in.Name),
		validator.MaxLen("name", in.Name, 100),
		validator.Required("email", in.Email),
		validator.Email("email", in.Email),
		validator.MinLen("password", in.Password, s.cfg.MinPasswordLen),
		validator.MaxLen("password", in.Password, 72),
	); err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &User{Email: in.Email, Name: in.Name, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user signed up", logger.UserID(u.ID))

	if err := s.sendVerification(ctx, u); err != nil {
		s.log.WarnContext(ctx, "failed to send verification email", logger.UserID(u.ID), logger.Error(err))
	}
	return u, nil
}

// SignIn checks the credentials. Unknown emails and wrong passwords both
// return ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (*User, error) {
	u, err := s.store.UserByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := checkPassword(u.PasswordHash, in.Password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.store.UserByID(ctx, id)
}

// Contact returns the name and address receipts are mailed to.
func (s *Service) Contact(ctx context.Context, userID string) (string, string, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return u.Name, u.Email, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.store.Verify(ctx, hashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "email verified", logger.UserID(u.ID))
	return u, nil
}

// ResendVerification issues a fresh token, invalidating the previous one.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	return s.sendVerification(ctx, u)
}

func (s *Service) sendVerification(ctx context.Context, u *User) error {
	token, err := newToken()
	if err != nil {
		return err
	}
	if err := s.store.SetVerification(ctx, u.ID, hashToken(token), s.now().Add(s.cfg.VerificationTTL)); err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}

	body, err := email.Render(email.TemplateVerifyEmail, email.VerifyEmailData{
		Name:      u.Name,
		VerifyURL: strings.TrimSuffix(s.cfg.AppURL, "/") + "/api/auth/verify-email?token=" + url.QueryEscape(token),
	})
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   u.Email,
		Subject:  "Verifikasi email Storify kamu",
		BodyHTML: body,
		Tag:      "verify-email",
	})
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Only token hashes are stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
