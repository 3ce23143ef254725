// Package auth gates operator access with a password and a one-time code
// delivered out of band.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/digital-twin-risk-engine/internal/domain"
)

const codeDigits = 6

// ReasonInvalidCode is the AuthError reason for a wrong code on a challenge
// that can still be retried.
const ReasonInvalidCode = "invalid one-time code"

// CodeSender delivers a one-time code to the operator
type CodeSender interface {
	Send(ctx context.Context, username, code string) error
}

type pendingChallenge struct {
	username  string
	code      string
	expiresAt time.Time
	attempts  int
}

// Service implements domain.Authenticator
type Service struct {
	users       map[string][]byte
	ttl         time.Duration
	maxAttempts int
	perMinute   int
	sender      CodeSender
	logger      *logrus.Logger
	now         func() time.Time

	mu         sync.Mutex
	challenges map[string]*pendingChallenge
	limiters   map[string]*rate.Limiter
}

var _ domain.Authenticator = (*Service)(nil)

// Option customizes a Service
type Option func(*Service)

// WithClock overrides the time source used for expiry and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an authenticator from the configured users
func NewService(cfg domain.AuthConfig, sender CodeSender, logger *logrus.Logger, opts ...Option) (*Service, error) {
	if sender == nil {
		return nil, domain.NewConfigurationError("auth", "", fmt.Errorf("code sender is required"))
	}
	if len(cfg.Users) == 0 {
		return nil, domain.NewConfigurationError("auth", "", fmt.Errorf("no users configured"))
	}

	users := make(map[string][]byte, len(cfg.Users))
	for name, hash := range cfg.Users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, domain.NewConfigurationError("auth", "", fmt.Errorf("user %s: invalid bcrypt hash: %w", name, err))
		}
		users[normalizeUsername(name)] = []byte(hash)
	}

	s := &Service{
		users:       users,
		ttl:         cfg.CodeTTL,
		maxAttempts: cfg.MaxAttempts,
		perMinute:   cfg.RatePerMinute,
		sender:      sender,
		logger:      logger,
		now:         time.Now,
		challenges:  make(map[string]*pendingChallenge),
		limiters:    make(map[string]*rate.Limiter),
	}
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.perMinute <= 0 {
		s.perMinute = 10
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// normalizeUsername lowercases usernames; viper lowercases the keys of
// auth.users, so lookups must match case-insensitively.
func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HashPassword returns the bcrypt hash to put in auth.users.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Begin checks the password and sends a fresh one-time code.
func (s *Service) Begin(ctx context.Context, username, password string) (*domain.Challenge, error) {
	username = normalizeUsername(username)
	if !s.allow(username) {
		s.logger.WithField("username", username).Warn("Login rate limited")
		return nil, &domain.AuthError{Reason: "too many login attempts, try again later"}
	}

	hash, ok := s.users[username]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		s.logger.WithField("username", username).Warn("Login rejected")
		return nil, &domain.AuthError{Reason: "invalid username or password"}
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generating one-time code: %w", err)
	}

	challenge := &domain.Challenge{
		ID:        uuid.NewString(),
		Username:  username,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.challenges[challenge.ID] = &pendingChallenge{
		username:  username,
		code:      code,
		expiresAt: challenge.ExpiresAt,
	}
	s.mu.Unlock()

	if err := s.sender.Send(ctx, username, code); err != nil {
		s.mu.Lock()
		delete(s.challenges, challenge.ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("sending one-time code: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"username":     username,
		"challenge_id": challenge.ID,
	}).Info("One-time code issued")
	return challenge, nil
}

// Verify exchanges a valid one-time code for a session. A challenge is
// consumed by success, expiry or too many wrong codes.
func (s *Service) Verify(ctx context.Context, challengeID, code string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.challenges[challengeID]
	if !ok {
		return nil, &domain.AuthError{Reason: "unknown or consumed challenge"}
	}

	now := s.now()
	if now.After(pending.expiresAt) {
		delete(s.challenges, challengeID)
		return nil, &domain.AuthError{Reason: "one-time code expired"}
	}

	if subtle.ConstantTimeCompare([]byte(pending.code), []byte(code)) != 1 {
		pending.attempts++
		if pending.attempts >= s.maxAttempts {
			delete(s.challenges, challengeID)
			s.logger.WithField("challenge_id", challengeID).Warn("Challenge locked after failed attempts")
			return nil, &domain.AuthError{Reason: "too many invalid codes"}
		}
		return nil, &domain.AuthError{Reason: ReasonInvalidCode}
	}

	delete(s.challenges, challengeID)
	session := &domain.Session{
		ID:         uuid.NewString(),
		Username:   pending.username,
		VerifiedAt: now,
	}
	s.logger.WithField("username", pending.username).Info("Operator verified")
	return session, nil
}

// allow applies the per-user login rate.
func (s *Service) allow(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[username]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.maxAttempts)
		s.limiters[username] = limiter
	}
	return limiter.AllowN(s.now(), 1)
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
