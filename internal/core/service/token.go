package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"k8s.io/utils/clock"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
	"github.com/yndnr/tokenkeeper/internal/telemetry/metric"
)

// TokenServiceConfig holds configuration for TokenService.
type TokenServiceConfig struct {
	// DefaultTTL is used by IssueDefault (default: 1h).
	DefaultTTL time.Duration

	// MaxTTL bounds the lifetime callers may request. Zero disables the bound.
	MaxTTL time.Duration

	// MaxIssueAttempts is how many secrets Issue generates before giving up
	// on duplicates (default: 5).
	MaxIssueAttempts int
}

// DefaultTokenServiceConfig returns default configuration.
func DefaultTokenServiceConfig() *TokenServiceConfig {
	return &TokenServiceConfig{
		DefaultTTL:       time.Hour,
		MaxTTL:           30 * 24 * time.Hour,
		MaxIssueAttempts: 5,
	}
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithClock sets the time source used for issuance and expiry checks.
func WithClock(c clock.PassiveClock) TokenServiceOption {
	return func(s *TokenService) {
		s.clock = c
	}
}

// WithRandom sets the source of secret bytes. Defaults to crypto/rand.
func WithRandom(r io.Reader) TokenServiceOption {
	return func(s *TokenService) {
		s.random = r
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) TokenServiceOption {
	return func(s *TokenService) {
		s.logger = logger.Component(l, "token_service")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) TokenServiceOption {
	return func(s *TokenService) {
		s.metrics = m
	}
}

// TokenService issues, validates and revokes tokens.
//
// It is the only component that interprets token state; stores just hold
// records. All methods are safe for concurrent use.
type TokenService struct {
	store   TokenStore
	cfg     TokenServiceConfig
	clock   clock.PassiveClock
	random  io.Reader
	logger  logger.Logger
	metrics Metrics
}

// NewTokenService creates a new TokenService with the given store and config.
func NewTokenService(store TokenStore, config *TokenServiceConfig, opts ...TokenServiceOption) *TokenService {
	if config == nil {
		config = DefaultTokenServiceConfig()
	}
	cfg := *config
	if cfg.MaxIssueAttempts <= 0 {
		cfg.MaxIssueAttempts = 5
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	s := &TokenService{
		store:   store,
		cfg:     cfg,
		clock:   clock.RealClock{},
		logger:  logger.Component(logger.Default(), "token_service"),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueResult is returned once per issuance. SecretValue is not
// recoverable afterwards.
type IssueResult struct {
	SecretValue string
	ExpiresAt   time.Time
	TokenID     string
}

// Issue creates a token for subjectID that expires after ttl.
//
// A generated secret that already exists in the store is discarded and a
// new one generated, up to MaxIssueAttempts times.
func (s *TokenService) Issue(ctx context.Context, subjectID string, ttl time.Duration) (*IssueResult, error) {
	// 1. Validate input
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("ttl must be positive")
	}
	if s.cfg.MaxTTL > 0 && ttl > s.cfg.MaxTTL {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("ttl exceeds maximum of %s", s.cfg.MaxTTL))
	}

	for attempt := 1; attempt <= s.cfg.MaxIssueAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// 2. Generate secret and record
		secret, hash, err := domain.GenerateSecret(s.random)
		if err != nil {
			return nil, err
		}
		now := s.clock.Now()
		id, err := domain.GenerateTokenID(now, nil)
		if err != nil {
			return nil, err
		}
		tok := domain.NewToken(id, hash, subjectID, now, ttl)

		// 3. Persist; the store rejects an existing secret hash
		err = s.store.Put(ctx, tok)
		if errors.Is(err, domain.ErrDuplicateSecret) {
			s.metrics.IssueRetried()
			s.logger.Warn("duplicate secret generated, retrying", "attempt", attempt, "token_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.TokenIssued()
		s.logger.Debug("token issued", "token_id", id, "subject_id", subjectID, "expires_at", tok.ExpiresAt)

		return &IssueResult{
			SecretValue: secret,
			ExpiresAt:   tok.ExpiresAt,
			TokenID:     id,
		}, nil
	}

	s.logger.Error("token issuance failed", "subject_id", subjectID, "attempts", s.cfg.MaxIssueAttempts)
	return nil, domain.ErrIssuanceFailed.WithDetails(fmt.Sprintf("no unique secret after %d attempts", s.cfg.MaxIssueAttempts))
}

// IssueDefault issues a token with the configured DefaultTTL.
func (s *TokenService) IssueDefault(ctx context.Context, subjectID string) (*IssueResult, error) {
	return s.Issue(ctx, subjectID, s.cfg.DefaultTTL)
}

// Validate returns the subject of a valid token.
//
// Errors: ErrTokenNotFound, ErrTokenRevoked, ErrTokenExpired or
// ErrStoreUnavailable. A token that is both revoked and expired reports
// ErrTokenRevoked. Validate never modifies the store.
func (s *TokenService) Validate(ctx context.Context, secretValue string) (string, error) {
	tok, err := s.lookup(ctx, secretValue)
	if err == nil {
		err = s.classify(tok)
	}
	s.metrics.TokenValidated(resultLabel(err))
	if err != nil {
		return "", err
	}
	return tok.SubjectID, nil
}

// Introspect returns a copy of the record behind secretValue together with
// the same error Validate would report. The record is non-nil whenever it
// exists, even if it is no longer valid.
func (s *TokenService) Introspect(ctx context.Context, secretValue string) (*domain.Token, error) {
	tok, err := s.lookup(ctx, secretValue)
	if err != nil {
		return nil, err
	}
	return tok, s.classify(tok)
}

// Revoke marks the token revoked. Revoking an already revoked token
// succeeds; the first revocation time is kept.
func (s *TokenService) Revoke(ctx context.Context, secretValue string) error {
	_, err := s.revoke(ctx, secretValue)
	return err
}

// RevokeAndPurge revokes the token and deletes its record immediately
// instead of leaving it for the cleaner.
func (s *TokenService) RevokeAndPurge(ctx context.Context, secretValue string) error {
	tok, err := s.revoke(ctx, secretValue)
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, tok.ID); err != nil {
		return err
	}
	s.logger.Info("token purged", "token_id", tok.ID)
	return nil
}

func (s *TokenService) revoke(ctx context.Context, secretValue string) (*domain.Token, error) {
	if !domain.ValidateSecretFormat(secretValue) {
		return nil, domain.ErrTokenNotFound
	}

	tok, err := s.store.MarkRevoked(ctx, domain.HashSecret(secretValue), s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.metrics.TokenRevoked()
	s.logger.Info("token revoked", "token_id", tok.ID, "subject_id", tok.SubjectID)
	return tok, nil
}

// lookup maps a presented secret to its stored record. A malformed secret
// cannot have been issued and is reported as not found.
func (s *TokenService) lookup(ctx context.Context, secretValue string) (*domain.Token, error) {
	if !domain.ValidateSecretFormat(secretValue) {
		return nil, domain.ErrTokenNotFound
	}
	tok, err := s.store.Get(ctx, domain.HashSecret(secretValue))
	if err != nil {
		if !errors.Is(err, domain.ErrTokenNotFound) {
			s.logger.Warn("token lookup failed", "error", err)
		}
		return nil, err
	}
	return tok, nil
}

// classify applies the validity rules. Revocation is checked first.
func (s *TokenService) classify(tok *domain.Token) error {
	if tok.Revoked {
		return domain.ErrTokenRevoked
	}
	if tok.IsExpired(s.clock.Now()) {
		return domain.ErrTokenExpired
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metric.ResultValid
	case errors.Is(err, domain.ErrTokenNotFound):
		return metric.ResultNotFound
	case errors.Is(err, domain.ErrTokenRevoked):
		return metric.ResultRevoked
	case errors.Is(err, domain.ErrTokenExpired):
		return metric.ResultExpired
	default:
		return metric.ResultError
	}
}
