package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"freelatracker/internal/observability"
)

const tokenTypeBearer = "bearer"

type Service struct {
	users       UserStore
	revocations RevocationStore
	hasher      *PasswordHasher
	tokens      *TokenCodec
	throttle    *LoginThrottle
	logger      *observability.Logger
	tokenTTL    time.Duration
}

func NewService(
	users UserStore,
	revocations RevocationStore,
	hasher *PasswordHasher,
	tokens *TokenCodec,
	throttle *LoginThrottle,
	logger *observability.Logger,
	tokenTTL time.Duration,
) *Service {
	return &Service{
		users:       users,
		revocations: revocations,
		hasher:      hasher,
		tokens:      tokens,
		throttle:    throttle,
		logger:      logger,
		tokenTTL:    tokenTTL,
	}
}

// Register validates the email and password policy before any hashing and
// creates the user.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return User{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return User{}, err
	}

	user, err := s.users.CreateUser(ctx, email, hash)
	if err != nil {
		return User{}, err
	}

	s.logger.Info("user_registered", map[string]any{"user_id": user.ID})
	return user, nil
}

// Login returns ErrInvalidCredentials for both an unknown email and a wrong
// password. Only the log line tells them apart.
func (s *Service) Login(ctx context.Context, email, password, clientID string) (AccessToken, error) {
	if limited, retryAfter := s.throttle.Check(clientID); limited {
		s.logger.Warn("login_rate_limited", map[string]any{"client": clientID})
		return AccessToken{}, ErrRateLimited{RetryAfter: retryAfter}
	}

	email = NormalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return AccessToken{}, err
		}
		if err := s.hasher.VerifyDummy(ctx, password); err != nil {
			return AccessToken{}, err
		}
		return AccessToken{}, s.failLogin(clientID, "unknown_email")
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return AccessToken{}, err
	}
	if !ok {
		return AccessToken{}, s.failLogin(clientID, "wrong_password")
	}

	s.throttle.Reset(clientID)

	signed, _, err := s.tokens.Issue(strconv.FormatInt(user.ID, 10), "", s.tokenTTL)
	if err != nil {
		return AccessToken{}, err
	}

	s.logger.Info("login_succeeded", map[string]any{"user_id": user.ID, "client": clientID})
	return AccessToken{AccessToken: signed, TokenType: tokenTypeBearer}, nil
}

func (s *Service) failLogin(clientID, reason string) error {
	s.throttle.RecordFailure(clientID)
	s.logger.Warn("login_failed", map[string]any{"client": clientID, "reason": reason})
	return ErrInvalidCredentials
}

// ResolveIdentity turns a bearer token into the user it was issued to. Any
// token problem collapses to ErrUnauthenticated; storage faults pass through.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return User{}, ErrUnauthenticated
	}
	if claims.JTI == "" || claims.ExpiresAt.IsZero() {
		return User{}, ErrUnauthenticated
	}

	return s.identityFromClaims(ctx, claims)
}

func (s *Service) identityFromClaims(ctx context.Context, claims TokenClaims) (User, error) {
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return User{}, ErrUnauthenticated
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return User{}, err
	}
	if revoked {
		return User{}, ErrUnauthenticated
	}

	return user, nil
}

// Logout adds the token's jti to the denylist until the token would have
// expired anyway. The token must still be valid when presented.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return ErrUnauthenticated
	}
	if claims.JTI == "" || claims.ExpiresAt.IsZero() {
		return ErrMalformedToken
	}

	user, err := s.identityFromClaims(ctx, claims)
	if err != nil {
		return err
	}

	if err := s.revocations.Revoke(ctx, claims.JTI, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	s.logger.Info("token_revoked", map[string]any{"user_id": user.ID})
	return nil
}
