package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/bearer-auth/internal/auth"
	"github.com/spec-kit/bearer-auth/internal/config"
	"github.com/spec-kit/bearer-auth/internal/domain"
	"github.com/spec-kit/bearer-auth/internal/events"
	"github.com/spec-kit/bearer-auth/internal/repository"
)

var (
	// ErrDuplicateAccount is returned when the username or email is taken.
	ErrDuplicateAccount = errors.New("account already registered")
	// ErrInvalidInput is returned when required registration fields are blank.
	ErrInvalidInput = errors.New("username, email and password are required")
	// ErrInvalidUsername is returned when the username could be mistaken for an email.
	ErrInvalidUsername = errors.New("username must not contain '@'")
)

const principalCachePrefix = "user:"

// PrincipalCacheKey is the side-cache key for a principal snapshot.
func PrincipalCacheKey(id string) string {
	return principalCachePrefix + id
}

// PrincipalCache is the write side of the side cache. It is never read for
// authentication decisions.
type PrincipalCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// IssuedToken is returned by Register and Login.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Principal *auth.Principal
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users        repository.UserRepository
	hasher       auth.PasswordHasher
	verifier     *auth.CredentialVerifier
	tokens       *auth.TokenCodec
	cache        PrincipalCache
	cacheTTL     time.Duration
	cacheTimeout time.Duration
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service. Cache,
// Dispatcher, Hasher and CodecOptions are optional.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	Cache        PrincipalCache
	Dispatcher   events.Dispatcher
	Hasher       auth.PasswordHasher
	Logger       *zap.Logger
	CodecOptions []auth.CodecOption
}

// NewAuthService builds the service. It fails with auth.ErrSigningKey when the
// configured secret cannot be used.
func NewAuthService(cfg config.Config, deps AuthDependencies) (*AuthService, error) {
	tokens, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL(), deps.CodecOptions...)
	if err != nil {
		return nil, err
	}

	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	}
	verifier, err := auth.NewCredentialVerifier(deps.UserRepo, hasher)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthService{
		users:        deps.UserRepo,
		hasher:       hasher,
		verifier:     verifier,
		tokens:       tokens,
		cache:        deps.Cache,
		cacheTTL:     cfg.Auth.PrincipalCacheTTL(),
		cacheTimeout: cfg.Auth.CacheWriteTimeout(),
		dispatcher:   deps.Dispatcher,
		logger:       logger,
	}, nil
}

// Register creates a new account with the default role and returns a token
// whose subject is the account's immutable ID.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*IssuedToken, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if !domain.ValidUsername(in.Username) {
		return nil, ErrInvalidUsername
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateAccount
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.DefaultRole,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}

	principal := auth.NewPrincipal(user)
	issued, err := s.issue(principal)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventAccountRegistered, user.ID, events.AccountRegisteredPayload{
		Username: user.Username,
		Role:     string(user.Role),
	}))
	return issued, nil
}

// Login verifies credentials, issues a token and mirrors the principal into
// the side cache. A failed cache write does not fail the login.
func (s *AuthService) Login(ctx context.Context, creds auth.Credentials) (*IssuedToken, error) {
	principal, err := s.verifier.Verify(ctx, creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.publish(ctx, events.NewEvent(events.EventLoginFailed, "", events.LoginFailedPayload{Reason: "invalid_credentials"}))
		}
		return nil, err
	}

	issued, err := s.issue(principal)
	if err != nil {
		return nil, err
	}

	s.cachePrincipal(ctx, principal)
	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, principal.ID, nil))
	return issued, nil
}

// ChangePassword verifies the current password before storing the new hash.
// Tokens already issued stay valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.ErrInvalidCredentials
		}
		return err
	}
	if !s.hasher.Matches(currentPassword, user.PasswordHash) {
		return auth.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.users.Update(ctx, user)
}

// ListUsers returns principal views of all accounts.
func (s *AuthService) ListUsers(ctx context.Context) ([]*auth.Principal, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	principals := make([]*auth.Principal, 0, len(users))
	for _, u := range users {
		principals = append(principals, auth.NewPrincipal(u))
	}
	return principals, nil
}

// TokenCodec exposes the underlying codec for middleware usage.
func (s *AuthService) TokenCodec() *auth.TokenCodec {
	return s.tokens
}

func (s *AuthService) issue(p *auth.Principal) (*IssuedToken, error) {
	token, exp, err := s.tokens.Encode(p.ID, map[string]any{"role": string(p.Role)})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &IssuedToken{Token: token, ExpiresAt: exp, Principal: p}, nil
}

// cachePrincipal waits at most cacheTimeout for the write, even when the
// cache implementation ignores ctx.
func (s *AuthService) cachePrincipal(ctx context.Context, p *auth.Principal) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	snapshot := *p
	done := make(chan error, 1)
	go func() {
		done <- s.cache.Set(ctx, PrincipalCacheKey(snapshot.ID), snapshot, s.cacheTTL)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("principal cache write failed", zap.String("subject_id", p.ID), zap.Error(err))
		}
	case <-ctx.Done():
		s.logger.Warn("principal cache write abandoned", zap.String("subject_id", p.ID), zap.Error(ctx.Err()))
	}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
