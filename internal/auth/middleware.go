package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/bearer-auth/internal/observability"
	"github.com/spec-kit/bearer-auth/internal/repository"
)

const bearerPrefix = "Bearer "

// Authentication outcomes recorded in metrics.
const (
	OutcomeAuthenticated    = "authenticated"
	OutcomeNoHeader         = "pass_through:no_header"
	OutcomeNotBearer        = "pass_through:not_bearer"
	OutcomeInvalidToken     = "pass_through:invalid_token"
	OutcomeAlreadyAttached  = "pass_through:already_authenticated"
	OutcomeUnknownPrincipal = "pass_through:unknown_principal"
	OutcomeRejected         = "pass_through:revalidation_failed"
	OutcomeLookupFailed     = "pass_through:lookup_failed"
)

// AuthMiddleware turns a bearer token into a request principal. It never
// rejects a request; guards such as RequireAuthenticated decide that.
type AuthMiddleware struct {
	tokens  *TokenCodec
	users   AccountLookup
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAuthMiddleware constructs middleware. metrics may be nil.
func NewAuthMiddleware(tokens *TokenCodec, users AccountLookup, logger *zap.Logger, metrics *observability.Metrics) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, users: users, logger: logger, metrics: metrics}
}

// Handle authenticates the request when possible and always continues the chain.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	m.metrics.RecordAuthentication(m.authenticate(c))
	return c.Next()
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) string {
	sc := securityContext(c)

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return OutcomeNoHeader
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return OutcomeNotBearer
	}
	raw := strings.TrimPrefix(authHeader, bearerPrefix)

	decoded, err := m.tokens.Decode(raw)
	if err != nil {
		m.logger.Warn("bearer token rejected",
			zap.String("reason", decodeFailureReason(err)),
			zap.String("path", c.Path()))
		return OutcomeInvalidToken
	}

	if sc.Authenticated() {
		return OutcomeAlreadyAttached
	}

	user, err := m.users.GetByID(c.UserContext(), decoded.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.logger.Warn("token subject not found", zap.String("subject", decoded.Subject))
			return OutcomeUnknownPrincipal
		}
		m.logger.Error("principal lookup failed", zap.String("subject", decoded.Subject), zap.Error(err))
		return OutcomeLookupFailed
	}

	if user.ID != decoded.Subject || decoded.Expired(m.tokens.Now()) || !user.Active() {
		m.logger.Warn("token revalidation failed", zap.String("subject", decoded.Subject))
		return OutcomeRejected
	}

	if !sc.Set(NewPrincipal(user)) {
		return OutcomeAlreadyAttached
	}
	return OutcomeAuthenticated
}

func decodeFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}
