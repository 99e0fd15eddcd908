package auth

import (
	"context"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bearer-auth/internal/domain"
)

const securityContextKey = "auth_security_context"

type securityContextCtxKey struct{}

// Principal is the identity resolved for a request. It doubles as the
// snapshot written to the side cache, so it never carries the password hash.
type Principal struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Role     domain.Role       `json:"role"`
	Status   domain.UserStatus `json:"status"`
}

// NewPrincipal copies the authorization relevant fields of user.
func NewPrincipal(user *domain.User) *Principal {
	return &Principal{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		Status:   user.Status,
	}
}

// SecurityContext holds at most one Principal for a single request. The first
// successful Set wins.
type SecurityContext struct {
	principal atomic.Pointer[Principal]
}

// Principal returns the attached principal, or nil.
func (s *SecurityContext) Principal() *Principal {
	if s == nil {
		return nil
	}
	return s.principal.Load()
}

// Authenticated reports whether a principal is attached.
func (s *SecurityContext) Authenticated() bool {
	return s.Principal() != nil
}

// Set attaches p when the context is still empty. It returns false when a
// principal was already present.
func (s *SecurityContext) Set(p *Principal) bool {
	if s == nil || p == nil {
		return false
	}
	return s.principal.CompareAndSwap(nil, p)
}

// WithSecurityContext returns ctx carrying sc.
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextCtxKey{}, sc)
}

// SecurityContextFrom extracts the request's security context from ctx.
func SecurityContextFrom(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextCtxKey{}).(*SecurityContext)
	return sc, ok && sc != nil
}

// PrincipalFromCtx returns the principal attached to ctx, if any.
func PrincipalFromCtx(ctx context.Context) (*Principal, bool) {
	sc, ok := SecurityContextFrom(ctx)
	if !ok {
		return nil, false
	}
	p := sc.Principal()
	return p, p != nil
}

// securityContext returns the request's context, creating and binding an
// empty one on first use.
func securityContext(c *fiber.Ctx) *SecurityContext {
	if sc, ok := c.Locals(securityContextKey).(*SecurityContext); ok && sc != nil {
		return sc
	}
	sc := &SecurityContext{}
	c.Locals(securityContextKey, sc)
	c.SetUserContext(WithSecurityContext(c.UserContext(), sc))
	return sc
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	sc, ok := c.Locals(securityContextKey).(*SecurityContext)
	if !ok {
		return nil, false
	}
	p := sc.Principal()
	return p, p != nil
}
