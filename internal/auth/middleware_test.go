package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/bearer-auth/internal/domain"
	"github.com/spec-kit/bearer-auth/internal/observability"
	"github.com/spec-kit/bearer-auth/internal/repository"
)

type whoami struct {
	Authenticated bool   `json:"authenticated"`
	ID            string `json:"id"`
	Username      string `json:"username"`
	CtxID         string `json:"ctx_id"`
}

// countingLookup counts GetByID calls against the wrapped store.
type countingLookup struct {
	AccountLookup
	byID atomic.Int64
}

func (l *countingLookup) GetByID(ctx context.Context, id string) (*domain.User, error) {
	l.byID.Add(1)
	return l.AccountLookup.GetByID(ctx, id)
}

func whoamiHandler(c *fiber.Ctx) error {
	p, ok := PrincipalFromContext(c)
	if !ok {
		return c.JSON(whoami{})
	}
	resp := whoami{Authenticated: true, ID: p.ID, Username: p.Username}
	if fromCtx, ok := PrincipalFromCtx(c.UserContext()); ok {
		resp.CtxID = fromCtx.ID
	}
	return c.JSON(resp)
}

func newTestApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	for _, h := range handlers {
		app.Use(h)
	}
	app.Get("/whoami", whoamiHandler)
	app.Get("/private", RequireAuthenticated(), whoamiHandler)
	app.Get("/admin", RequireRole(domain.RoleAdmin), whoamiHandler)
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, authorization string) (int, whoami) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body whoami
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func flipSignatureByte(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[0] ^= 0x01
	return parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(sig)
}

type middlewareFixture struct {
	repo    repository.UserRepository
	codec   *TokenCodec
	metrics *observability.Metrics
	mw      *AuthMiddleware
	alice   *domain.User
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	alice := &domain.User{Username: "alice", Email: "alice@example.com", Role: domain.RoleUser, Status: domain.UserStatusActive}
	require.NoError(t, repo.Create(context.Background(), alice))

	codec, err := NewTokenCodec(testSecret, "test-issuer", 10*time.Minute)
	require.NoError(t, err)
	metrics := observability.NewMetrics()

	return &middlewareFixture{
		repo:    repo,
		codec:   codec,
		metrics: metrics,
		mw:      NewAuthMiddleware(codec, repo, nil, metrics),
		alice:   alice,
	}
}

func (f *middlewareFixture) token(t *testing.T, subject string) string {
	t.Helper()
	token, _, err := f.codec.Encode(subject, nil)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_PassThrough(t *testing.T) {
	f := newMiddlewareFixture(t)
	app := newTestApp(f.mw.Handle)
	valid := f.token(t, f.alice.ID)

	tests := []struct {
		name          string
		authorization string
		outcome       string
	}{
		{name: "no header", authorization: "", outcome: OutcomeNoHeader},
		{name: "basic scheme", authorization: "Basic YWxpY2U6cGFzcw==", outcome: OutcomeNotBearer},
		{name: "lowercase scheme", authorization: "bearer " + valid, outcome: OutcomeNotBearer},
		{name: "scheme without space", authorization: "Bearer" + valid, outcome: OutcomeNotBearer},
		{name: "garbage token", authorization: "Bearer not-a-token", outcome: OutcomeInvalidToken},
		{name: "scheme only", authorization: "Bearer ", outcome: OutcomeNotBearer},
		{name: "unknown subject", authorization: "Bearer " + f.token(t, "ghost-id"), outcome: OutcomeUnknownPrincipal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.metrics.AuthenticationCount(tt.outcome)

			status, body := doRequest(t, app, "/whoami", tt.authorization)

			assert.Equal(t, http.StatusOK, status)
			assert.False(t, body.Authenticated)
			assert.Equal(t, before+1, f.metrics.AuthenticationCount(tt.outcome))
		})
	}
}

func TestAuthMiddleware_Authenticates(t *testing.T) {
	f := newMiddlewareFixture(t)
	app := newTestApp(f.mw.Handle)

	status, body := doRequest(t, app, "/whoami", "Bearer "+f.token(t, f.alice.ID))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Authenticated)
	assert.Equal(t, f.alice.ID, body.ID)
	assert.Equal(t, f.alice.ID, body.CtxID)
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, int64(1), f.metrics.AuthenticationCount(OutcomeAuthenticated))
}

func TestAuthMiddleware_ExpiredAndTampered(t *testing.T) {
	f := newMiddlewareFixture(t)

	past, err := NewTokenCodec(testSecret, "test-issuer", time.Minute, WithClock(fixedClock(time.Now().Add(-time.Hour))))
	require.NoError(t, err)
	expired, _, err := past.Encode(f.alice.ID, nil)
	require.NoError(t, err)

	tampered := flipSignatureByte(t, f.token(t, f.alice.ID))

	app := newTestApp(f.mw.Handle)
	for _, token := range []string{expired, tampered} {
		status, body := doRequest(t, app, "/whoami", "Bearer "+token)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, body.Authenticated)
	}
	assert.Equal(t, int64(2), f.metrics.AuthenticationCount(OutcomeInvalidToken))
}

func TestAuthMiddleware_SuspendedAccountNotAttached(t *testing.T) {
	f := newMiddlewareFixture(t)
	token := f.token(t, f.alice.ID)

	f.alice.Status = domain.UserStatusSuspended
	require.NoError(t, f.repo.Update(context.Background(), f.alice))

	status, body := doRequest(t, newTestApp(f.mw.Handle), "/whoami", "Bearer "+token)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, body.Authenticated)
	assert.Equal(t, int64(1), f.metrics.AuthenticationCount(OutcomeRejected))
}

func TestAuthMiddleware_ReentrantInvocationResolvesOnce(t *testing.T) {
	f := newMiddlewareFixture(t)
	lookup := &countingLookup{AccountLookup: f.repo}
	mw := NewAuthMiddleware(f.codec, lookup, nil, f.metrics)

	app := newTestApp(mw.Handle, mw.Handle)
	status, body := doRequest(t, app, "/whoami", "Bearer "+f.token(t, f.alice.ID))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, f.alice.ID, body.ID)
	assert.Equal(t, int64(1), lookup.byID.Load())
	assert.Equal(t, int64(1), f.metrics.AuthenticationCount(OutcomeAlreadyAttached))
}

func TestAuthMiddleware_TokenSurvivesRename(t *testing.T) {
	f := newMiddlewareFixture(t)
	token := f.token(t, f.alice.ID)

	f.alice.Username = "alice-renamed"
	require.NoError(t, f.repo.Update(context.Background(), f.alice))

	status, body := doRequest(t, newTestApp(f.mw.Handle), "/whoami", "Bearer "+token)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Authenticated)
	assert.Equal(t, f.alice.ID, body.ID)
	assert.Equal(t, "alice-renamed", body.Username)
}

func TestAuthMiddleware_Guards(t *testing.T) {
	f := newMiddlewareFixture(t)
	admin := &domain.User{Username: "root", Email: "root@example.com", Role: domain.RoleAdmin, Status: domain.UserStatusActive}
	require.NoError(t, f.repo.Create(context.Background(), admin))
	app := newTestApp(f.mw.Handle)

	status, _ := doRequest(t, app, "/private", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, "/private", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, "/private", "Bearer "+f.token(t, f.alice.ID))
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, "/admin", "Bearer "+f.token(t, f.alice.ID))
	assert.Equal(t, http.StatusForbidden, status)

	status, body := doRequest(t, app, "/admin", "Bearer "+f.token(t, admin.ID))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, admin.ID, body.ID)
}

func TestAuthMiddleware_ConcurrentRequestsIsolated(t *testing.T) {
	const n = 1000
	f := newMiddlewareFixture(t)
	ctx := context.Background()

	users := make([]*domain.User, n)
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		u := &domain.User{
			Username: fmt.Sprintf("user-%d", i),
			Email:    fmt.Sprintf("user-%d@example.com", i),
			Role:     domain.RoleUser,
			Status:   domain.UserStatusActive,
		}
		require.NoError(t, f.repo.Create(ctx, u))
		users[i] = u
		tokens[i] = f.token(t, u.ID)
	}

	app := newTestApp(f.mw.Handle)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	sem := make(chan struct{}, 64)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set("Authorization", "Bearer "+tokens[i])
			resp, err := app.Test(req, -1)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()

			var body whoami
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				errs <- err
				return
			}
			if body.ID != users[i].ID || body.CtxID != users[i].ID || body.Username != users[i].Username {
				errs <- fmt.Errorf("request %d resolved to %q/%q, want %q", i, body.ID, body.CtxID, users[i].ID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int64(n), f.metrics.AuthenticationCount(OutcomeAuthenticated))
}
