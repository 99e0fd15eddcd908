package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/bearer-auth/internal/config"
	"github.com/spec-kit/bearer-auth/internal/observability"
	"github.com/spec-kit/bearer-auth/internal/persistence"
)

func readyDependencies(t *testing.T, app *fiber.App) map[string]any {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	deps, _ := body["dependencies"].(map[string]any)
	return deps
}

func TestHealthHandler_Ready(t *testing.T) {
	srv := miniredis.RunT(t)
	redis := persistence.NewRedis(config.RedisConfig{Addr: srv.Addr()}, zap.NewNop())
	t.Cleanup(redis.Close)

	app := fiber.New()
	app.Get("/ready", NewHealthHandler("bearer-auth-service", "test", nil, redis).Ready)

	deps := readyDependencies(t, app)
	assert.Equal(t, "in-memory", deps["postgres"])
	assert.Equal(t, "ok", deps["redis"])
}

func TestHealthHandler_ReadyUsesRequestContext(t *testing.T) {
	srv := miniredis.RunT(t)
	redis := persistence.NewRedis(config.RedisConfig{Addr: srv.Addr()}, zap.NewNop())
	t.Cleanup(redis.Close)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithCancel(c.UserContext())
		cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Get("/ready", NewHealthHandler("bearer-auth-service", "test", nil, redis).Ready)

	deps := readyDependencies(t, app)
	assert.Contains(t, deps["redis"], "degraded")
	assert.Contains(t, deps["redis"], context.Canceled.Error())
}

func TestMetricsHandler_Snapshot(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.RecordAuthentication("authenticated")

	app := fiber.New()
	app.Get("/metrics", NewMetricsHandler(metrics).Snapshot)
	app.Get("/empty", NewMetricsHandler(nil).Snapshot)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Metrics map[string]map[string]int64 `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1), body.Metrics["authentication"]["authenticated"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/empty", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
