package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/internal/app"
	"github.com/storify-asia/storify/pkg/config"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("PG_CONN_URL", "postgres://storify@localhost:5432/storify")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://storify.asia,capacitor://localhost")
	t.Setenv("PEWACA_PLAN_IDS", "1:11,2:22")
	config.Reset()
	t.Cleanup(config.Reset)

	var cfg app.Config
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, []string{"https://storify.asia", "capacitor://localhost"}, cfg.CORSOrigins)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://storify@localhost:5432/storify", cfg.PG.ConnectionString)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "storify_session", cfg.Session.CookieName)
	assert.Equal(t, 3, cfg.Listening.FreeLimit)
	assert.Equal(t, 1, cfg.Listening.GuestLimit)
	assert.Equal(t, "xendit", cfg.Payment.DefaultGateway)
	assert.Equal(t, "@every 5m", cfg.Payment.ExpirySchedule)
	assert.False(t, cfg.Payment.AllowManualUpdate)
	assert.Equal(t, 10*time.Second, cfg.GatewayHTTP.Timeout)
	assert.Equal(t, map[string]string{"1": "11", "2": "22"}, cfg.Pewaca.PlanIDs)
	assert.Equal(t, 100, cfg.ExpiryBatch)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.API().Capacity)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Auth().RefillInterval)
}
