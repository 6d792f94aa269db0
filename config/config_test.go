package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"KALSHI_WS_URL",
		"RECONNECT_BASE_DELAY_MS",
		"RECONNECT_MULTIPLIER",
		"RECONNECT_MAX_DELAY_MS",
		"RECONNECT_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultWsEndpoint, cfg.WsEndpoint)
	assert.Equal(t, 1000*time.Millisecond, cfg.ReconnectBaseDelay)
	assert.Equal(t, 2.0, cfg.ReconnectMultiplier)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 0, cfg.ReconnectMaxAttempts, "no attempt cap by default")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KALSHI_WS_URL", "wss://demo.kalshi.co/ws")
	t.Setenv("RECONNECT_BASE_DELAY_MS", "500")
	t.Setenv("RECONNECT_MULTIPLIER", "1.5")
	t.Setenv("RECONNECT_MAX_DELAY_MS", "10000")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://demo.kalshi.co/ws", cfg.WsEndpoint)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
	assert.Equal(t, 1.5, cfg.ReconnectMultiplier)
	assert.Equal(t, 10*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 12, cfg.ReconnectMaxAttempts)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RECONNECT_BASE_DELAY_MS": "zero",
		"RECONNECT_MULTIPLIER":    "0.5",
		"RECONNECT_MAX_DELAY_MS":  "-1",
		"RECONNECT_MAX_ATTEMPTS":  "-3",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMaxBelowBase(t *testing.T) {
	t.Setenv("RECONNECT_BASE_DELAY_MS", "5000")
	t.Setenv("RECONNECT_MAX_DELAY_MS", "1000")

	_, err := Load()
	assert.Error(t, err)
}
