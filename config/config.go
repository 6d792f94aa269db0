package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultWsEndpoint = "wss://api.elections.kalshi.com/trade-api/ws/v2"

	defaultBaseDelay   = 1000 * time.Millisecond
	defaultMultiplier  = 2.0
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 0 // 0 = retry forever

	defaultHotkeysFile = "hotkeys.yaml"
	defaultMetricsAddr = ":8080"
)

// Config holds everything the bridge reads from the environment.
// main loads .env via godotenv before calling Load.
type Config struct {
	WsEndpoint string

	// Reconnect backoff parameters.
	ReconnectBaseDelay   time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int

	HotkeysFile string
	MetricsAddr string
	DebugMode   bool
}

func Load() (*Config, error) {
	cfg := &Config{
		WsEndpoint:           getEnv("KALSHI_WS_URL", defaultWsEndpoint),
		ReconnectBaseDelay:   defaultBaseDelay,
		ReconnectMultiplier:  defaultMultiplier,
		ReconnectMaxDelay:    defaultMaxDelay,
		ReconnectMaxAttempts: defaultMaxAttempts,
		HotkeysFile:          getEnv("HOTKEYS_FILE", defaultHotkeysFile),
		MetricsAddr:          getEnv("METRICS_ADDR", defaultMetricsAddr),
		DebugMode:            os.Getenv("DEBUG") == "true",
	}

	if v := os.Getenv("RECONNECT_BASE_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid RECONNECT_BASE_DELAY_MS: %q", v)
		}
		cfg.ReconnectBaseDelay = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("RECONNECT_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 {
			return nil, fmt.Errorf("invalid RECONNECT_MULTIPLIER: %q", v)
		}
		cfg.ReconnectMultiplier = f
	}

	if v := os.Getenv("RECONNECT_MAX_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid RECONNECT_MAX_DELAY_MS: %q", v)
		}
		cfg.ReconnectMaxDelay = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("RECONNECT_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RECONNECT_MAX_ATTEMPTS: %q", v)
		}
		cfg.ReconnectMaxAttempts = n
	}

	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		return nil, fmt.Errorf("RECONNECT_MAX_DELAY_MS must be >= RECONNECT_BASE_DELAY_MS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
