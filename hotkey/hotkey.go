package hotkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Preconfigured one-keystroke trades. A bindings file maps a keyword to a
// market and order parameters; Resolve turns a keyword into a ready order
// intent. Routing and signing the order is the job of an external
// collaborator implementing OrderPlacer.

var ErrUnknownHotkey = errors.New("unknown hotkey")

const (
	defaultSide      = "yes"
	defaultAction    = "buy"
	defaultCount     = 100
	defaultOrderType = "limit"
)

type Binding struct {
	Ticker   string `yaml:"ticker"`
	Side     string `yaml:"side"`
	Action   string `yaml:"action"`
	Count    int    `yaml:"count"`
	Type     string `yaml:"type"`
	YesPrice *int   `yaml:"yes_price"`
	NoPrice  *int   `yaml:"no_price"`
}

type Defaults struct {
	Side   string `yaml:"side"`
	Action string `yaml:"action"`
	Count  int    `yaml:"count"`
	Type   string `yaml:"type"`
}

type Config struct {
	Defaults Defaults           `yaml:"defaults"`
	Hotkeys  map[string]Binding `yaml:"hotkeys"`
}

// OrderIntent is a fully resolved order, ready to hand to the trading
// collaborator. ClientOrderID makes a retried placement idempotent.
type OrderIntent struct {
	ClientOrderID string
	Ticker        string
	Side          string
	Action        string
	Count         int
	Type          string
	YesPrice      *int
	NoPrice       *int
}

// OrderPlacer is the external trading-action collaborator: fire the
// request, await a terminal acknowledgment. Not part of this module.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, intent *OrderIntent) error
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hotkeys file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse hotkeys file: %w", err)
	}

	for keyword, b := range cfg.Hotkeys {
		if b.Ticker == "" {
			return nil, fmt.Errorf("hotkey %q has no ticker", keyword)
		}
	}
	return cfg, nil
}

// Resolve maps a keyword (case-insensitive, surrounding whitespace ignored)
// to an order intent, filling gaps from the file defaults. When the binding
// configures no price at all, aggressive pricing applies: 99 to buy,
// 1 to sell, on the chosen side.
func (c *Config) Resolve(keyword string) (*OrderIntent, error) {
	normalized := strings.ToLower(strings.TrimSpace(keyword))

	b, ok := c.Hotkeys[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHotkey, keyword)
	}

	intent := &OrderIntent{
		ClientOrderID: uuid.NewString(),
		Ticker:        b.Ticker,
		Side:          firstNonEmpty(b.Side, c.Defaults.Side, defaultSide),
		Action:        firstNonEmpty(b.Action, c.Defaults.Action, defaultAction),
		Count:         firstPositive(b.Count, c.Defaults.Count, defaultCount),
		Type:          firstNonEmpty(b.Type, c.Defaults.Type, defaultOrderType),
		YesPrice:      b.YesPrice,
		NoPrice:       b.NoPrice,
	}

	if intent.YesPrice == nil && intent.NoPrice == nil {
		price := 99
		if intent.Action == "sell" {
			price = 1
		}
		if intent.Side == "no" {
			intent.NoPrice = &price
		} else {
			intent.YesPrice = &price
		}
	}

	return intent, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
