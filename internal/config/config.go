package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// Config is the runtime configuration, loaded from environment variables
// (optionally seeded from .env by the binary).
type Config struct {
	Debug bool

	// Trader identity
	TraderID model.TraderID

	// Venue / account
	Venue       model.Venue
	AccountID   model.AccountID
	AccountType model.AccountType
	OmsType     model.OmsType

	// Starting balances, e.g. "USD:100000,BTC:2"
	StartingBalances map[model.Currency]decimal.Decimal

	// Margin account leverage (margin accounts only)
	DefaultLeverage decimal.Decimal

	// Persistence: sqlite path or postgres DSN; empty disables persistence
	DatabaseDSN string

	// Quote feed websocket URL; empty disables the feed adapter
	FeedWSURL string

	// Metrics HTTP listen address, e.g. ":9090"; empty disables
	MetricsAddr string

	// Telegram notifier
	TelegramToken  string
	TelegramChatID int64

	// Account event retention window in seconds. Only loaded; no periodic
	// purge uses it. A lookback of 0 passed to PurgeEvents discards every event.
	AccountEventLookbackSecs int64
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Debug:            envBool("DEBUG", false),
		TraderID:         model.TraderID(envStr("TRADER_ID", "TRADER-001")),
		Venue:            model.Venue(envStr("VENUE", "SIM")),
		AccountType:      model.AccountType(envStr("ACCOUNT_TYPE", string(model.AccountCash))),
		OmsType:          model.OmsType(envStr("OMS_TYPE", string(model.OmsNetting))),
		DatabaseDSN:      envStr("DATABASE_DSN", ""),
		FeedWSURL:        envStr("FEED_WS_URL", ""),
		MetricsAddr:      envStr("METRICS_ADDR", ""),
		TelegramToken:    envStr("TELEGRAM_TOKEN", ""),
		StartingBalances: make(map[model.Currency]decimal.Decimal),
	}
	cfg.AccountID = model.AccountID(envStr("ACCOUNT_ID", string(cfg.Venue)+"-001"))

	switch cfg.AccountType {
	case model.AccountCash, model.AccountMargin, model.AccountBetting:
	default:
		return nil, fmt.Errorf("invalid ACCOUNT_TYPE %q", cfg.AccountType)
	}
	switch cfg.OmsType {
	case model.OmsNetting, model.OmsHedging:
	default:
		return nil, fmt.Errorf("invalid OMS_TYPE %q", cfg.OmsType)
	}

	balances := envStr("STARTING_BALANCES", "USD:100000")
	for _, pair := range strings.Split(balances, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid STARTING_BALANCES entry %q", pair)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid STARTING_BALANCES amount %q: %w", parts[1], err)
		}
		cfg.StartingBalances[model.Currency(strings.ToUpper(strings.TrimSpace(parts[0])))] = amount
	}

	leverage := envStr("DEFAULT_LEVERAGE", "1")
	lev, err := decimal.NewFromString(leverage)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_LEVERAGE %q: %w", leverage, err)
	}
	cfg.DefaultLeverage = lev

	if v := envStr("TELEGRAM_CHAT_ID", ""); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.TelegramChatID = id
	}
	if v := envStr("ACCOUNT_EVENT_LOOKBACK_SECS", ""); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ACCOUNT_EVENT_LOOKBACK_SECS %q: %w", v, err)
		}
		cfg.AccountEventLookbackSecs = secs
	}
	return cfg, nil
}

// InitialAccountState builds the bootstrap account state event from the
// configured starting balances.
func (c *Config) InitialAccountState(tsEvent int64) model.AccountState {
	balances := make([]model.AccountBalance, 0, len(c.StartingBalances))
	for currency, total := range c.StartingBalances {
		balances = append(balances, model.AccountBalance{
			Currency: currency,
			Total:    total,
			Locked:   decimal.Zero,
			Free:     total,
		})
	}
	return model.AccountState{
		AccountID:   c.AccountID,
		AccountType: c.AccountType,
		Balances:    balances,
		TsEvent:     tsEvent,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
