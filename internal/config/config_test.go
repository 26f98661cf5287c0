package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradecore/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, model.TraderID("TRADER-001"), cfg.TraderID)
	assert.Equal(t, model.Venue("SIM"), cfg.Venue)
	assert.Equal(t, model.AccountID("SIM-001"), cfg.AccountID)
	assert.Equal(t, model.AccountCash, cfg.AccountType)
	assert.Equal(t, model.OmsNetting, cfg.OmsType)
	require.Contains(t, cfg.StartingBalances, model.USD)
	assert.True(t, cfg.StartingBalances[model.USD].Equal(dec("100000")))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VENUE", "BINANCE")
	t.Setenv("ACCOUNT_TYPE", "MARGIN")
	t.Setenv("OMS_TYPE", "HEDGING")
	t.Setenv("STARTING_BALANCES", "usdt:5000, btc:0.5")
	t.Setenv("DEFAULT_LEVERAGE", "10")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, model.Venue("BINANCE"), cfg.Venue)
	assert.Equal(t, model.AccountID("BINANCE-001"), cfg.AccountID)
	assert.Equal(t, model.AccountMargin, cfg.AccountType)
	assert.Equal(t, model.OmsHedging, cfg.OmsType)
	assert.True(t, cfg.StartingBalances[model.USDT].Equal(dec("5000")))
	assert.True(t, cfg.StartingBalances[model.BTC].Equal(dec("0.5")))
	assert.True(t, cfg.DefaultLeverage.Equal(dec("10")))
	assert.Equal(t, int64(12345), cfg.TelegramChatID)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ACCOUNT_TYPE", "PREPAID")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadBalances(t *testing.T) {
	t.Setenv("STARTING_BALANCES", "USD=100")
	_, err := Load()
	require.Error(t, err)
}

func TestInitialAccountState(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	state := cfg.InitialAccountState(42)
	assert.Equal(t, cfg.AccountID, state.AccountID)
	assert.Equal(t, int64(42), state.TsEvent)
	require.Len(t, state.Balances, 1)
	b := state.Balances[0]
	assert.True(t, b.IsConsistent())
	assert.True(t, b.Free.Equal(b.Total))
}
