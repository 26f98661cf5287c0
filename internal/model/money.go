package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MONEY - Currency-tagged decimal amounts
// ═══════════════════════════════════════════════════════════════════════════════
//
// All ledger arithmetic runs on decimals; floats only appear at the matching
// core's integer-tick boundary.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Currency is an ISO-like currency or asset code.
type Currency string

const (
	USD  Currency = "USD"
	USDT Currency = "USDT"
	USDC Currency = "USDC"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
	GBP  Currency = "GBP"
)

var currencyPrecision = map[Currency]int32{
	USD:  2,
	USDT: 8,
	USDC: 6,
	BTC:  8,
	ETH:  8,
	GBP:  2,
}

// Precision returns the display precision for the currency (default 8).
func (c Currency) Precision() int32 {
	if p, ok := currencyPrecision[c]; ok {
		return p
	}
	return 8
}

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney creates a money value.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// MoneyFromString parses an amount string into a money value.
func MoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// Add returns m + other. Panics on currency mismatch: mixing currencies in
// ledger arithmetic is a programming error, not a runtime condition.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// String renders the amount at the currency's precision, e.g. "100.00 USD".
func (m Money) String() string {
	return m.Amount.StringFixed(m.Currency.Precision()) + " " + string(m.Currency)
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
}
