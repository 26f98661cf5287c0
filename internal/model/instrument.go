package model

import "github.com/shopspring/decimal"

// Instrument is the static definition of a tradable contract. Definitions are
// provided by an external reference-data source; the core only reads them.
type Instrument struct {
	ID              InstrumentID    `json:"id"`
	BaseCurrency    Currency        `json:"base_currency"`
	QuoteCurrency   Currency        `json:"quote_currency"`
	SettlementCcy   Currency        `json:"settlement_currency"`
	PricePrecision  int32           `json:"price_precision"`
	SizePrecision   int32           `json:"size_precision"`
	PriceIncrement  decimal.Decimal `json:"price_increment"`
	LotSize         decimal.Decimal `json:"lot_size"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	MakerFee        decimal.Decimal `json:"maker_fee"`
	TakerFee        decimal.Decimal `json:"taker_fee"`
	MarginInit      decimal.Decimal `json:"margin_init"`
	MarginMaint     decimal.Decimal `json:"margin_maint"`
	IsInverse       bool            `json:"is_inverse"`
	IsBettingMarket bool            `json:"is_betting_market"`
}

// Notional returns the notional value of qty at px in the quote currency,
// or in the base currency for inverse contracts.
func (i Instrument) Notional(qty, px decimal.Decimal, useQuoteForInverse bool) Money {
	if i.IsInverse && !useQuoteForInverse {
		// Inverse contracts settle in base: notional = qty * multiplier / px.
		if px.IsZero() {
			return ZeroMoney(i.BaseCurrency)
		}
		return NewMoney(qty.Mul(i.Multiplier).Div(px), i.BaseCurrency)
	}
	return NewMoney(qty.Mul(i.Multiplier).Mul(px), i.QuoteCurrency)
}

// CostCurrency returns the currency a fill settles in for the given side.
// For spot: BUY settles in quote, SELL delivers base.
func (i Instrument) CostCurrency(side OrderSide) Currency {
	if i.IsInverse {
		return i.BaseCurrency
	}
	if side == SideBuy {
		return i.QuoteCurrency
	}
	return i.BaseCurrency
}
