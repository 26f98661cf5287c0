package model

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideNone OrderSide = "NO_SIDE"
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the other trading side.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}

// OrderType is the execution instruction carried by an order.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopMarket      OrderType = "STOP_MARKET"
	OrderTypeStopLimit       OrderType = "STOP_LIMIT"
	OrderTypeMarketIfTouched OrderType = "MARKET_IF_TOUCHED"
	OrderTypeLimitIfTouched  OrderType = "LIMIT_IF_TOUCHED"
)

// HasTrigger reports whether the order type carries a trigger price.
func (t OrderType) HasTrigger() bool {
	switch t {
	case OrderTypeStopMarket, OrderTypeStopLimit, OrderTypeMarketIfTouched, OrderTypeLimitIfTouched:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusInitialized     OrderStatus = "INITIALIZED"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusTriggered       OrderStatus = "TRIGGERED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
)

// IsWorking reports whether the order is live at the venue.
func (s OrderStatus) IsWorking() bool {
	switch s {
	case OrderStatusSubmitted, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// IsCompleted reports whether the order has reached a terminal state.
func (s OrderStatus) IsCompleted() bool {
	switch s {
	case OrderStatusRejected, OrderStatusCanceled, OrderStatusExpired, OrderStatusFilled:
		return true
	}
	return false
}

// TimeInForce controls how long a working order rests.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceDay TimeInForce = "DAY"
)

// LiquiditySide is whether a fill posted or crossed.
type LiquiditySide string

const (
	LiquidityNone  LiquiditySide = "NO_LIQUIDITY_SIDE"
	LiquidityMaker LiquiditySide = "MAKER"
	LiquidityTaker LiquiditySide = "TAKER"
)

// OmsType is the order management scheme of a venue or strategy.
type OmsType string

const (
	OmsUnspecified OmsType = "UNSPECIFIED"
	OmsNetting     OmsType = "NETTING"
	OmsHedging     OmsType = "HEDGING"
)

// AccountType selects the ledger arithmetic for an account.
type AccountType string

const (
	AccountCash    AccountType = "CASH"
	AccountMargin  AccountType = "MARGIN"
	AccountBetting AccountType = "BETTING"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionFlat  PositionSide = "FLAT"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)
