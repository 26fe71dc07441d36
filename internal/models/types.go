package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderKind string
type OrderState string
type TimeInForce string
type RejectReason string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderKindMarket    OrderKind = "MARKET"
	OrderKindLimit     OrderKind = "LIMIT"
	OrderKindStop      OrderKind = "STOP"
	OrderKindStopLimit OrderKind = "STOP_LIMIT"

	OrderStateNew             OrderState = "NEW"
	OrderStateWorking         OrderState = "WORKING"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCancelled       OrderState = "CANCELLED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateExpired         OrderState = "EXPIRED"

	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTD TimeInForce = "GTD"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"

	RejectQtyNotPositive   RejectReason = "QTY_NOT_POSITIVE"
	RejectBadLimitPrice    RejectReason = "BAD_LIMIT_PRICE"
	RejectBadStopPrice     RejectReason = "BAD_STOP_PRICE"
	RejectBadTimeInForce   RejectReason = "BAD_TIME_IN_FORCE"
	RejectExpiryInThePast  RejectReason = "EXPIRY_IN_THE_PAST"
	RejectUnknownOrderKind RejectReason = "UNKNOWN_ORDER_KIND"
)

// IsTerminal reports whether the state admits no further transitions.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired:
		return true
	}
	return false
}

type Order struct {
	ID           uint64      `json:"id"`
	ClientID     string      `json:"client_id"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	Kind         OrderKind   `json:"kind"`
	Qty          float64     `json:"qty"`
	LimitPrice   float64     `json:"limit_price,omitempty"`
	StopPrice    float64     `json:"stop_price,omitempty"`
	TimeInForce  TimeInForce `json:"time_in_force"`
	ExpireAt     time.Time   `json:"expire_at,omitempty"`
	State        OrderState  `json:"state"`
	FilledQty    float64     `json:"filled_qty"`
	AvgFillPrice float64     `json:"avg_fill_price"`
	Triggered    bool        `json:"triggered,omitempty"`
	Sequence     uint64      `json:"sequence"`
	CreateTime   time.Time   `json:"create_time"`
	UpdateTime   time.Time   `json:"update_time"`
}

func (o Order) Remaining() float64 {
	return o.Qty - o.FilledQty
}

func (o Order) IsActive() bool {
	return !o.State.IsTerminal()
}

type Fill struct {
	OrderID    uint64    `json:"order_id"`
	ClientID   string    `json:"client_id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Price      float64   `json:"price"`
	Qty        float64   `json:"qty"`
	Commission float64   `json:"commission"`
	IsMaker    bool      `json:"is_maker"`
	Timestamp  time.Time `json:"timestamp"`
	Sequence   uint64    `json:"sequence"`
}

// OrderRequest is what strategies hand to the facade. Prices are left zero
// where the kind does not use them.
type OrderRequest struct {
	ClientID    string      `json:"client_id,omitempty"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Kind        OrderKind   `json:"kind"`
	Qty         float64     `json:"qty"`
	LimitPrice  float64     `json:"limit_price,omitempty"`
	StopPrice   float64     `json:"stop_price,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
	ExpireAt    time.Time   `json:"expire_at,omitempty"`
}

func MarketBuy(symbol string, qty float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideBuy, Kind: OrderKindMarket, Qty: qty}
}

func MarketSell(symbol string, qty float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideSell, Kind: OrderKindMarket, Qty: qty}
}

func LimitBuy(symbol string, qty, limit float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideBuy, Kind: OrderKindLimit, Qty: qty, LimitPrice: limit}
}

func LimitSell(symbol string, qty, limit float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideSell, Kind: OrderKindLimit, Qty: qty, LimitPrice: limit}
}

func StopBuy(symbol string, qty, stop float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideBuy, Kind: OrderKindStop, Qty: qty, StopPrice: stop}
}

func StopSell(symbol string, qty, stop float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideSell, Kind: OrderKindStop, Qty: qty, StopPrice: stop}
}

func StopLimitBuy(symbol string, qty, stop, limit float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideBuy, Kind: OrderKindStopLimit, Qty: qty, StopPrice: stop, LimitPrice: limit}
}

func StopLimitSell(symbol string, qty, stop, limit float64) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: OrderSideSell, Kind: OrderKindStopLimit, Qty: qty, StopPrice: stop, LimitPrice: limit}
}

// Position is a net position snapshot. Qty is signed: positive long,
// negative short. Money fields are decimal so a closed round trip nets to
// the exact fill arithmetic with no float drift.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenTime      time.Time       `json:"open_time,omitempty"`
	UpdateTime    time.Time       `json:"update_time,omitempty"`
}

func (p Position) IsFlat() bool {
	return p.Qty.IsZero()
}

// UnrealizedPnL marks the open quantity against the given price.
func (p Position) UnrealizedPnL(price float64) decimal.Decimal {
	if p.Qty.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(price).Sub(p.AvgEntryPrice).Mul(p.Qty)
}
