package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"gemini/pkg/core"
)

// MarketDataMessage is one classified frame of the market data feed:
// *Level2Update, *TradeEvent or *Heartbeat.
type MarketDataMessage interface {
	marketData()
}

// OrderEventMessage is one classified frame of the order events feed:
// *SubscriptionAck, *Heartbeat or OrderBatch.
type OrderEventMessage interface {
	orderEvent()
}

// Level2Change is one price level update, sent as ["buy","9122.04","0.00121425"].
type Level2Change struct {
	Side     core.OrderSide
	Price    core.Amount
	Quantity core.Amount
}

// UnmarshalJSON implements json.Unmarshaler for the three-element array form.
func (c *Level2Change) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := sonic.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("level2 change: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("level2 change: want 3 elements, got %d", len(parts))
	}
	if err := c.Side.UnmarshalJSON(parts[0]); err != nil {
		return fmt.Errorf("level2 change: %w", err)
	}
	if err := c.Price.UnmarshalJSON(parts[1]); err != nil {
		return fmt.Errorf("level2 change: %w", err)
	}
	if err := c.Quantity.UnmarshalJSON(parts[2]); err != nil {
		return fmt.Errorf("level2 change: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler, producing the array form.
func (c Level2Change) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([]any{c.Side, c.Price, c.Quantity})
}

// Level2Update is a batch of order book changes for one symbol, with the
// trades and auction events that produced them.
type Level2Update struct {
	Symbol        string         `json:"symbol" validate:"required"`
	Changes       []Level2Change `json:"changes"`
	Trades        []TradeEvent   `json:"trades,omitempty" validate:"dive"`
	AuctionEvents []AuctionEvent `json:"auction_events,omitempty"`
}

// TradeEvent is a single public trade.
type TradeEvent struct {
	Symbol    string         `json:"symbol" validate:"required"`
	EventID   uint64         `json:"event_id"`
	Timestamp int64          `json:"timestamp"`
	Price     core.Amount    `json:"price" validate:"required"`
	Quantity  core.Amount    `json:"quantity" validate:"required"`
	Side      core.OrderSide `json:"side" validate:"required"`
}

// AuctionEvent is an indicative or final auction result.
type AuctionEvent struct {
	Type            string      `json:"type"`
	Symbol          string      `json:"symbol"`
	TimeMS          int64       `json:"time_ms"`
	Result          string      `json:"result"`
	HighestBidPrice core.Amount `json:"highest_bid_price,omitempty"`
	LowestAskPrice  core.Amount `json:"lowest_ask_price,omitempty"`
	CollarPrice     core.Amount `json:"collar_price,omitempty"`
	AuctionPrice    core.Amount `json:"auction_price,omitempty"`
	AuctionQuantity core.Amount `json:"auction_quantity,omitempty"`
}

// Heartbeat keeps a feed alive. Market data stamps it with timestamp, order
// events with timestampms and a sequence.
type Heartbeat struct {
	Timestamp      int64  `json:"timestamp,omitempty"`
	TimestampMS    int64  `json:"timestampms,omitempty"`
	Sequence       int64  `json:"sequence,omitempty"`
	SocketSequence int64  `json:"socket_sequence,omitempty"`
	TraceID        string `json:"trace_id,omitempty"`
}

// SubscriptionAck confirms an order events subscription and echoes its filters.
type SubscriptionAck struct {
	AccountID        int64    `json:"accountId"`
	SubscriptionID   string   `json:"subscriptionId"`
	SymbolFilter     []string `json:"symbolFilter"`
	APISessionFilter []string `json:"apiSessionFilter"`
	EventTypeFilter  []string `json:"eventTypeFilter"`
}

// OrderEventType is the lifecycle event an order status reports.
type OrderEventType int

const (
	EventUnknown OrderEventType = iota
	EventInitial
	EventAccepted
	EventRejected
	EventBooked
	EventFill
	EventCancelled
	EventCancelRejected
	EventClosed
)

var orderEventNames = [...]string{
	"unknown",
	"initial",
	"accepted",
	"rejected",
	"booked",
	"fill",
	"cancelled",
	"cancel_rejected",
	"closed",
}

func (t OrderEventType) String() string {
	if t < 0 || int(t) >= len(orderEventNames) {
		return "unknown"
	}
	return orderEventNames[t]
}

// MarshalJSON implements json.Marshaler for OrderEventType.
func (t OrderEventType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderEventType.
func (t *OrderEventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("order event type: %w", err)
	}
	for i, name := range orderEventNames {
		if i > 0 && name == s {
			*t = OrderEventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown order event type %q", s)
}

// Liquidity tells whether a fill added or removed liquidity.
type Liquidity string

const (
	LiquidityMaker   Liquidity = "Maker"
	LiquidityTaker   Liquidity = "Taker"
	LiquidityAuction Liquidity = "Auction"
)

// Fill is the execution embedded in a fill event.
type Fill struct {
	TradeID     string      `json:"trade_id" validate:"required"`
	Liquidity   Liquidity   `json:"liquidity"`
	Price       core.Amount `json:"price" validate:"required"`
	Amount      core.Amount `json:"amount" validate:"required"`
	Fee         core.Amount `json:"fee"`
	FeeCurrency string      `json:"fee_currency"`
}

// defaultAmount fills execution fields the exchange leaves out of early events.
const defaultAmount core.Amount = "0.00"

// OrderStatus is one order lifecycle event from the order events feed.
type OrderStatus struct {
	Type              OrderEventType `json:"type" validate:"required"`
	OrderID           core.OrderID   `json:"order_id" validate:"required"`
	EventID           string         `json:"event_id,omitempty"`
	ClientOrderID     string         `json:"client_order_id,omitempty"`
	APISession        string         `json:"api_session,omitempty"`
	Symbol            string         `json:"symbol" validate:"required"`
	Side              core.OrderSide `json:"side" validate:"required"`
	Behavior          string         `json:"behavior,omitempty"`
	OrderType         string         `json:"order_type"`
	TimestampMS       int64          `json:"timestampms"`
	IsLive            bool           `json:"is_live"`
	IsCancelled       bool           `json:"is_cancelled"`
	IsHidden          bool           `json:"is_hidden"`
	AvgExecutionPrice core.Amount    `json:"avg_execution_price"`
	ExecutedAmount    core.Amount    `json:"executed_amount"`
	RemainingAmount   core.Amount    `json:"remaining_amount"`
	OriginalAmount    core.Amount    `json:"original_amount,omitempty"`
	Price             core.Amount    `json:"price,omitempty"`
	TotalSpend        core.Amount    `json:"total_spend,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	SocketSequence    int64          `json:"socket_sequence"`
	Fill              *Fill          `json:"fill,omitempty" validate:"omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler, defaulting absent execution amounts to "0.00".
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	type plain OrderStatus
	p := plain{
		AvgExecutionPrice: defaultAmount,
		ExecutedAmount:    defaultAmount,
		RemainingAmount:   defaultAmount,
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = OrderStatus(p)
	return nil
}

// OrderBatch is the array of order events delivered in one frame, in exchange order.
type OrderBatch []OrderStatus

func (*Level2Update) marketData() {}
func (*TradeEvent) marketData()   {}
func (*Heartbeat) marketData()    {}

func (*SubscriptionAck) orderEvent() {}
func (*Heartbeat) orderEvent()       {}
func (OrderBatch) orderEvent()       {}
