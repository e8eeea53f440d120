package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
// SideUnknown is the zero value so a missing side fails required validation.
const (
	SideUnknown OrderSide = iota
	// SideBuy indicates an order to purchase an asset.
	SideBuy
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the wire representation of the order side ("buy" or "sell").
func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	if s != SideBuy && s != SideSell {
		return nil, fmt.Errorf("invalid order side %d", int(s))
	}
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts "buy" and "sell" in any case and rejects everything else.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	var str string
	if err := sonic.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("order side: %w", err)
	}
	side, err := ParseOrderSide(str)
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseOrderSide converts "buy" or "sell" to an OrderSide.
func ParseOrderSide(str string) (OrderSide, error) {
	switch strings.ToLower(str) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("invalid order side %q", str)
	}
}

// OrderID is the exchange-assigned order identifier. The exchange sends it
// as a JSON number on some endpoints and as a string on others.
type OrderID uint64

// String returns the decimal form of the identifier.
func (id OrderID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MarshalJSON implements json.Marshaler for OrderID.
func (id OrderID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderID.
func (id *OrderID) UnmarshalJSON(data []byte) error {
	text := string(data)
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("order id %s: %w", data, err)
	}
	*id = OrderID(v)
	return nil
}

// ErrEmptyAmount is returned when an amount has no decimal text.
var ErrEmptyAmount = errors.New("empty amount")

// Amount is an exact decimal value kept as the text the exchange sent.
// It decodes from a JSON string or a bare JSON number and always encodes
// as a JSON string, so no value passes through binary floating point.
type Amount string

// NewAmount formats a decimal as an Amount without exponent notation.
func NewAmount(d *apd.Decimal) Amount {
	return Amount(d.Text('f'))
}

// Decimal parses the amount into an arbitrary-precision decimal.
func (a Amount) Decimal() (*apd.Decimal, error) {
	if a == "" {
		return nil, ErrEmptyAmount
	}
	d, _, err := apd.NewFromString(string(a))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", string(a), err)
	}
	return d, nil
}

// IsZero reports whether the amount is absent or numerically zero.
func (a Amount) IsZero() bool {
	d, err := a.Decimal()
	return err != nil || d.IsZero()
}

func (a Amount) String() string {
	return string(a)
}

// MarshalJSON implements json.Marshaler for Amount.
func (a Amount) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(string(a))
}

// UnmarshalJSON implements json.Unmarshaler for Amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	text := string(data)
	if text == "null" {
		return nil
	}
	if len(text) > 0 && text[0] == '"' {
		if err := sonic.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
	}
	if _, _, err := apd.NewFromString(text); err != nil {
		return fmt.Errorf("amount %q: %w", text, err)
	}
	*a = Amount(text)
	return nil
}

// Ticker is the most recent quote and trade for a symbol.
type Ticker struct {
	Bid    Amount       `json:"bid" validate:"required"`
	Ask    Amount       `json:"ask" validate:"required"`
	Last   Amount       `json:"last" validate:"required"`
	Volume TickerVolume `json:"volume"`
}

// TickerVolume is the trailing 24 hour volume keyed by currency, plus the
// time the window closed.
type TickerVolume struct {
	Timestamp int64
	Amounts   map[string]Amount
}

// UnmarshalJSON implements json.Unmarshaler for TickerVolume.
// The exchange mixes currency amounts and a millisecond timestamp in one object.
func (v *TickerVolume) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ticker volume: %w", err)
	}
	v.Amounts = make(map[string]Amount, len(raw))
	for k, msg := range raw {
		if k == "timestamp" {
			if err := sonic.Unmarshal(msg, &v.Timestamp); err != nil {
				return fmt.Errorf("ticker volume timestamp: %w", err)
			}
			continue
		}
		var a Amount
		if err := a.UnmarshalJSON(msg); err != nil {
			return fmt.Errorf("ticker volume %s: %w", k, err)
		}
		v.Amounts[k] = a
	}
	return nil
}

// Balance is the holding of one currency in one account.
type Balance struct {
	Type                   string `json:"type"`
	Currency               string `json:"currency" validate:"required"`
	Amount                 Amount `json:"amount" validate:"required"`
	Available              Amount `json:"available"`
	AvailableForWithdrawal Amount `json:"availableForWithdrawal"`
}

// Trade is one execution of one of the account's orders.
type Trade struct {
	TradeID       uint64    `json:"tid" validate:"required"`
	OrderID       OrderID   `json:"order_id" validate:"required"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Price         Amount    `json:"price" validate:"required"`
	Amount        Amount    `json:"amount" validate:"required"`
	Side          OrderSide `json:"type" validate:"required"`
	Aggressor     bool      `json:"aggressor"`
	FeeCurrency   string    `json:"fee_currency"`
	FeeAmount     Amount    `json:"fee_amount"`
	Exchange      string    `json:"exchange"`
	IsAuctionFill bool      `json:"is_auction_fill"`
	Timestamp     int64     `json:"timestamp"`
	TimestampMS   int64     `json:"timestampms"`
}

// Order is the exchange's view of an order after a new-order or cancel call.
type Order struct {
	OrderID           OrderID   `json:"order_id" validate:"required"`
	ClientOrderID     string    `json:"client_order_id,omitempty"`
	Symbol            string    `json:"symbol" validate:"required"`
	Exchange          string    `json:"exchange"`
	Side              OrderSide `json:"side" validate:"required"`
	Type              string    `json:"type"`
	Options           []string  `json:"options"`
	Price             Amount    `json:"price"`
	AvgExecutionPrice Amount    `json:"avg_execution_price"`
	OriginalAmount    Amount    `json:"original_amount"`
	ExecutedAmount    Amount    `json:"executed_amount"`
	RemainingAmount   Amount    `json:"remaining_amount"`
	IsLive            bool      `json:"is_live"`
	IsCancelled       bool      `json:"is_cancelled"`
	IsHidden          bool      `json:"is_hidden"`
	WasForced         bool      `json:"was_forced"`
	TimestampMS       int64     `json:"timestampms"`
}

// CancelAllResult reports the outcome of cancelling every open order.
type CancelAllResult struct {
	Result  string `json:"result" validate:"required,eq=ok"`
	Details struct {
		CancelledOrders []OrderID `json:"cancelledOrders"`
		CancelRejects   []OrderID `json:"cancelRejects"`
	} `json:"details"`
}
