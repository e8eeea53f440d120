package order

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"

	"gemini/pkg/core"
)

// Type is the exchange's order type. Only limit variants are accepted.
type Type string

const (
	TypeLimit     Type = "exchange limit"
	TypeStopLimit Type = "exchange stop limit"
)

// ExecutionOption restricts how a limit order may execute.
type ExecutionOption string

const (
	MakerOrCancel        ExecutionOption = "maker-or-cancel"
	ImmediateOrCancel    ExecutionOption = "immediate-or-cancel"
	FillOrKill           ExecutionOption = "fill-or-kill"
	AuctionOnly          ExecutionOption = "auction-only"
	IndicationOfInterest ExecutionOption = "indication-of-interest"
)

// Order is the body of a new-order request. Amounts are exact decimal text.
type Order struct {
	ClientOrderID string            `json:"client_order_id,omitempty" validate:"omitempty,max=100"`
	Symbol        string            `json:"symbol" validate:"required"`
	Amount        core.Amount       `json:"amount" validate:"required"`
	Price         core.Amount       `json:"price" validate:"required"`
	StopPrice     core.Amount       `json:"stop_price,omitempty"`
	Side          core.OrderSide    `json:"side" validate:"required"`
	Type          Type              `json:"type" validate:"required,oneof='exchange limit' 'exchange stop limit'"`
	Options       []ExecutionOption `json:"options,omitempty" validate:"max=1,dive,oneof=maker-or-cancel immediate-or-cancel fill-or-kill auction-only indication-of-interest"`
}

var validate = validator.New()

// Builder provides a fluent interface for constructing orders.
// It accumulates the first error and reports it on Build.
//
// Example:
//
//	o, err := order.NewBuilder("btcusd").
//	    Buy().
//	    Price("3633.00").
//	    Amount("0.01").
//	    MakerOrCancel().
//	    Build()
type Builder struct {
	order *Order
	err   error
}

// NewBuilder creates a limit order builder for the given symbol.
func NewBuilder(symbol string) *Builder {
	return &Builder{
		order: &Order{
			Symbol: symbol,
			Type:   TypeLimit,
		},
	}
}

// Side sets the order side (buy or sell).
func (b *Builder) Side(side core.OrderSide) *Builder {
	if b.err != nil {
		return b
	}
	b.order.Side = side
	return b
}

func (b *Builder) Buy() *Builder {
	return b.Side(core.SideBuy)
}

func (b *Builder) Sell() *Builder {
	return b.Side(core.SideSell)
}

// Price sets the limit price from its decimal text.
func (b *Builder) Price(price string) *Builder {
	return b.amount(&b.order.Price, "price", price)
}

// PriceDecimal sets the limit price from an apd.Decimal value.
func (b *Builder) PriceDecimal(price *apd.Decimal) *Builder {
	return b.decimal(&b.order.Price, price)
}

// Amount sets the order quantity from its decimal text.
func (b *Builder) Amount(qty string) *Builder {
	return b.amount(&b.order.Amount, "amount", qty)
}

// AmountDecimal sets the order quantity from an apd.Decimal value.
func (b *Builder) AmountDecimal(qty *apd.Decimal) *Builder {
	return b.decimal(&b.order.Amount, qty)
}

// StopPrice turns the order into a stop-limit order triggered at price.
func (b *Builder) StopPrice(price string) *Builder {
	b.amount(&b.order.StopPrice, "stop price", price)
	if b.err == nil {
		b.order.Type = TypeStopLimit
	}
	return b
}

// Option sets the single execution option of the order.
func (b *Builder) Option(opt ExecutionOption) *Builder {
	if b.err != nil {
		return b
	}
	b.order.Options = []ExecutionOption{opt}
	return b
}

func (b *Builder) MakerOrCancel() *Builder {
	return b.Option(MakerOrCancel)
}

func (b *Builder) ImmediateOrCancel() *Builder {
	return b.Option(ImmediateOrCancel)
}

func (b *Builder) FillOrKill() *Builder {
	return b.Option(FillOrKill)
}

func (b *Builder) AuctionOnly() *Builder {
	return b.Option(AuctionOnly)
}

func (b *Builder) IndicationOfInterest() *Builder {
	return b.Option(IndicationOfInterest)
}

// ClientOrderID sets a client-assigned identifier for order tracking.
func (b *Builder) ClientOrderID(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.order.ClientOrderID = id
	return b
}

// Build validates and returns the constructed order.
func (b *Builder) Build() (*Order, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := Validate(b.order); err != nil {
		return nil, err
	}
	return b.order, nil
}

func (b *Builder) amount(dst *core.Amount, field, text string) *Builder {
	if b.err != nil {
		return b
	}
	d, _, err := apd.NewFromString(text)
	if err != nil {
		b.err = fmt.Errorf("parse %s: %w", field, err)
		return b
	}
	*dst = core.NewAmount(d)
	return b
}

func (b *Builder) decimal(dst *core.Amount, d *apd.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	if d == nil {
		b.err = errors.New("nil decimal")
		return b
	}
	*dst = core.NewAmount(d)
	return b
}

// Validate checks the order against the exchange's new-order rules.
func Validate(o *Order) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}
	if err := positive("amount", o.Amount); err != nil {
		return err
	}
	if err := positive("price", o.Price); err != nil {
		return err
	}
	if o.Type == TypeStopLimit {
		if err := positive("stop price", o.StopPrice); err != nil {
			return err
		}
		if len(o.Options) > 0 {
			return errors.New("stop-limit orders take no execution options")
		}
	}
	if o.Type == TypeLimit && o.StopPrice != "" {
		return errors.New("stop price requires a stop-limit order")
	}
	return nil
}

func positive(field string, a core.Amount) error {
	d, err := a.Decimal()
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d.IsZero() || d.Negative {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}
