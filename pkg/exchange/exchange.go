package exchange

import (
	"context"

	"gemini/pkg/core"
	"gemini/pkg/order"
)

// Exchange is the REST surface of an exchange client. Streaming feeds are
// exposed by the concrete client since their message sets are exchange specific.
type Exchange interface {
	Name() string

	GetSymbols(ctx context.Context) ([]string, error)
	GetTicker(ctx context.Context, symbol string) (*core.Ticker, error)

	GetBalances(ctx context.Context) ([]core.Balance, error)
	GetMyTrades(ctx context.Context, symbol string, opts ...Option) ([]core.Trade, error)

	NewOrder(ctx context.Context, o *order.Order) (*core.Order, error)
	CancelOrder(ctx context.Context, id core.OrderID) (*core.Order, error)
	CancelAllOrders(ctx context.Context) (*core.CancelAllResult, error)

	Close() error
}
