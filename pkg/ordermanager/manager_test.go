package ordermanager

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini/pkg/core"
	"gemini/pkg/exchange"
	"gemini/pkg/exchange/gemini"
	"gemini/pkg/order"
)

type mockExchange struct {
	newOrder  func(o *order.Order) (*core.Order, error)
	cancel    func(id core.OrderID) (*core.Order, error)
	cancelAll func() (*core.CancelAllResult, error)
	cancelled []core.OrderID
}

func (m *mockExchange) Name() string { return "mock" }

func (m *mockExchange) GetSymbols(context.Context) ([]string, error) { return nil, nil }

func (m *mockExchange) GetTicker(context.Context, string) (*core.Ticker, error) { return nil, nil }

func (m *mockExchange) GetBalances(context.Context) ([]core.Balance, error) { return nil, nil }

func (m *mockExchange) GetMyTrades(context.Context, string, ...exchange.Option) ([]core.Trade, error) {
	return nil, nil
}

func (m *mockExchange) NewOrder(_ context.Context, o *order.Order) (*core.Order, error) {
	return m.newOrder(o)
}

func (m *mockExchange) CancelOrder(_ context.Context, id core.OrderID) (*core.Order, error) {
	m.cancelled = append(m.cancelled, id)
	return m.cancel(id)
}

func (m *mockExchange) CancelAllOrders(context.Context) (*core.CancelAllResult, error) {
	return m.cancelAll()
}

func (m *mockExchange) Close() error { return nil }

type event struct {
	msg gemini.OrderEventMessage
	err error
}

type fakeEvents []event

func (f fakeEvents) All(context.Context) iter.Seq2[gemini.OrderEventMessage, error] {
	return func(yield func(gemini.OrderEventMessage, error) bool) {
		for _, e := range f {
			if !yield(e.msg, e.err) {
				return
			}
		}
	}
}

func liveOrder(id core.OrderID, clientID string) *core.Order {
	return &core.Order{
		OrderID:         id,
		ClientOrderID:   clientID,
		Symbol:          "btcusd",
		Side:            core.SideBuy,
		Type:            string(order.TypeLimit),
		Price:           "3633.00",
		OriginalAmount:  "1",
		ExecutedAmount:  "0",
		RemainingAmount: "1",
		IsLive:          true,
	}
}

func newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.NewBuilder("btcusd").Buy().Amount("1").Price("3633.00").ClientOrderID("c-1").Build()
	require.NoError(t, err)
	return o
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "PARTIALLY_FILLED", StatusPartiallyFilled.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
	assert.True(t, StatusFilled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusBooked.IsTerminal())
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"same status", StatusNew, StatusNew, true},
		{"NEW -> BOOKED", StatusNew, StatusBooked, true},
		{"NEW -> FILLED", StatusNew, StatusFilled, true},
		{"NEW -> REJECTED", StatusNew, StatusRejected, true},
		{"BOOKED -> PARTIALLY_FILLED", StatusBooked, StatusPartiallyFilled, true},
		{"BOOKED -> REJECTED (invalid)", StatusBooked, StatusRejected, false},
		{"PARTIALLY_FILLED -> FILLED", StatusPartiallyFilled, StatusFilled, true},
		{"PARTIALLY_FILLED -> BOOKED (invalid)", StatusPartiallyFilled, StatusBooked, false},
		{"FILLED -> NEW (invalid)", StatusFilled, StatusNew, false},
		{"CANCELLED -> FILLED (invalid)", StatusCancelled, StatusFilled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidTransition(tt.from, tt.to))
		})
	}
}

func TestOrderFilter_Matches(t *testing.T) {
	o := &Order{Order: core.Order{Symbol: "btcusd", Side: core.SideSell}, Status: StatusPartiallyFilled}

	tests := []struct {
		name   string
		filter OrderFilter
		want   bool
	}{
		{"empty filter matches all", OrderFilter{}, true},
		{"symbol match", OrderFilter{Symbol: "btcusd"}, true},
		{"symbol mismatch", OrderFilter{Symbol: "ethusd"}, false},
		{"side mismatch", OrderFilter{Side: core.SideBuy}, false},
		{"status match", OrderFilter{Status: StatusPartiallyFilled}, true},
		{"status mismatch", OrderFilter{Status: StatusFilled}, false},
		{"open only", OrderFilter{OpenOnly: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(o))
		})
	}

	o.Status = StatusCancelled
	assert.False(t, (&OrderFilter{OpenOnly: true}).Matches(o))
}

func TestManager_PlaceOrder(t *testing.T) {
	ex := &mockExchange{newOrder: func(o *order.Order) (*core.Order, error) {
		assert.Equal(t, "c-1", o.ClientOrderID)
		return liveOrder(100, o.ClientOrderID), nil
	}}
	m := NewManager(ex, ManagerConfig{})

	var updates []Order
	m.OnOrderUpdate(func(o Order) { updates = append(updates, o) })

	placed, err := m.PlaceOrder(context.Background(), newOrder(t))
	require.NoError(t, err)
	assert.Equal(t, core.OrderID(100), placed.OrderID)
	assert.Equal(t, StatusBooked, placed.Status)
	require.Len(t, updates, 1)

	got, ok := m.GetOrderByClientID("c-1")
	require.True(t, ok)
	assert.Equal(t, core.OrderID(100), got.OrderID)

	_, ok = m.GetOrder(999)
	assert.False(t, ok)
	_, ok = m.GetOrderByClientID("")
	assert.False(t, ok)
}

func TestManager_PlaceOrderErrors(t *testing.T) {
	exErr := core.NewExchangeError("error", "InsufficientFunds", "Failed to place buy order")
	ex := &mockExchange{newOrder: func(*order.Order) (*core.Order, error) { return nil, exErr }}
	m := NewManager(ex, ManagerConfig{})

	_, err := m.PlaceOrder(context.Background(), nil)
	assert.Error(t, err)

	_, err = m.PlaceOrder(context.Background(), newOrder(t))
	assert.ErrorIs(t, err, exErr)
	assert.Empty(t, m.GetOrders(OrderFilter{}))
}

func TestManager_MaxOpenOrders(t *testing.T) {
	next := core.OrderID(1)
	ex := &mockExchange{newOrder: func(*order.Order) (*core.Order, error) {
		o := liveOrder(next, "")
		next++
		return o, nil
	}}
	m := NewManager(ex, ManagerConfig{MaxOpenOrders: 2})

	for i := 0; i < 2; i++ {
		_, err := m.PlaceOrder(context.Background(), newOrder(t))
		require.NoError(t, err)
	}
	_, err := m.PlaceOrder(context.Background(), newOrder(t))
	assert.ErrorIs(t, err, ErrTooManyOrders)
}

func TestManager_MaxOpenOrdersConcurrent(t *testing.T) {
	var next atomic.Int64
	release := make(chan struct{})
	ex := &mockExchange{newOrder: func(*order.Order) (*core.Order, error) {
		<-release
		return liveOrder(core.OrderID(next.Add(1)), ""), nil
	}}
	m := NewManager(ex, ManagerConfig{MaxOpenOrders: 2})

	o := newOrder(t)
	results := make(chan error, 5)
	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			_, err := m.PlaceOrder(context.Background(), o)
			results <- err
		})
	}

	// Two placements hold the slots while blocked; the rest fail fast.
	for range 3 {
		assert.ErrorIs(t, <-results, ErrTooManyOrders)
	}
	close(release)
	wg.Wait()
	close(results)
	for err := range results {
		assert.NoError(t, err)
	}
	assert.Len(t, m.GetOpenOrders(), 2)
}

func TestManager_PlaceOrderAfterFeedFill(t *testing.T) {
	var m *Manager
	ex := &mockExchange{newOrder: func(o *order.Order) (*core.Order, error) {
		m.Apply(gemini.OrderBatch{{
			Type: gemini.EventClosed, OrderID: 7, Symbol: "btcusd", Side: core.SideBuy,
			ExecutedAmount: "1", RemainingAmount: "0",
		}})
		return liveOrder(7, o.ClientOrderID), nil
	}}
	m = NewManager(ex, ManagerConfig{})

	var updates []Order
	m.OnOrderUpdate(func(o Order) { updates = append(updates, o) })

	placed, err := m.PlaceOrder(context.Background(), newOrder(t))
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, placed.Status)

	got, ok := m.GetOrder(7)
	require.True(t, ok)
	assert.Equal(t, StatusFilled, got.Status)
	assert.Empty(t, m.GetOpenOrders())
	require.Len(t, updates, 1)
	assert.Equal(t, StatusFilled, updates[0].Status)
}

func TestManager_ApplyLifecycle(t *testing.T) {
	ex := &mockExchange{newOrder: func(o *order.Order) (*core.Order, error) { return liveOrder(7, "c-1"), nil }}
	m := NewManager(ex, ManagerConfig{})
	_, err := m.PlaceOrder(context.Background(), newOrder(t))
	require.NoError(t, err)

	m.Apply(gemini.OrderBatch{{
		Type: gemini.EventFill, OrderID: 7, Symbol: "btcusd", Side: core.SideBuy, IsLive: true,
		ExecutedAmount: "0.4", RemainingAmount: "0.6", AvgExecutionPrice: "3633.00",
	}})
	got, _ := m.GetOrder(7)
	assert.Equal(t, StatusPartiallyFilled, got.Status)
	assert.Equal(t, core.Amount("0.6"), got.RemainingAmount)

	m.Apply(gemini.OrderBatch{
		{Type: gemini.EventFill, OrderID: 7, Symbol: "btcusd", Side: core.SideBuy, ExecutedAmount: "1", RemainingAmount: "0"},
		{Type: gemini.EventClosed, OrderID: 7, Symbol: "btcusd", Side: core.SideBuy, ExecutedAmount: "1", RemainingAmount: "0"},
	})
	got, _ = m.GetOrder(7)
	assert.Equal(t, StatusFilled, got.Status)
	assert.False(t, got.IsLive)
	assert.Empty(t, m.GetOpenOrders())

	m.Apply(gemini.OrderBatch{{Type: gemini.EventBooked, OrderID: 7, Symbol: "btcusd", Side: core.SideBuy, IsLive: true}})
	got, _ = m.GetOrder(7)
	assert.Equal(t, StatusFilled, got.Status)
	assert.False(t, got.IsLive)
}

func TestManager_ApplyUntrackedOrder(t *testing.T) {
	m := NewManager(&mockExchange{}, ManagerConfig{})

	m.Apply(&gemini.Heartbeat{})
	m.Apply(&gemini.SubscriptionAck{})
	assert.Empty(t, m.GetOrders(OrderFilter{}))

	m.Apply(gemini.OrderBatch{
		{Type: gemini.EventAccepted, OrderID: 55, ClientOrderID: "ui-1", Symbol: "ethusd", Side: core.SideSell, OrderType: "exchange limit", Price: "200", OriginalAmount: "3"},
		{Type: gemini.EventBooked, OrderID: 55, Symbol: "ethusd", Side: core.SideSell, IsLive: true, RemainingAmount: "3"},
		{Type: gemini.EventCancelRejected, OrderID: 55, Symbol: "ethusd", Side: core.SideSell, Reason: "OrderNotFound"},
	})

	got, ok := m.GetOrderByClientID("ui-1")
	require.True(t, ok)
	assert.Equal(t, StatusBooked, got.Status)
	assert.Equal(t, core.Amount("200"), got.Price)
	assert.Equal(t, "exchange limit", got.Type)

	m.Apply(gemini.OrderBatch{{Type: gemini.EventCancelled, OrderID: 55, Symbol: "ethusd", Side: core.SideSell, IsCancelled: true}})
	got, _ = m.GetOrder(55)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestManager_CancelOrder(t *testing.T) {
	ex := &mockExchange{
		newOrder: func(*order.Order) (*core.Order, error) { return liveOrder(9, ""), nil },
		cancel: func(id core.OrderID) (*core.Order, error) {
			o := liveOrder(id, "")
			o.IsLive = false
			o.IsCancelled = true
			return o, nil
		},
	}
	m := NewManager(ex, ManagerConfig{})

	assert.Error(t, m.CancelOrder(context.Background(), 9))

	_, err := m.PlaceOrder(context.Background(), newOrder(t))
	require.NoError(t, err)
	require.NoError(t, m.CancelOrder(context.Background(), 9))

	got, _ := m.GetOrder(9)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, []core.OrderID{9}, ex.cancelled)

	assert.Error(t, m.CancelOrder(context.Background(), 9))
	assert.Len(t, ex.cancelled, 1)
}

func TestManager_CancelAllOrders(t *testing.T) {
	next := core.OrderID(1)
	ex := &mockExchange{
		newOrder: func(*order.Order) (*core.Order, error) {
			o := liveOrder(next, "")
			next++
			return o, nil
		},
		cancelAll: func() (*core.CancelAllResult, error) {
			r := &core.CancelAllResult{Result: "ok"}
			r.Details.CancelledOrders = []core.OrderID{1, 2, 404}
			return r, nil
		},
	}
	m := NewManager(ex, ManagerConfig{})
	for i := 0; i < 3; i++ {
		_, err := m.PlaceOrder(context.Background(), newOrder(t))
		require.NoError(t, err)
	}

	result, err := m.CancelAllOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Details.CancelledOrders, 3)

	open := m.GetOpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, core.OrderID(3), open[0].OrderID)
	assert.Len(t, m.GetOrders(OrderFilter{Status: StatusCancelled}), 2)
}

func TestManager_Run(t *testing.T) {
	m := NewManager(&mockExchange{}, ManagerConfig{})

	events := fakeEvents{
		{msg: &gemini.SubscriptionAck{}},
		{err: &core.ClassificationError{Err: errors.New("bad frame"), Raw: "{}"}},
		{msg: gemini.OrderBatch{{Type: gemini.EventAccepted, OrderID: 1, Symbol: "btcusd", Side: core.SideBuy}}},
	}
	require.NoError(t, m.Run(context.Background(), events))
	_, ok := m.GetOrder(1)
	assert.True(t, ok)

	transportErr := &core.TransportError{Op: "read orderevents", Err: io.ErrUnexpectedEOF}
	err := m.Run(context.Background(), fakeEvents{{err: transportErr}})
	assert.ErrorIs(t, err, transportErr)
}
