package ordermanager

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gemini/pkg/core"
	"gemini/pkg/exchange"
	"gemini/pkg/exchange/gemini"
	"gemini/pkg/order"
)

// Status is the lifecycle position of a tracked order.
type Status int

const (
	StatusUnknown Status = iota
	StatusNew
	StatusBooked
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

var statusNames = [...]string{"UNKNOWN", "NEW", "BOOKED", "PARTIALLY_FILLED", "FILLED", "CANCELLED", "REJECTED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[0]
	}
	return statusNames[s]
}

// IsTerminal reports whether no further event can change the order.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is an order as last reported by the exchange.
type Order struct {
	core.Order
	Status    Status
	UpdatedAt time.Time
}

type OrderCallback func(Order)

type ManagerConfig struct {
	MaxOpenOrders int `json:"max_open_orders"`
}

// ErrTooManyOrders is returned by PlaceOrder when MaxOpenOrders are already open.
var ErrTooManyOrders = errors.New("open order limit reached")

// EventSource is an order events stream, such as *gemini.Stream[gemini.OrderEventMessage].
type EventSource interface {
	All(ctx context.Context) iter.Seq2[gemini.OrderEventMessage, error]
}

// Manager tracks the orders of one account from REST answers and the
// order events feed.
type Manager struct {
	exchange       exchange.Exchange
	config         ManagerConfig
	logger         zerolog.Logger
	mu             sync.RWMutex
	orders         map[core.OrderID]*Order
	clientOrderIDs map[string]core.OrderID
	pending        int
	callbacks      []OrderCallback
	callbacksMu    sync.RWMutex
	now            func() time.Time
}

func NewManager(ex exchange.Exchange, config ManagerConfig) *Manager {
	if config.MaxOpenOrders <= 0 {
		config.MaxOpenOrders = 500
	}

	return &Manager{
		exchange:       ex,
		config:         config,
		logger:         zerolog.Nop(),
		orders:         make(map[core.OrderID]*Order),
		clientOrderIDs: make(map[string]core.OrderID),
		now:            time.Now,
	}
}

func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// PlaceOrder submits o and tracks the order the exchange returns. When the
// order events feed has already moved the order past the reply's status, the
// tracked order is returned unchanged.
func (m *Manager) PlaceOrder(ctx context.Context, o *order.Order) (Order, error) {
	if o == nil {
		return Order{}, fmt.Errorf("order is required")
	}
	if err := m.reserve(); err != nil {
		return Order{}, err
	}
	defer m.release()

	placed, err := m.exchange.NewOrder(ctx, o)
	if err != nil {
		return Order{}, fmt.Errorf("place order: %w", err)
	}

	tracked, changed := m.upsert(placed.OrderID, statusFromOrder(placed), func(t *Order) { t.Order = *placed })
	if changed {
		m.notifyCallbacks(tracked)
	}
	return tracked, nil
}

// reserve claims an open order slot for an in-flight placement.
func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := m.pending
	for _, tracked := range m.orders {
		if !tracked.Status.IsTerminal() {
			open++
		}
	}
	if open >= m.config.MaxOpenOrders {
		return ErrTooManyOrders
	}
	m.pending++
	return nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
}

// CancelOrder cancels a tracked, non-terminal order.
func (m *Manager) CancelOrder(ctx context.Context, id core.OrderID) error {
	tracked, ok := m.GetOrder(id)
	if !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	if tracked.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel order in terminal state: %s", tracked.Status)
	}

	cancelled, err := m.exchange.CancelOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	if updated, ok := m.transition(id, statusFromOrder(cancelled), func(o *Order) { o.Order = *cancelled }); ok {
		m.notifyCallbacks(updated)
	}
	return nil
}

// CancelAllOrders cancels every open order of the account and marks the
// tracked ones the exchange reports as cancelled.
func (m *Manager) CancelAllOrders(ctx context.Context) (*core.CancelAllResult, error) {
	result, err := m.exchange.CancelAllOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancel all orders: %w", err)
	}

	for _, id := range result.Details.CancelledOrders {
		updated, ok := m.transition(id, StatusCancelled, func(o *Order) {
			o.IsLive = false
			o.IsCancelled = true
		})
		if ok {
			m.notifyCallbacks(updated)
		}
	}
	for _, id := range result.Details.CancelRejects {
		m.logger.Warn().Stringer("order_id", id).Msg("cancel rejected")
	}
	return result, nil
}

// Apply folds one order events message into the tracked orders. Orders first
// seen on the feed, such as those placed from another session, are tracked too.
func (m *Manager) Apply(msg gemini.OrderEventMessage) {
	batch, ok := msg.(gemini.OrderBatch)
	if !ok {
		return
	}
	for i := range batch {
		m.applyEvent(&batch[i])
	}
}

// Run applies every message of events until the stream ends. Frames that
// cannot be classified are logged and skipped. A normal close returns nil.
func (m *Manager) Run(ctx context.Context, events EventSource) error {
	for msg, err := range events.All(ctx) {
		if err != nil {
			if core.IsClassificationError(err) {
				m.logger.Warn().Err(err).Msg("skipping unclassified order event")
				continue
			}
			return err
		}
		m.Apply(msg)
	}
	return nil
}

func (m *Manager) applyEvent(ev *gemini.OrderStatus) {
	if ev.Type == gemini.EventCancelRejected {
		m.logger.Warn().
			Stringer("order_id", ev.OrderID).
			Str("reason", ev.Reason).
			Msg("cancel rejected")
		return
	}

	next := statusFromEvent(ev)
	merge := func(o *Order) {
		o.OrderID = ev.OrderID
		o.Symbol = ev.Symbol
		o.Side = ev.Side
		o.IsLive = ev.IsLive
		o.IsCancelled = ev.IsCancelled
		o.IsHidden = ev.IsHidden
		o.ExecutedAmount = ev.ExecutedAmount
		o.RemainingAmount = ev.RemainingAmount
		o.AvgExecutionPrice = ev.AvgExecutionPrice
		if ev.ClientOrderID != "" {
			o.ClientOrderID = ev.ClientOrderID
		}
		if ev.OrderType != "" {
			o.Type = ev.OrderType
		}
		if ev.Price != "" {
			o.Price = ev.Price
		}
		if ev.OriginalAmount != "" {
			o.OriginalAmount = ev.OriginalAmount
		}
		if ev.TimestampMS != 0 {
			o.TimestampMS = ev.TimestampMS
		}
	}

	if updated, ok := m.upsert(ev.OrderID, next, merge); ok {
		m.notifyCallbacks(updated)
	}
}

// upsert tracks id at status. An unknown order is added as is; a known one
// goes through transition.
func (m *Manager) upsert(id core.OrderID, status Status, update func(*Order)) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		m.orders[id] = &Order{Status: status}
	}
	return m.transitionLocked(id, status, update)
}

// transition moves a tracked order to status, applying update first. It
// reports false when the order is unknown or the move is not allowed.
func (m *Manager) transition(id core.OrderID, status Status, update func(*Order)) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return Order{}, false
	}
	return m.transitionLocked(id, status, update)
}

// transitionLocked returns the current order and false when the move is
// not allowed. m.mu must be held.
func (m *Manager) transitionLocked(id core.OrderID, status Status, update func(*Order)) (Order, bool) {
	tracked := m.orders[id]
	if !isValidTransition(tracked.Status, status) {
		m.logger.Debug().
			Stringer("order_id", id).
			Stringer("from", tracked.Status).
			Stringer("to", status).
			Msg("ignoring order transition")
		return *tracked, false
	}

	update(tracked)
	tracked.Status = status
	tracked.UpdatedAt = m.now()
	if tracked.ClientOrderID != "" {
		m.clientOrderIDs[tracked.ClientOrderID] = id
	}
	return *tracked, true
}

func (m *Manager) GetOrder(id core.OrderID) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracked, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *tracked, true
}

func (m *Manager) GetOrderByClientID(clientOrderID string) (Order, bool) {
	if clientOrderID == "" {
		return Order{}, false
	}

	m.mu.RLock()
	id, ok := m.clientOrderIDs[clientOrderID]
	m.mu.RUnlock()
	if !ok {
		return Order{}, false
	}
	return m.GetOrder(id)
}

// GetOrders returns the tracked orders matching filter, oldest order id first.
func (m *Manager) GetOrders(filter OrderFilter) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Order
	for _, tracked := range m.orders {
		if filter.Matches(tracked) {
			result = append(result, *tracked)
		}
	}
	slices.SortFunc(result, func(a, b Order) int {
		switch {
		case a.OrderID < b.OrderID:
			return -1
		case a.OrderID > b.OrderID:
			return 1
		}
		return 0
	})
	return result
}

func (m *Manager) GetOpenOrders() []Order {
	return m.GetOrders(OrderFilter{OpenOnly: true})
}

func (m *Manager) OnOrderUpdate(callback OrderCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) notifyCallbacks(o Order) {
	m.callbacksMu.RLock()
	callbacks := make([]OrderCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(o)
	}
}

type OrderFilter struct {
	Symbol   string         `json:"symbol,omitempty"`
	Side     core.OrderSide `json:"side,omitempty"`
	Status   Status         `json:"status,omitempty"`
	OpenOnly bool           `json:"open_only,omitempty"`
}

func (f *OrderFilter) Matches(o *Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}

	if f.Side != core.SideUnknown && o.Side != f.Side {
		return false
	}

	if f.Status != StatusUnknown && o.Status != f.Status {
		return false
	}

	if f.OpenOnly && o.Status.IsTerminal() {
		return false
	}

	return true
}

func statusFromOrder(o *core.Order) Status {
	switch {
	case o.IsCancelled:
		return StatusCancelled
	case !o.IsLive && o.RemainingAmount.IsZero() && !o.ExecutedAmount.IsZero():
		return StatusFilled
	case !o.ExecutedAmount.IsZero():
		return StatusPartiallyFilled
	case o.IsLive:
		return StatusBooked
	}
	return StatusNew
}

func statusFromEvent(ev *gemini.OrderStatus) Status {
	switch ev.Type {
	case gemini.EventInitial, gemini.EventAccepted:
		return StatusNew
	case gemini.EventBooked:
		return StatusBooked
	case gemini.EventRejected:
		return StatusRejected
	case gemini.EventCancelled:
		return StatusCancelled
	case gemini.EventFill:
		if ev.RemainingAmount.IsZero() {
			return StatusFilled
		}
		return StatusPartiallyFilled
	case gemini.EventClosed:
		if !ev.ExecutedAmount.IsZero() && ev.RemainingAmount.IsZero() {
			return StatusFilled
		}
		return StatusCancelled
	}
	return StatusUnknown
}

func isValidTransition(from, to Status) bool {
	if from == to {
		return true
	}

	validTransitions := map[Status][]Status{
		StatusNew: {
			StatusBooked,
			StatusPartiallyFilled,
			StatusFilled,
			StatusCancelled,
			StatusRejected,
		},
		StatusBooked: {
			StatusPartiallyFilled,
			StatusFilled,
			StatusCancelled,
		},
		StatusPartiallyFilled: {
			StatusFilled,
			StatusCancelled,
		},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}

	return slices.Contains(allowed, to)
}
