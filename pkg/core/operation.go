package core

// Operation represents a REST action supported by the exchange client.
type Operation int

// Operation constants define all supported exchange operations.
const (
	// OpGetSymbols lists tradable symbols.
	OpGetSymbols Operation = iota
	// OpGetTicker retrieves the current ticker for a symbol.
	OpGetTicker
	// OpGetBalances retrieves account balances.
	OpGetBalances
	// OpGetMyTrades retrieves the account's past trades for a symbol.
	OpGetMyTrades
	// OpNewOrder submits a new order.
	OpNewOrder
	// OpCancelOrder cancels an existing order.
	OpCancelOrder
	// OpCancelAllOrders cancels every open order of the account.
	OpCancelAllOrders
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"GET_SYMBOLS",
		"GET_TICKER",
		"GET_BALANCES",
		"GET_MY_TRADES",
		"NEW_ORDER",
		"CANCEL_ORDER",
		"CANCEL_ALL_ORDERS",
	}[o]
}

// RequiresAuth reports whether the operation must be signed.
func (o Operation) RequiresAuth() bool {
	return o != OpGetSymbols && o != OpGetTicker
}
