package ws

import "sync/atomic"

// ConnState represents the lifecycle state of a feed session.
type ConnState int32

// Feed session states. Closed and Failed are terminal.
const (
	// StateDisconnected indicates no transport has been dialed yet.
	StateDisconnected ConnState = iota
	// StateConnecting indicates the transport dial and upgrade are in progress.
	StateConnecting
	// StateHandshaking indicates the transport is up but the stream has not been handed out.
	StateHandshaking
	// StateStreaming indicates the handshake completed and frames reach the consumer.
	StateStreaming
	// StateClosed indicates the transport ended normally or was closed locally.
	StateClosed
	// StateFailed indicates the session ended with a transport or handshake error.
	StateFailed
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	return [...]string{
		"disconnected",
		"connecting",
		"handshaking",
		"streaming",
		"closed",
		"failed",
	}[s]
}

// Terminal reports whether no further transition is possible.
func (s ConnState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// State provides thread-safe atomic access to a ConnState value.
type State struct {
	state atomic.Int32
}

// Load returns the current connection state.
func (s *State) Load() ConnState {
	return ConnState(s.state.Load())
}

// Store sets the connection state to the given value.
func (s *State) Store(state ConnState) {
	s.state.Store(int32(state))
}

// CompareAndSwap atomically compares the current state with old and swaps to new if equal.
// It returns true if the swap was performed.
func (s *State) CompareAndSwap(old, new ConnState) bool {
	return s.state.CompareAndSwap(int32(old), int32(new))
}

// Finish moves the state to a terminal value unless it is already terminal.
// It returns false when another transition got there first.
func (s *State) Finish(terminal ConnState) bool {
	for {
		cur := s.Load()
		if cur.Terminal() {
			return false
		}
		if s.CompareAndSwap(cur, terminal) {
			return true
		}
	}
}
