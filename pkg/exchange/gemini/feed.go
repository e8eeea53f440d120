package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"github.com/rs/zerolog"

	"gemini/internal/ws"
	"gemini/pkg/core"
)

// frameConn is the transport a feed reads from. *ws.Conn implements it.
type frameConn interface {
	Frames() <-chan []byte
	Err() error
	SendJSON(v any) error
	Close() error
}

// Feed is an open feed connection that has not yet handed out its stream.
// Frames that arrive before Start are held in arrival order.
type Feed[M any] struct {
	name      string
	conn      frameConn
	state     ws.State
	classify  func(frame []byte) (M, error)
	handshake func(conn frameConn) error
	logger    zerolog.Logger
	closed    atomic.Bool
}

func newFeed[M any](name string, conn frameConn, classify func([]byte) (M, error), handshake func(frameConn) error, logger zerolog.Logger) *Feed[M] {
	f := &Feed[M]{
		name:      name,
		conn:      conn,
		classify:  classify,
		handshake: handshake,
		logger:    logger,
	}
	f.state.Store(ws.StateHandshaking)
	return f
}

// State returns the session state.
func (f *Feed[M]) State() ws.ConnState {
	return f.state.Load()
}

// Start completes the handshake and returns the stream. For the market data
// feed the subscribe frame has been written when Start returns; a failed
// write yields a *core.HandshakeError and leaves the feed Failed.
func (f *Feed[M]) Start(ctx context.Context) (*Stream[M], error) {
	if f.closed.Load() {
		return nil, core.ErrFeedClosed
	}
	if f.state.Load() != ws.StateHandshaking {
		return nil, core.ErrInvalidState
	}
	if err := ctx.Err(); err != nil {
		f.fail()
		return nil, &core.HandshakeError{Feed: f.name, Err: err}
	}

	if f.handshake != nil {
		if err := f.handshake(f.conn); err != nil {
			f.fail()
			f.logger.Warn().Err(err).Str("feed", f.name).Msg("feed handshake failed")
			return nil, &core.HandshakeError{Feed: f.name, Err: err}
		}
	}

	if !f.state.CompareAndSwap(ws.StateHandshaking, ws.StateStreaming) {
		return nil, core.ErrFeedClosed
	}
	f.logger.Debug().Str("feed", f.name).Msg("feed streaming")
	return &Stream[M]{feed: f}, nil
}

// Close ends the session. Pending and later reads return io.EOF.
func (f *Feed[M]) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.state.Finish(ws.StateClosed)
	return f.conn.Close()
}

func (f *Feed[M]) fail() {
	f.state.Finish(ws.StateFailed)
	_ = f.conn.Close()
}

// Stream is the ordered, single-reader sequence of classified messages of a feed.
type Stream[M any] struct {
	feed *Feed[M]
}

// Next returns the next message in arrival order.
//
// A frame that matches no known shape returns a *core.ClassificationError
// and the stream stays usable. io.EOF reports a normal or local close; a
// *core.TransportError reports any other end of the connection.
func (s *Stream[M]) Next(ctx context.Context) (M, error) {
	var zero M
	f := s.feed
	if f.closed.Load() {
		return zero, io.EOF
	}

	select {
	case frame, ok := <-f.conn.Frames():
		if !ok {
			return zero, s.end()
		}
		if f.closed.Load() {
			return zero, io.EOF
		}
		return f.classify(frame)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Stream[M]) end() error {
	f := s.feed
	err := f.conn.Err()
	if err == nil || errors.Is(err, io.EOF) || f.closed.Load() {
		f.state.Finish(ws.StateClosed)
		return io.EOF
	}
	f.state.Finish(ws.StateFailed)
	return err
}

// All yields every message until the stream ends. Classification errors are
// yielded and iteration continues; io.EOF stops silently; any other error is
// yielded once and stops.
func (s *Stream[M]) All(ctx context.Context) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil && !core.IsClassificationError(err) {
				yield(msg, err)
				return
			}
			if !yield(msg, err) {
				return
			}
		}
	}
}

// State returns the session state.
func (s *Stream[M]) State() ws.ConnState {
	return s.feed.State()
}

// Close ends the session.
func (s *Stream[M]) Close() error {
	return s.feed.Close()
}
