package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"gemini/pkg/core"
)

// ErrClosed is returned when writing to a connection that has ended.
var ErrClosed = errors.New("websocket closed")

// Config holds the dial parameters of a single websocket connection.
type Config struct {
	// Name identifies the feed in logs and errors.
	Name string
	// URL is the websocket server endpoint to connect to.
	URL string
	// Header is sent with the upgrade request.
	Header http.Header
	// BufferSize is the number of inbound text frames held before the read loop blocks.
	BufferSize int
	// HandshakeTimeout bounds the dial and upgrade. Zero leaves only the context deadline.
	HandshakeTimeout time.Duration
}

// Conn is a dialed websocket that delivers inbound text frames, in arrival
// order, on a bounded channel. Frames are never dropped: a slow reader
// stalls the socket read loop instead.
type Conn struct {
	config Config
	socket *gws.Conn
	logger zerolog.Logger

	frames  chan []byte
	done    chan struct{}
	ended   chan struct{}
	closing atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

type wsEventHandler struct {
	conn *Conn
}

type contextDialer struct {
	ctx    context.Context
	dialer *net.Dialer
}

func (d contextDialer) Dial(network, addr string) (net.Conn, error) {
	return d.dialer.DialContext(d.ctx, network, addr)
}

// Dial connects to config.URL and starts the read loop. A server that answers
// the upgrade with anything but 101 yields a *core.HandshakeError; any other
// dial failure yields a *core.TransportError.
func Dial(ctx context.Context, config Config, logger zerolog.Logger) (*Conn, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	c := &Conn{
		config: config,
		logger: logger,
		frames: make(chan []byte, config.BufferSize),
		done:   make(chan struct{}),
		ended:  make(chan struct{}),
	}

	option := &gws.ClientOption{
		Addr:             config.URL,
		RequestHeader:    config.Header,
		HandshakeTimeout: config.HandshakeTimeout,
		NewDialer: func() (gws.Dialer, error) {
			return contextDialer{ctx: ctx, dialer: &net.Dialer{Timeout: config.HandshakeTimeout}}, nil
		},
	}

	socket, resp, err := gws.NewClient(&wsEventHandler{conn: c}, option)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &core.HandshakeError{Feed: config.Name, StatusCode: resp.StatusCode, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, &core.TransportError{Op: "dial " + config.Name, Err: err}
	}
	c.socket = socket

	// OnClose may run on a writing goroutine; frames is closed only once the
	// read loop has stopped delivering and the cause is recorded.
	c.wg.Go(func() {
		socket.ReadLoop()
		<-c.ended
		close(c.frames)
	})

	return c, nil
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	h.conn.logger.Info().
		Str("feed", h.conn.config.Name).
		Str("url", h.conn.config.URL).
		Msg("websocket connected")
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	c := h.conn
	end := c.classifyEnd(err)

	c.mu.Lock()
	c.err = end
	c.mu.Unlock()
	close(c.ended)

	if errors.Is(end, io.EOF) {
		c.logger.Info().Str("feed", c.config.Name).Msg("websocket closed")
		return
	}
	c.logger.Warn().
		Err(err).
		Str("feed", c.config.Name).
		Str("url", c.config.URL).
		Msg("websocket disconnected")
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *wsEventHandler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	c := h.conn
	if message.Opcode != gws.OpcodeText {
		c.logger.Debug().
			Str("feed", c.config.Name).
			Int("size", message.Data.Len()).
			Msg("dropping non-text frame")
		return
	}

	// gws reuses the message buffer once Close returns.
	data := append([]byte(nil), message.Bytes()...)

	select {
	case c.frames <- data:
	case <-c.done:
	}
}

func (c *Conn) classifyEnd(err error) error {
	if c.closing.Load() {
		return io.EOF
	}
	var closeErr *gws.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case 0, 1000, 1001, 1005:
			return io.EOF
		}
	}
	if err == nil {
		return io.EOF
	}
	return &core.TransportError{Op: "read " + c.config.Name, Err: err}
}

// Frames returns the inbound text frames. The channel is closed when the
// connection ends; Err then reports why.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Err returns io.EOF after a normal or local close, a *core.TransportError
// after any other end, and nil while the connection is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WriteText sends data as a single text frame.
func (c *Conn) WriteText(data []byte) error {
	if c.closing.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.socket.WriteMessage(gws.OpcodeText, data); err != nil {
		return &core.TransportError{Op: "write " + c.config.Name, Err: err}
	}
	return nil
}

// SendJSON marshals the given value to JSON and sends it as a text frame.
func (c *Conn) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.WriteText(data)
}

// Close sends a normal close frame, tears down the socket and waits for the
// read loop to exit. It is safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.socket.WriteClose(1000, nil)
		_ = c.socket.NetConn().Close()
	})
	c.wg.Wait()
	return nil
}
