package rpc

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// RequestHandler is invoked on a server-side Conn for every inbound TypeReq
// frame. It runs synchronously on the read loop, so it must not block: if
// it needs to observe continuation frames (push_file's Chunk/End sequence)
// it must call Conn.Register before returning and hand the channel to a
// goroutine of its own.
type RequestHandler func(req *Frame, c *Conn)

// Conn multiplexes many concurrent calls over one underlying stream
// connection, modeled on the teacher's PluginHost: a single writer
// goroutine drains an outbound channel (buffered per spec.md §5's
// per-stream backpressure bound of 4), a single reader goroutine dispatches
// inbound frames by request ID, and any number of callers or request
// handlers may be in flight at once.
type Conn struct {
	closer  io.Closer
	fr      *FrameReader
	fw      *FrameWriter
	outCh   chan *Frame
	onReq   RequestHandler

	mu      sync.Mutex
	pending map[uuid.UUID]chan *Frame

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a connection (anything providing io.Reader, io.Writer, and
// io.Closer — typically a net.Conn). onReq may be nil for pure client
// connections that never receive requests.
func NewConn(rwc interface {
	io.Reader
	io.Writer
	io.Closer
}, maxFrame int, onReq RequestHandler) *Conn {
	c := &Conn{
		closer:  rwc,
		fr:      NewFrameReader(rwc, maxFrame),
		fw:      NewFrameWriter(rwc, maxFrame),
		outCh:   make(chan *Frame, 4),
		onReq:   onReq,
		pending: make(map[uuid.UUID]chan *Frame),
		closed:  make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// NewID generates a fresh request-correlation ID.
func NewID() uuid.UUID { return uuid.New() }

func (c *Conn) writeLoop() {
	for {
		select {
		case f := <-c.outCh:
			if err := c.fw.WriteFrame(f); err != nil {
				c.fail(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		f, err := c.fr.ReadFrame()
		if err != nil {
			c.fail(err)
			return
		}
		if f.Type == TypeReq && c.onReq != nil {
			c.onReq(f, c)
			continue
		}
		c.deliver(f)
	}
}

// Register allocates the response channel for id. Call it before the
// corresponding Req frame can possibly be answered — on the client before
// Send, on the server before returning from the RequestHandler.
func (c *Conn) Register(id uuid.UUID) chan *Frame {
	ch := make(chan *Frame, 8)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// Unregister releases the response channel for id. Safe to call more than
// once.
func (c *Conn) Unregister(id uuid.UUID) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Conn) deliver(f *Frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	case <-c.closed:
	}
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
		c.mu.Lock()
		for _, ch := range c.pending {
			close(ch)
		}
		c.pending = nil
		c.mu.Unlock()
	})
}

// Send enqueues f for the writer goroutine. Blocks under backpressure when
// the outbound channel (buffer 4) is full.
func (c *Conn) Send(f *Frame) error {
	select {
	case c.outCh <- f:
		return nil
	case <-c.closed:
		return c.closeErr
	}
}

// Call sends req and waits for exactly one response frame (Res, End, or
// Err) — the non-streaming RPC path.
func (c *Conn) Call(ctx context.Context, req *Frame) (*Frame, error) {
	ch := c.Register(req.ID)
	defer c.Unregister(req.ID)

	if err := c.Send(req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.closeErr
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closeErr
	}
}

// Err returns the error that caused the connection to fail, if any.
func (c *Conn) Err() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// Done is closed once the connection has failed or been closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Close tears the connection down.
func (c *Conn) Close() error {
	c.fail(io.ErrClosedPipe)
	return c.closer.Close()
}
