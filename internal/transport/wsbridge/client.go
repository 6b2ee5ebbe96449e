package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/memsync/internal/mem"
)

// Client is a mem.Transport backed by a bridge connection. Calls are
// serialized: one request is in flight at a time.
type Client struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	seq    uint32
	broken error // set after a connection-level failure
}

var _ mem.Transport = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRequestTimeout bounds each round trip when ctx has no earlier deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// DefaultRequestTimeout is used when no timeout option is given.
const DefaultRequestTimeout = 2 * time.Second

// Dial connects to the bridge at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{url: url, timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(c)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dialing bridge %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing bridge %s: %w", url, err)
	}
	c.conn = conn

	slog.Info("connected to memory bridge", "url", url)
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken == nil {
		c.broken = net.ErrClosed
	}
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, q *request) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return response{}, fmt.Errorf("%w: bridge connection unusable: %w", mem.ErrDetached, c.broken)
	}

	c.seq++
	q.seq = c.seq

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w := getWriter()
	q.encode(w)
	_ = c.conn.SetWriteDeadline(deadline)
	err := c.conn.WriteMessage(websocket.BinaryMessage, w.bytes())
	w.put()
	if err != nil {
		return response{}, c.fail(fmt.Errorf("sending %s: %w", q.op, err))
	}

	_ = c.conn.SetReadDeadline(deadline)
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return response{}, c.fail(fmt.Errorf("awaiting %s: %w", q.op, err))
	}
	if kind != websocket.BinaryMessage {
		return response{}, c.fail(fmt.Errorf("%w: unexpected message type %d", ErrProtocol, kind))
	}

	p, err := decodeResponse(data, q.op)
	if err != nil {
		return response{}, c.fail(err)
	}
	if p.seq != q.seq {
		return response{}, c.fail(fmt.Errorf("%w: response seq %d for request %d", ErrProtocol, p.seq, q.seq))
	}
	return p, nil
}

// fail marks the connection unusable. A timed-out or desynchronized stream
// cannot be trusted for later requests.
func (c *Client) fail(err error) error {
	c.broken = err
	slog.Warn("memory bridge connection lost", "url", c.url, "error", err)
	return fmt.Errorf("%w: %w", mem.ErrDetached, err)
}

// ReadMemory implements mem.Transport.
func (c *Client) ReadMemory(ctx context.Context, addr mem.Address, buf []byte, useCache bool) error {
	p, err := c.roundTrip(ctx, &request{op: opRead, addr: addr, size: uint32(len(buf)), useCache: useCache})
	if err != nil {
		return err
	}
	if err := errorOf(p.status, p.msg); err != nil {
		return err
	}
	if len(p.data) != len(buf) {
		return fmt.Errorf("%w: read %s returned %d bytes, want %d", ErrProtocol, addr, len(p.data), len(buf))
	}
	copy(buf, p.data)
	return nil
}

// WriteMemory implements mem.Transport.
func (c *Client) WriteMemory(ctx context.Context, addr mem.Address, data []byte) error {
	p, err := c.roundTrip(ctx, &request{op: opWrite, addr: addr, data: data})
	if err != nil {
		return err
	}
	return errorOf(p.status, p.msg)
}

// ReadScatter implements mem.Transport in a single round trip.
func (c *Client) ReadScatter(ctx context.Context, entries []mem.ScatterEntry) error {
	q := &request{op: opScatter, reads: make([]scatterRead, len(entries))}
	for i, e := range entries {
		q.reads[i] = scatterRead{addr: e.Addr, size: uint32(len(e.Buf))}
	}

	p, err := c.roundTrip(ctx, q)
	if err != nil {
		return err
	}
	if err := errorOf(p.status, p.msg); err != nil {
		return err
	}
	if len(p.results) != len(entries) {
		return fmt.Errorf("%w: %d scatter results for %d reads", ErrProtocol, len(p.results), len(entries))
	}

	for i := range entries {
		res := p.results[i]
		if err := errorOf(res.status, res.msg); err != nil {
			entries[i].Err = err
			continue
		}
		if len(res.data) != len(entries[i].Buf) {
			entries[i].Err = fmt.Errorf("%w: entry %d returned %d bytes, want %d", ErrProtocol, i, len(res.data), len(entries[i].Buf))
			continue
		}
		copy(entries[i].Buf, res.data)
		entries[i].Err = nil
	}
	return nil
}

// Healthy reports whether the connection can still carry requests.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken == nil
}
