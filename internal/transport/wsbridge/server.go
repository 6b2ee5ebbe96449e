package wsbridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/memsync/internal/mem"
)

// Handler serves the bridge protocol for any mem.Transport.
type Handler struct {
	t        mem.Transport
	upgrader websocket.Upgrader

	sessions atomic.Int32
	requests atomic.Int64
}

// NewHandler creates a handler exposing t.
func NewHandler(t mem.Transport) *Handler {
	return &Handler{
		t: t,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Sessions returns the number of connected clients.
func (h *Handler) Sessions() int {
	return int(h.sessions.Load())
}

// Requests returns the number of requests served.
func (h *Handler) Requests() int64 {
	return h.requests.Load()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	h.sessions.Add(1)
	defer h.sessions.Add(-1)
	slog.Info("bridge client connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("bridge client disconnected", "remote", r.RemoteAddr)
			} else {
				slog.Debug("bridge read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			h.reject(conn, "binary frames only")
			return
		}

		q, err := decodeRequest(data)
		if err != nil {
			slog.Warn("malformed bridge request", "remote", r.RemoteAddr, "error", err)
			h.reject(conn, err.Error())
			return
		}
		h.requests.Add(1)

		w := getWriter()
		p := h.serve(ctx, q)
		p.encode(w, q.op)
		err = conn.WriteMessage(websocket.BinaryMessage, w.bytes())
		w.put()
		if err != nil {
			slog.Debug("bridge write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (h *Handler) reject(conn *websocket.Conn, reason string) {
	if len(reason) > 120 {
		reason = reason[:120] // close frame payload limit
	}
	msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (h *Handler) serve(ctx context.Context, q request) response {
	p := response{seq: q.seq}
	fail := func(err error) response {
		p.status = statusOf(err)
		p.msg = err.Error()
		return p
	}

	switch q.op {
	case opRead:
		buf := make([]byte, q.size)
		if err := h.t.ReadMemory(ctx, q.addr, buf, q.useCache); err != nil {
			return fail(err)
		}
		p.data = buf

	case opWrite:
		if err := h.t.WriteMemory(ctx, q.addr, q.data); err != nil {
			return fail(err)
		}

	case opScatter:
		entries := make([]mem.ScatterEntry, len(q.reads))
		for i, e := range q.reads {
			entries[i] = mem.ScatterEntry{Addr: e.addr, Buf: make([]byte, e.size)}
		}
		if err := h.t.ReadScatter(ctx, entries); err != nil {
			return fail(err)
		}
		p.results = make([]scatterResult, len(entries))
		for i, e := range entries {
			if e.Err != nil {
				p.results[i] = scatterResult{status: statusOf(e.Err), msg: e.Err.Error()}
				continue
			}
			p.results[i] = scatterResult{data: e.Buf}
		}
	}
	return p
}
