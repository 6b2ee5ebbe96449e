// Package wsbridge carries mem.Transport calls over a websocket: one binary
// frame per request and one per response, so a scatter read is exactly one
// network round trip.
package wsbridge

import (
	"errors"
	"fmt"

	"github.com/udisondev/memsync/internal/mem"
)

// Wire limits.
const (
	maxTransfer       = 1 << 20 // bytes per read or write
	maxScatterEntries = 4096
	maxMessage        = 1 << 10 // error text
)

var (
	// ErrProtocol reports a malformed frame.
	ErrProtocol = errors.New("bridge protocol error")
	// ErrRemote reports a failure returned by the bridge for a single access.
	ErrRemote = errors.New("bridge access failed")
)

type opcode byte

const (
	opRead    opcode = 0x01
	opWrite   opcode = 0x02
	opScatter opcode = 0x03
)

func (o opcode) String() string {
	switch o {
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opScatter:
		return "scatter"
	default:
		return fmt.Sprintf("op(0x%02X)", byte(o))
	}
}

type status byte

const (
	statusOK         status = 0
	statusAccess     status = 1 // access rejected (unmapped page, protection)
	statusDetached   status = 2 // no foreign process
	statusBadRequest status = 3
)

func statusOf(err error) status {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, mem.ErrDetached):
		return statusDetached
	case errors.Is(err, ErrProtocol):
		return statusBadRequest
	default:
		return statusAccess
	}
}

// errorOf maps a remote status back to a local error.
func errorOf(s status, msg string) error {
	switch s {
	case statusOK:
		return nil
	case statusDetached:
		return fmt.Errorf("%w: %s", mem.ErrDetached, msg)
	case statusBadRequest:
		return fmt.Errorf("%w: rejected by bridge: %s", ErrProtocol, msg)
	default:
		return fmt.Errorf("%w: %s", ErrRemote, msg)
	}
}

type scatterRead struct {
	addr mem.Address
	size uint32
}

type scatterResult struct {
	status status
	msg    string
	data   []byte
}

// request frame: op u8, seq u32, then
//
//	read:    addr u64, size u32, useCache u8
//	write:   addr u64, data blob
//	scatter: count u32, count × (addr u64, size u32)
type request struct {
	op       opcode
	seq      uint32
	addr     mem.Address
	size     uint32
	useCache bool
	data     []byte
	reads    []scatterRead
}

func (q *request) encode(w *frameWriter) {
	w.writeByte(byte(q.op))
	w.writeUint32(q.seq)
	switch q.op {
	case opRead:
		w.writeUint64(uint64(q.addr))
		w.writeUint32(q.size)
		if q.useCache {
			w.writeByte(1)
		} else {
			w.writeByte(0)
		}
	case opWrite:
		w.writeUint64(uint64(q.addr))
		w.writeBlob(q.data)
	case opScatter:
		w.writeUint32(uint32(len(q.reads)))
		for _, e := range q.reads {
			w.writeUint64(uint64(e.addr))
			w.writeUint32(e.size)
		}
	}
}

func decodeRequest(data []byte) (request, error) {
	r := newReader(data)
	var q request

	op, err := r.readByte()
	if err != nil {
		return q, err
	}
	q.op = opcode(op)
	if q.seq, err = r.readUint32(); err != nil {
		return q, err
	}

	switch q.op {
	case opRead:
		addr, err := r.readUint64()
		if err != nil {
			return q, err
		}
		q.addr = mem.Address(addr)
		if q.size, err = r.readUint32(); err != nil {
			return q, err
		}
		if q.size > maxTransfer {
			return q, fmt.Errorf("%w: read of %d bytes exceeds %d", ErrProtocol, q.size, maxTransfer)
		}
		flag, err := r.readByte()
		if err != nil {
			return q, err
		}
		q.useCache = flag != 0
	case opWrite:
		addr, err := r.readUint64()
		if err != nil {
			return q, err
		}
		q.addr = mem.Address(addr)
		if q.data, err = r.readBlob(maxTransfer); err != nil {
			return q, err
		}
	case opScatter:
		n, err := r.readUint32()
		if err != nil {
			return q, err
		}
		if n > maxScatterEntries {
			return q, fmt.Errorf("%w: %d scatter entries exceed %d", ErrProtocol, n, maxScatterEntries)
		}
		q.reads = make([]scatterRead, n)
		for i := range q.reads {
			addr, err := r.readUint64()
			if err != nil {
				return q, err
			}
			size, err := r.readUint32()
			if err != nil {
				return q, err
			}
			if size > maxTransfer {
				return q, fmt.Errorf("%w: scatter entry %d of %d bytes exceeds %d", ErrProtocol, i, size, maxTransfer)
			}
			q.reads[i] = scatterRead{addr: mem.Address(addr), size: size}
		}
	default:
		return q, fmt.Errorf("%w: unknown %s", ErrProtocol, q.op)
	}

	if r.remaining() != 0 {
		return q, fmt.Errorf("%w: %d trailing bytes after %s", ErrProtocol, r.remaining(), q.op)
	}
	return q, nil
}

// response frame: seq u32, status u8, then
//
//	status != ok: message string
//	read:         data blob
//	write:        nothing
//	scatter:      count u32, count × (status u8, data blob | message string)
type response struct {
	seq     uint32
	status  status
	msg     string
	data    []byte
	results []scatterResult
}

func (p *response) encode(w *frameWriter, op opcode) {
	w.writeUint32(p.seq)
	w.writeByte(byte(p.status))
	if p.status != statusOK {
		w.writeString(p.msg)
		return
	}
	switch op {
	case opRead:
		w.writeBlob(p.data)
	case opScatter:
		w.writeUint32(uint32(len(p.results)))
		for _, res := range p.results {
			w.writeByte(byte(res.status))
			if res.status == statusOK {
				w.writeBlob(res.data)
			} else {
				w.writeString(res.msg)
			}
		}
	}
}

func decodeResponse(data []byte, op opcode) (response, error) {
	r := newReader(data)
	var p response

	var err error
	if p.seq, err = r.readUint32(); err != nil {
		return p, err
	}
	st, err := r.readByte()
	if err != nil {
		return p, err
	}
	p.status = status(st)

	if p.status != statusOK {
		if p.msg, err = r.readString(); err != nil {
			return p, err
		}
		return p, nil
	}

	switch op {
	case opRead:
		if p.data, err = r.readBlob(maxTransfer); err != nil {
			return p, err
		}
	case opScatter:
		n, err := r.readUint32()
		if err != nil {
			return p, err
		}
		if n > maxScatterEntries {
			return p, fmt.Errorf("%w: %d scatter results exceed %d", ErrProtocol, n, maxScatterEntries)
		}
		p.results = make([]scatterResult, n)
		for i := range p.results {
			st, err := r.readByte()
			if err != nil {
				return p, err
			}
			p.results[i].status = status(st)
			if p.results[i].status == statusOK {
				p.results[i].data, err = r.readBlob(maxTransfer)
			} else {
				p.results[i].msg, err = r.readString()
			}
			if err != nil {
				return p, err
			}
		}
	}
	return p, nil
}
