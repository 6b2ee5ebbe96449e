package wsbridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// frameWriter builds one binary frame. Little-Endian for all multi-byte values.
type frameWriter struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations by reusing frameWriters.
var writerPool = sync.Pool{
	New: func() any {
		return &frameWriter{buf: bytes.NewBuffer(make([]byte, 0, 512))}
	},
}

func getWriter() *frameWriter {
	w := writerPool.Get().(*frameWriter)
	w.buf.Reset()
	return w
}

// put returns w to the pool. Bytes() must not be used afterwards.
func (w *frameWriter) put() {
	writerPool.Put(w)
}

func (w *frameWriter) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *frameWriter) writeUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *frameWriter) writeUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

// writeBlob writes a uint32 length followed by data.
func (w *frameWriter) writeBlob(data []byte) {
	w.writeUint32(uint32(len(data)))
	w.buf.Write(data)
}

// writeString writes a length-prefixed UTF-8 string, truncated to maxMessage bytes.
func (w *frameWriter) writeString(s string) {
	if len(s) > maxMessage {
		s = s[:maxMessage]
	}
	w.writeUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *frameWriter) bytes() []byte {
	return w.buf.Bytes()
}

// frameReader decodes one binary frame.
type frameReader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *frameReader {
	return &frameReader{data: data}
}

func (r *frameReader) need(n int, what string) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%w: %s: not enough data (pos=%d, need=%d, len=%d)", ErrProtocol, what, r.pos, n, len(r.data))
	}
	return nil
}

func (r *frameReader) readByte() (byte, error) {
	if err := r.need(1, "byte"); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *frameReader) readUint32() (uint32, error) {
	if err := r.need(4, "uint32"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *frameReader) readUint64() (uint64, error) {
	if err := r.need(8, "uint64"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// readBlob reads a length-prefixed byte string (zero-copy: the result
// shares the frame's backing array).
func (r *frameReader) readBlob(limit int) ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if int(n) > limit {
		return nil, fmt.Errorf("%w: blob of %d bytes exceeds %d", ErrProtocol, n, limit)
	}
	if err := r.need(int(n), "blob"); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *frameReader) readString() (string, error) {
	b, err := r.readBlob(maxMessage)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *frameReader) remaining() int {
	return len(r.data) - r.pos
}
