// Package savestate implements the binary save-state codec shared by every
// core component: a 4-byte magic, a 1-byte version, then each component's
// payload back to back in a fixed order.
package savestate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Magic is "GBSS" read as a little-endian uint32, per the wire format.
const Magic uint32 = 0x53534247

// Version is bumped whenever the payload layout changes incompatibly.
const Version byte = 1

var ErrBadMagic = errors.New("savestate: bad magic")
var ErrBadVersion = errors.New("savestate: unsupported version")

// Writer accumulates a save-state payload in wire order.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) U8(v byte)       { w.buf.WriteByte(v) }
func (w *Writer) Bool(v bool)     { w.buf.WriteByte(boolByte(v)) }
func (w *Writer) U16(v uint16)    { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) U32(v uint32)    { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) I64(v int64)     { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) Bytes8(b []byte) { w.buf.Write(b) }

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Reader consumes a save-state payload in the same order it was written.
type Reader struct {
	r   *bytes.Reader
	err error
}

func NewReader(data []byte) *Reader { return &Reader{r: bytes.NewReader(data)} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) U8() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = err
		return 0
	}
	return b
}

func (r *Reader) Bool() bool { return r.U8() != 0 }

func (r *Reader) U16() uint16 {
	var v uint16
	if r.err != nil {
		return 0
	}
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		r.err = err
	}
	return v
}

func (r *Reader) U32() uint32 {
	var v uint32
	if r.err != nil {
		return 0
	}
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		r.err = err
	}
	return v
}

func (r *Reader) I64() int64 {
	var v int64
	if r.err != nil {
		return 0
	}
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		r.err = err
	}
	return v
}

// Bytes reads exactly n bytes into dst (which must have length n).
func (r *Reader) Bytes(dst []byte) {
	if r.err != nil {
		return
	}
	if _, err := io.ReadFull(r.r, dst); err != nil {
		r.err = err
	}
}

// WrapHeader prepends the magic+version header to a payload produced by a Writer.
func WrapHeader(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+5)
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, Magic)
	out = append(out, hdr...)
	out = append(out, Version)
	out = append(out, payload...)
	return out
}

// UnwrapHeader validates and strips the magic+version header, returning the
// remaining payload. Returns an error (without mutating caller state) on
// mismatch, per the save-state-mismatch error taxonomy.
func UnwrapHeader(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, ErrBadMagic
	}
	if binary.LittleEndian.Uint32(data[:4]) != Magic {
		return nil, ErrBadMagic
	}
	if data[4] != Version {
		return nil, ErrBadVersion
	}
	return data[5:], nil
}
