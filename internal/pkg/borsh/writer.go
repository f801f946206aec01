package borsh

import (
	"bytes"
	"encoding/binary"

	"github.com/holiman/uint256"
)

type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteU8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) WriteU32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *Writer) WriteU64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
	return w
}

// WriteU128 writes the low 128 bits of v, little endian.
func (w *Writer) WriteU128(v *uint256.Int) *Writer {
	if v == nil {
		v = new(uint256.Int)
	}
	be := v.Bytes32()
	for i := 31; i >= 16; i-- {
		w.buf.WriteByte(be[i])
	}
	return w
}

func (w *Writer) WriteFixed(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

func (w *Writer) WriteBytes(b []byte) *Writer {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
	return w
}

func (w *Writer) WriteString(s string) *Writer {
	return w.WriteBytes([]byte(s))
}

func (w *Writer) WriteOptionU64(v *uint64) *Writer {
	if v == nil {
		return w.WriteU8(0)
	}
	return w.WriteU8(1).WriteU64(*v)
}

func (w *Writer) WriteOptionString(v *string) *Writer {
	if v == nil {
		return w.WriteU8(0)
	}
	return w.WriteU8(1).WriteString(*v)
}
