package borsh

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var ErrStateDecode = errors.New("state decode error")

// Reader is a forward-only cursor over borsh encoded bytes.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.Wrapf(ErrStateDecode, "reading %s at offset %d: need %d bytes, have %d", what, r.pos, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadU128 reads a little endian 128 bit unsigned integer.
func (r *Reader) ReadU128() (*uint256.Int, error) {
	b, err := r.take(16, "u128")
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n), "bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n, fmt.Sprintf("[%d]u8", n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *Reader) ReadString() (string, error) {
	start := r.pos
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Wrapf(ErrStateDecode, "invalid utf-8 string at offset %d", start)
	}
	return string(b), nil
}

// ReadOptionTag reads an option discriminant. Anything other than 0 or 1 is
// rejected instead of being treated as "present".
func (r *Reader) ReadOptionTag() (bool, error) {
	start := r.pos
	tag, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Wrapf(ErrStateDecode, "invalid option tag %d at offset %d", tag, start)
	}
}

func (r *Reader) ReadOptionU64() (*uint64, error) {
	present, err := r.ReadOptionTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Reader) ReadOptionString() (*string, error) {
	present, err := r.ReadOptionTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadEnumTag reads a variant index and fails if it is not below variants.
func (r *Reader) ReadEnumTag(name string, variants uint8) (uint8, error) {
	start := r.pos
	tag, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	if tag >= variants {
		return 0, errors.Wrapf(ErrStateDecode, "%s: variant %d out of range at offset %d", name, tag, start)
	}
	return tag, nil
}
