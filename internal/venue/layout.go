package venue

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
)

// reader walks a fixed little-endian layout. The first failure sticks; callers
// check err once after the final field.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte, want int) *reader {
	r := &reader{buf: buf}
	if len(buf) != want {
		r.err = fmt.Errorf("%w: layout is %d bytes, want %d", amm.ErrValidation, len(buf), want)
	}
	return r
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated at offset %d", amm.ErrValidation, r.off)
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) key() amm.Key {
	var k amm.Key
	if b := r.take(32); b != nil {
		copy(k[:], b)
	}
	return k
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) i32() int32 {
	if b := r.take(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) u128() *uint256.Int {
	b := r.take(16)
	if b == nil {
		return uint256.NewInt(0)
	}
	lo := binary.LittleEndian.Uint64(b[:8])
	hi := binary.LittleEndian.Uint64(b[8:])
	v := new(uint256.Int).Lsh(uint256.NewInt(hi), 64)
	return v.Or(v, uint256.NewInt(lo))
}

// padding consumes n reserved bytes that must all be zero. Anything else is
// corruption and fails the whole decode.
func (r *reader) padding(n int) {
	b := r.take(n)
	if b == nil {
		return
	}
	for i, v := range b {
		if v != 0 {
			r.err = fmt.Errorf("%w: non-zero reserved byte at offset %d", amm.ErrValidation, r.off-n+i)
			return
		}
	}
}
