// Package record encodes ledger state as fixed-size little-endian account
// images. Every layout carries reserved padding that must decode as all-zero;
// a non-zero reserved byte is corruption and fails the decode.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
)

// buffer is a fixed-layout cursor used for both directions. The first error
// sticks and every later field access becomes a no-op.
type buffer struct {
	data []byte
	off  int
	err  error
}

func newEncoder(size int) *buffer {
	return &buffer{data: make([]byte, size)}
}

func newDecoder(data []byte, want int) *buffer {
	b := &buffer{data: data}
	if len(data) != want {
		b.err = fmt.Errorf("%w: record is %d bytes, want %d", amm.ErrValidation, len(data), want)
	}
	return b
}

func (b *buffer) slot(n int) []byte {
	if b.err != nil {
		return nil
	}
	if b.off+n > len(b.data) {
		b.err = fmt.Errorf("%w: record truncated at offset %d", amm.ErrValidation, b.off)
		return nil
	}
	out := b.data[b.off : b.off+n]
	b.off += n
	return out
}

func (b *buffer) putKey(k amm.Key) {
	if s := b.slot(32); s != nil {
		copy(s, k[:])
	}
}

func (b *buffer) key() amm.Key {
	var k amm.Key
	if s := b.slot(32); s != nil {
		copy(k[:], s)
	}
	return k
}

func (b *buffer) putU8(v uint8) {
	if s := b.slot(1); s != nil {
		s[0] = v
	}
}

func (b *buffer) u8() uint8 {
	if s := b.slot(1); s != nil {
		return s[0]
	}
	return 0
}

func (b *buffer) putU64(v uint64) {
	if s := b.slot(8); s != nil {
		binary.LittleEndian.PutUint64(s, v)
	}
}

func (b *buffer) u64() uint64 {
	if s := b.slot(8); s != nil {
		return binary.LittleEndian.Uint64(s)
	}
	return 0
}

func (b *buffer) putU128(v *uint256.Int) {
	s := b.slot(16)
	if s == nil {
		return
	}
	if v == nil {
		v = uint256.NewInt(0)
	}
	if v.BitLen() > 128 {
		b.err = fmt.Errorf("%w: value exceeds 128 bits", amm.ErrArithmeticOverflow)
		return
	}
	binary.LittleEndian.PutUint64(s[:8], v.Uint64())
	hi := new(uint256.Int).Rsh(v, 64)
	binary.LittleEndian.PutUint64(s[8:], hi.Uint64())
}

func (b *buffer) u128() *uint256.Int {
	s := b.slot(16)
	if s == nil {
		return uint256.NewInt(0)
	}
	lo := binary.LittleEndian.Uint64(s[:8])
	hi := binary.LittleEndian.Uint64(s[8:])
	v := new(uint256.Int).Lsh(uint256.NewInt(hi), 64)
	return v.Or(v, uint256.NewInt(lo))
}

// reserved skips n padding bytes when encoding (make leaves them zero) and
// enforces all-zero when decoding.
func (b *buffer) reserved(n int) {
	s := b.slot(n)
	if s == nil {
		return
	}
	for i, v := range s {
		if v != 0 {
			b.err = fmt.Errorf("%w: non-zero reserved byte at offset %d", amm.ErrValidation, b.off-n+i)
			return
		}
	}
}

func (b *buffer) finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.off != len(b.data) {
		return nil, fmt.Errorf("%w: layout consumed %d of %d bytes", amm.ErrValidation, b.off, len(b.data))
	}
	return b.data, nil
}
