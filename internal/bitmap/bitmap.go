// internal/bitmap/bitmap.go

// Package bitmap provides a fixed-width bitset used as the null mask in front
// of every serialized record: bit i is set when field i is nil.
package bitmap

import "flowbridge/internal/errors"

// Bitmap is a bitset of a fixed width backed by 64-bit words.
type Bitmap struct {
	data []uint64
	n    int
}

// New allocates a bitmap of n bits, all clear. n <= 0 yields an empty bitmap.
func New(n int) *Bitmap {
	if n <= 0 {
		return &Bitmap{}
	}
	return &Bitmap{data: make([]uint64, (n+63)/64), n: n}
}

// Len returns the width in bits.
func (b *Bitmap) Len() int { return b.n }

// Set sets bit i. Out of range indexes are ignored.
func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.data[i/64] |= 1 << uint(i%64)
}

// Has reports whether bit i is set. Out of range indexes report false.
func (b *Bitmap) Has(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.data[i/64]&(1<<uint(i%64)) != 0
}

// Reset clears every bit, keeping the width.
func (b *Bitmap) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// ByteLen is the encoded size of a bitmap of n bits.
func ByteLen(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 7) / 8
}

// AppendTo appends the little-endian byte form of b (ByteLen(b.Len()) bytes).
func (b *Bitmap) AppendTo(dst []byte) []byte {
	for i := 0; i < ByteLen(b.n); i++ {
		dst = append(dst, byte(b.data[i/8]>>(uint(i%8)*8)))
	}
	return dst
}

// Decode reads an n-bit bitmap from the front of src and returns it with the
// number of bytes consumed.
func Decode(src []byte, n int) (*Bitmap, int, error) {
	size := ByteLen(n)
	if len(src) < size {
		return nil, 0, errors.Newf("bitmap: need %d bytes, have %d", size, len(src))
	}
	b := New(n)
	for i := 0; i < size; i++ {
		b.data[i/8] |= uint64(src[i]) << (uint(i%8) * 8)
	}
	// bits past the width must be clear
	if rem := n % 8; rem != 0 && src[size-1]>>uint(rem) != 0 {
		return nil, 0, errors.New("bitmap: padding bits set")
	}
	return b, size, nil
}
