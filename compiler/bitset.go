package compiler

import "math/bits"

// bitSet is a compact set of small non-negative integers (variable indices).
type bitSet struct {
	bits []uint64
}

func newBitSet(n int) *bitSet {
	return &bitSet{bits: make([]uint64, (n+63)/64)}
}

func (b *bitSet) set(i int) {
	word := i / 64
	if word >= len(b.bits) {
		b.grow(word + 1)
	}
	b.bits[word] |= 1 << (uint(i) % 64)
}

func (b *bitSet) clear(i int) {
	if word := i / 64; word < len(b.bits) {
		b.bits[word] &^= 1 << (uint(i) % 64)
	}
}

func (b *bitSet) has(i int) bool {
	word := i / 64
	if word >= len(b.bits) {
		return false
	}
	return b.bits[word]&(1<<(uint(i)%64)) != 0
}

// union adds the elements of other to b and reports whether b changed.
func (b *bitSet) union(other *bitSet) (changed bool) {
	if len(other.bits) > len(b.bits) {
		b.grow(len(other.bits))
	}
	for i, w := range other.bits {
		if merged := b.bits[i] | w; merged != b.bits[i] {
			b.bits[i] = merged
			changed = true
		}
	}
	return changed
}

// minus removes the elements of other from b.
func (b *bitSet) minus(other *bitSet) {
	for i := range b.bits {
		if i < len(other.bits) {
			b.bits[i] &^= other.bits[i]
		}
	}
}

func (b *bitSet) copy() *bitSet {
	c := &bitSet{bits: make([]uint64, len(b.bits))}
	copy(c.bits, b.bits)
	return c
}

func (b *bitSet) count() (n int) {
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// slice returns the elements of the set in increasing order.
func (b *bitSet) slice() []int {
	var out []int
	for i, w := range b.bits {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, i*64+bit)
			w &= w - 1
		}
	}
	return out
}

func (b *bitSet) grow(n int) {
	grown := make([]uint64, n)
	copy(grown, b.bits)
	b.bits = grown
}
