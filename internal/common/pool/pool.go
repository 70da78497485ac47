package pool

import (
	"sync"
)

// Size classes are powers of two; a Get picks the smallest class that
// fits and returns a zero-length slice with at least that capacity.
const (
	minClassBits = 5  // 32B
	maxClassBits = 22 // 4MB
)

var classes [maxClassBits - minClassBits + 1]sync.Pool

func init() {
	for i := range classes {
		size := 1 << (minClassBits + i)
		classes[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
}

func classFor(size int) int {
	c := 0
	for (1 << (minClassBits + c)) < size {
		c++
	}
	return c
}

// Get returns a zero-length byte slice with capacity of at least size.
// Slices larger than the biggest class are allocated directly and will
// not be recycled by Put.
func Get(size int) []byte {
	if size > 1<<maxClassBits {
		return make([]byte, 0, size)
	}
	bp := classes[classFor(size)].Get().(*[]byte)
	return (*bp)[:0]
}

// Put recycles a slice previously obtained from Get. Safe to call with
// slices from elsewhere: anything without a matching class capacity is
// dropped.
func Put(b []byte) {
	if b == nil {
		return
	}
	c := cap(b)
	if c < 1<<minClassBits || c > 1<<maxClassBits || c&(c-1) != 0 {
		return
	}
	b = b[:0]
	classes[classFor(c)].Put(&b)
}
