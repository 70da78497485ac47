package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_CapacityAtLeastRequested(t *testing.T) {
	for _, size := range []int{0, 1, 31, 32, 33, 512, 513, 4096, 1 << 20} {
		b := Get(size)
		assert.Equal(t, 0, len(b))
		assert.GreaterOrEqual(t, cap(b), size, "size %d", size)
	}
}

func TestGet_OversizedAllocatesExact(t *testing.T) {
	size := (1 << maxClassBits) + 1
	b := Get(size)
	assert.Equal(t, size, cap(b))
}

func TestPut_ForeignSliceDropped(t *testing.T) {
	// Neither panics nor recycles: capacity 100 is not a class size.
	Put(make([]byte, 0, 100))
	Put(nil)
}

func TestGetPut_Reuse(t *testing.T) {
	b := Get(64)
	b = append(b, "payload"...)
	Put(b)

	b2 := Get(64)
	assert.Equal(t, 0, len(b2))
	assert.GreaterOrEqual(t, cap(b2), 64)
}
