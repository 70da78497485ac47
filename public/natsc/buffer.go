package natsc

import "github.com/fujin-io/natsc/internal/common/pool"

// buffer accumulates protocol bytes before they hit the socket. It
// starts on a caller-provided backing array and moves to a pooled
// heap allocation only when an append would overflow it.
type buffer struct {
	b      []byte
	pooled bool
}

func newBuffer(backend []byte) *buffer {
	return &buffer{b: backend[:0]}
}

func (w *buffer) Len() int { return len(w.b) }

func (w *buffer) Bytes() []byte { return w.b }

func (w *buffer) Reset() { w.b = w.b[:0] }

func (w *buffer) Append(p []byte) {
	if len(w.b)+len(p) > cap(w.b) {
		nb := pool.Get(2 * (len(w.b) + len(p)))
		nb = append(nb, w.b...)
		if w.pooled {
			pool.Put(w.b)
		}
		w.b = nb
		w.pooled = true
	}
	w.b = append(w.b, p...)
}

func (w *buffer) AppendString(s string) {
	if len(w.b)+len(s) > cap(w.b) {
		nb := pool.Get(2 * (len(w.b) + len(s)))
		nb = append(nb, w.b...)
		if w.pooled {
			pool.Put(w.b)
		}
		w.b = nb
		w.pooled = true
	}
	w.b = append(w.b, s...)
}

// Release returns any pooled allocation, leaving the buffer unusable.
func (w *buffer) Release() {
	if w.pooled {
		pool.Put(w.b)
		w.pooled = false
	}
	w.b = nil
}
