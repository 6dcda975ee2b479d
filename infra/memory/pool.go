package memory

import "sync"

// Pool is a typed sync.Pool. Objects are reset when they come back, so
// Get never hands out stale contents.
type Pool[T any] struct {
	p     *sync.Pool
	reset func(*T)
}

// NewPool builds a pool. reset may be nil.
func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}

// NewBufferPool pools byte slices with the given starting capacity.
// Buffers that grew past maxCap are dropped instead of kept.
func NewBufferPool(capacity, maxCap int) *Pool[[]byte] {
	bp := &Pool[[]byte]{
		p: &sync.Pool{
			New: func() any {
				b := make([]byte, 0, capacity)
				return &b
			},
		},
	}
	bp.reset = func(b *[]byte) {
		if cap(*b) > maxCap {
			*b = make([]byte, 0, capacity)
			return
		}
		*b = (*b)[:0]
	}
	return bp
}
