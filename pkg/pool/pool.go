// Package pool provides typed object pooling for the pipeline's hot paths.
// It wraps sync.Pool with hit/miss statistics so pooling behavior stays
// observable under load.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe object pool. Safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	stats struct {
		allocated int64
		hits      int64
	}
}

// New creates a pool backed by the given factory. The factory runs whenever
// the pool is empty.
func New[T any](factory func() T) *Pool[T] {
	p := &Pool[T]{}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return factory()
	}
	return p
}

// Get returns a pooled object, allocating one if none is available. The
// caller owns the object until it is returned with Put and must reset any
// state it relies on.
func (p *Pool[T]) Get() T {
	obj := p.pool.Get().(T)
	atomic.AddInt64(&p.stats.hits, 1)
	return obj
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.pool.Put(obj)
}

// Stats reports total Get calls and how many required a fresh allocation.
func (p *Pool[T]) Stats() (gets, allocated int64) {
	return atomic.LoadInt64(&p.stats.hits), atomic.LoadInt64(&p.stats.allocated)
}
