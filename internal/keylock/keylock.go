// Package keylock serializes work per key inside one process using a fixed
// array of mutex stripes.
package keylock

import (
	"context"
	"hash/fnv"
)

const defaultStripes = 256

// Striped maps keys onto a fixed set of single-slot semaphores. Two keys may
// share a stripe; that only costs throughput, never correctness.
type Striped struct {
	stripes []chan struct{}
}

func New(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	s := &Striped{stripes: make([]chan struct{}, n)}
	for i := range s.stripes {
		s.stripes[i] = make(chan struct{}, 1)
	}
	return s
}

// Lock acquires the stripe for key, giving up when ctx is done. The returned
// func releases it.
func (s *Striped) Lock(ctx context.Context, key string) (func(), error) {
	ch := s.stripes[s.index(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
