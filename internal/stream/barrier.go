package stream

import "sync"

// barrier is a cyclic rendezvous for the worker pool: the sweep's only safe
// point for republishing loader state.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	width int
	count int
	phase uint64
}

func newBarrier(width int) *barrier {
	b := &barrier{width: width}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until width goroutines have arrived, then releases them all.
func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.count == b.width {
		b.count = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	phase := b.phase
	for b.phase == phase {
		b.cond.Wait()
	}
}
