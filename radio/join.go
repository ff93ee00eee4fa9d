package radio

import "sync"

// joinLatch admits one background join at a time.
type joinLatch struct {
	mtx  sync.Mutex
	busy bool
}

// begin claims the latch. It returns false while a join is running.
func (l *joinLatch) begin() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.busy {
		return false
	}

	l.busy = true

	return true
}

// finish releases the latch and only then reports the outcome of the
// join. A handler reacting to the outcome may begin the next join right
// away.
func (l *joinLatch) finish(report func()) {
	l.mtx.Lock()
	l.busy = false
	l.mtx.Unlock()

	report()
}
