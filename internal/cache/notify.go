package cache

import "sync"

type notification struct {
	listeners []Listener
	snap      Snapshot
}

// notifier is a FIFO of pending listener calls.
//
// Transitions enqueue while holding the store lock; whichever goroutine
// calls drain first delivers the whole queue without holding any lock, so
// a listener can call back into the store. A drain that finds another
// goroutine already delivering returns at once; its items are delivered by
// that goroutine, in order. A panicking listener ends the drain; items
// still queued go out with the next drain.
type notifier struct {
	mu       sync.Mutex
	queue    []notification
	draining bool
}

func (n *notifier) enqueue(item notification) {
	n.mu.Lock()
	n.queue = append(n.queue, item)
	n.mu.Unlock()
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	done := false
	defer func() {
		if !done {
			n.mu.Lock()
			n.draining = false
			n.mu.Unlock()
		}
	}()

	for {
		if len(n.queue) == 0 {
			n.queue = n.queue[:0]
			n.draining = false
			done = true
			n.mu.Unlock()
			return
		}
		item := n.queue[0]
		n.queue[0] = notification{}
		n.queue = n.queue[1:]
		n.mu.Unlock()

		for _, fn := range item.listeners {
			fn(item.snap)
		}

		n.mu.Lock()
	}
}
