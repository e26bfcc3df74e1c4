package store

import "sync"

// Notifier fans committed changes out to subscribers. Handlers run
// synchronously on the writer's goroutine and must not block.
type Notifier struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Change)
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	if n.handlers == nil {
		n.handlers = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.handlers[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.handlers, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers change to every current subscriber.
func (n *Notifier) Publish(change Change) {
	n.mu.RLock()
	handlers := make([]func(Change), 0, len(n.handlers))
	for _, fn := range n.handlers {
		handlers = append(handlers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range handlers {
		fn(change)
	}
}

// Len returns the number of active subscribers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}
