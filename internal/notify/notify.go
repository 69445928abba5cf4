// Package notify fans state snapshots out to subscribers.
package notify

import "sync"

// Set is a set of listeners for values of type T. Notifications are delivered
// one at a time, in subscription order. A listener may call Notify on the set
// it is subscribed to: the value is queued and delivered once the current
// round finishes.
type Set[T any] struct {
	mu         sync.Mutex
	dispatch   sync.Mutex
	next       int
	order      []int
	fns        map[int]func(T)
	pending    []T
	delivering bool
}

// Add registers fn. The returned func removes it; once it returns fn is never
// called again. It must not be called from inside fn.
func (s *Set[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			// wait out a delivery that may already hold fn
			s.dispatch.Lock()
			s.dispatch.Unlock()
		})
	}
}

// Notify delivers v to every listener. When another delivery is in progress
// v is queued behind it and Notify returns without waiting.
func (s *Set[T]) Notify(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			// a listener panicked; drop what is queued so the set stays usable
			s.mu.Lock()
			s.pending = nil
			s.delivering = false
			s.mu.Unlock()
		}
	}()
	for s.deliverNext() {
	}
	finished = true
}

// deliverNext hands the oldest queued value to the listeners. It reports false
// once the queue is empty.
func (s *Set[T]) deliverNext() bool {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if len(s.pending) == 0 {
		s.delivering = false
		s.mu.Unlock()
		return false
	}
	v := s.pending[0]
	var zero T
	s.pending[0] = zero
	s.pending = s.pending[1:]
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	return true
}

func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
