package observability

import "sync"

// Signal is a publish/subscribe point with explicit subscription handles.
// The zero value is ready to use.
type Signal[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(T)
}

// Connect registers fn and returns the handle that removes it.
func (s *Signal[T]) Connect(fn func(T)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[uint64]func(T))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return &Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}}
}

// Emit calls every connected handler synchronously, in no particular order.
// Handlers may connect or disconnect while being called.
func (s *Signal[T]) Emit(v T) {
	s.mu.RLock()
	if len(s.subs) == 0 {
		s.mu.RUnlock()
		return
	}
	handlers := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of live subscriptions.
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Subscription releases one handler. Close is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscriptions is an ownership scope for a set of handles.
type Subscriptions struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (s *Subscriptions) Add(sub ...*Subscription) {
	s.mu.Lock()
	s.subs = append(s.subs, sub...)
	s.mu.Unlock()
}

// Close releases every handle in the scope.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
