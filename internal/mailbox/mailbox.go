// Package mailbox provides a blocking single-slot exchange.
//
// Readers call Peek and never empty the slot. A single owner replaces the
// value with a TakeForUpdate followed by a matching Publish; readers arriving
// in between wait for the Publish.
package mailbox

import "sync"

type Mailbox[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	full  bool
}

func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Seeded returns a mailbox already holding v.
func Seeded[T any](v T) *Mailbox[T] {
	m := New[T]()
	m.value = v
	m.full = true
	return m
}

// Publish blocks while the slot is full, then stores v.
func (m *Mailbox[T]) Publish(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.full {
		m.cond.Wait()
	}
	m.value = v
	m.full = true
	m.cond.Broadcast()
}

// Peek blocks until the slot is full and returns the value without removing it.
func (m *Mailbox[T]) Peek() T {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full {
		m.cond.Wait()
	}
	return m.value
}

// TakeForUpdate blocks until the slot is full, then empties it.
func (m *Mailbox[T]) TakeForUpdate() T {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full {
		m.cond.Wait()
	}
	v := m.value
	var zero T
	m.value = zero
	m.full = false
	m.cond.Broadcast()
	return v
}

// TryPeek returns the value if the slot is full, without blocking.
func (m *Mailbox[T]) TryPeek() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.value, m.full
}
