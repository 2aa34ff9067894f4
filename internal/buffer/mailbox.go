// Package buffer provides the queue behind feed subscriptions.
package buffer

import (
	"sync"
)

// Mailbox delivers items to one consumer without ever blocking the producer.
//
// Items queue without bound and a pump goroutine forwards them, in order, to the channel
// returned by Receive. Close lets the consumer drain what is queued; Stop abandons the queue,
// so a consumer that stopped reading never strands the pump.
//
//	mb := buffer.NewMailbox[Update]()
//	go func() {
//	    for u := range mb.Receive() {
//	        render(u)
//	    }
//	}()
//	mb.Send(u) // never blocks
//	mb.Close()
type Mailbox[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	stopped bool

	wake chan struct{}
	stop chan struct{}
	out  chan T
}

// NewMailbox creates a Mailbox and starts its pump.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan T),
	}
	go m.pump()
	return m
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)
	for {
		batch, closed := m.take()
		for _, item := range batch {
			select {
			case <-m.stop:
				return
			default:
			}
			select {
			case m.out <- item:
			case <-m.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-m.wake:
		case <-m.stop:
			return
		}
	}
}

// take swaps out everything queued so far.
func (m *Mailbox[T]) take() ([]T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.items
	m.items = nil
	return batch, m.closed
}

// Send queues item. It never blocks and is a no-op after Close or Stop.
func (m *Mailbox[T]) Send(item T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Receive returns the delivery channel. It closes after Close once everything queued has been
// delivered, or right away after Stop.
func (m *Mailbox[T]) Receive() <-chan T {
	return m.out
}

// Close stops accepting items. Queued items are still delivered. Safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Stop closes the mailbox and discards undelivered items. Safe to call more than once.
func (m *Mailbox[T]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
}

// Len returns the number of queued items not yet taken by the pump.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Closed reports whether Close or Stop was called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
