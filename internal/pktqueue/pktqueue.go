// Package pktqueue implements a bounded, drop-oldest outgoing packet FIFO:
// a singly linked list with head/tail pointers and an atomically
// maintained count, used as each client's outgoing audio queue. Node
// allocation is pooled via sync.Pool.
package pktqueue

import (
	"sync"
	"sync/atomic"

	"github.com/zfogg/ascii-chat/internal/wire"
)

// Packet is one queued outbound packet.
type Packet struct {
	Header  wire.Header
	Payload []byte
}

type node struct {
	pkt  Packet
	next *node
}

// Stats are the atomically-maintained queue counters.
type Stats struct {
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
}

// Queue is a bounded FIFO with drop-oldest overflow behavior.
type Queue struct {
	maxSize int
	pool    sync.Pool

	mu   sync.Mutex
	head *node
	tail *node

	count     atomic.Int64
	enqueued  atomic.Uint64
	dequeued  atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	notEmptyC chan struct{} // closed and replaced on every enqueue to wake waiters
}

// New creates a Queue with the given maximum size.
func New(maxSize int) *Queue {
	q := &Queue{maxSize: maxSize}
	q.pool.New = func() any { return &node{} }
	q.notEmptyC = make(chan struct{})
	return q
}

// Enqueue adds a packet. If the queue is at capacity, the head (oldest)
// element is dropped first — decide-and-act happen under the same lock, so
// there is no TOCTOU window between checking fullness and acting on it.
func (q *Queue) Enqueue(pkt Packet) {
	if q.closed.Load() {
		return
	}

	n := q.pool.Get().(*node)
	n.pkt = pkt
	n.next = nil

	q.mu.Lock()
	if q.count.Load() >= int64(q.maxSize) {
		q.dropHeadLocked()
	}
	if q.tail == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.count.Add(1)
	q.enqueued.Add(1)

	old := q.notEmptyC
	q.notEmptyC = make(chan struct{})
	q.mu.Unlock()

	close(old)
}

// dropHeadLocked removes the head node. Caller must hold q.mu.
func (q *Queue) dropHeadLocked() {
	if q.head == nil {
		return
	}
	dropped := q.head
	q.head = q.head.next
	if q.head == nil {
		q.tail = nil
	}
	q.count.Add(-1)
	q.dropped.Add(1)
	dropped.next = nil
	q.pool.Put(dropped)
}

// TryDequeue removes and returns the oldest packet, or (Packet{}, false) if
// the queue is empty.
func (q *Queue) TryDequeue() (Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (Packet, bool) {
	if q.head == nil {
		return Packet{}, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.count.Add(-1)
	q.dequeued.Add(1)
	pkt := n.pkt
	n.next = nil
	n.pkt = Packet{}
	q.pool.Put(n)
	return pkt, true
}

// DequeueBlocking waits up to timeout for a packet to become available. It
// returns immediately (false) once the queue is shut down.
func (q *Queue) DequeueBlocking(timeout <-chan struct{}) (Packet, bool) {
	for {
		if pkt, ok := q.TryDequeue(); ok {
			return pkt, true
		}
		if q.closed.Load() {
			return Packet{}, false
		}
		q.mu.Lock()
		wait := q.notEmptyC
		q.mu.Unlock()
		select {
		case <-wait:
		case <-timeout:
			return Packet{}, false
		}
	}
}

// Size returns the current element count.
func (q *Queue) Size() int {
	return int(q.count.Load())
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Dropped:  q.dropped.Load(),
	}
}

// Shutdown marks the queue closed: further Enqueue calls are no-ops and any
// blocked DequeueBlocking waiter wakes promptly.
func (q *Queue) Shutdown() {
	if q.closed.Swap(true) {
		return
	}
	q.mu.Lock()
	old := q.notEmptyC
	q.notEmptyC = make(chan struct{})
	q.mu.Unlock()
	close(old)
}
