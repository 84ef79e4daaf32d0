// Package client holds the server's per-connected-client registry: one
// Record per client carrying its capability declaration, lifecycle flags,
// sequence counter, and the outgoing buffers/queues the per-client
// goroutines operate on.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/zfogg/ascii-chat/internal/cryptobox"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/videobuf"
)

// Capabilities is the capability set a client declares at handshake time
// (carried in the CLIENT_JOIN negotiation).
type Capabilities struct {
	Video     bool
	Audio     bool
	Width     int
	Height    int
	ColorMode int
}

// Record is one connected client's full server-side state.
type Record struct {
	ID           uint32
	Capabilities Capabilities

	Active         atomic.Bool
	ShuttingDown   atomic.Bool
	CryptoReady    atomic.Bool
	ConnectionLost atomic.Bool

	sequence atomic.Uint32

	OutgoingVideo *videobuf.DoubleBuffer
	OutgoingAudio *pktqueue.Queue
	Box           *cryptobox.Box
}

// NextSequence returns the next outbound sequence number for this client:
// one monotonic counter shared by every packet type sent to it, not one
// counter per packet type.
func (r *Record) NextSequence() uint32 {
	return r.sequence.Add(1)
}

// Event describes a client registry change, broadcast to listeners so the
// server can assemble SERVER_STATE packets.
type Event struct {
	Type     string // "join" or "leave"
	ClientID uint32
	Record   *Record
}

// Manager is the RWMutex-guarded registry of connected clients.
type Manager struct {
	mu        sync.RWMutex
	records   map[uint32]*Record
	listeners []chan Event
}

// NewManager creates an empty client registry.
func NewManager() *Manager {
	return &Manager{
		records: make(map[uint32]*Record),
	}
}

// Add registers a new client record and notifies listeners.
func (m *Manager) Add(r *Record) {
	m.mu.Lock()
	m.records[r.ID] = r
	m.mu.Unlock()
	m.notify(Event{Type: "join", ClientID: r.ID, Record: r})
}

// Remove drops a client record and notifies listeners.
func (m *Manager) Remove(id uint32) {
	m.mu.Lock()
	_, ok := m.records[id]
	delete(m.records, id)
	m.mu.Unlock()
	if ok {
		m.notify(Event{Type: "leave", ClientID: id})
	}
}

// Get returns the record for id, if connected.
func (m *Manager) Get(id uint32) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

// Range calls fn for every connected client. fn must not call back into
// Manager methods that take the write lock.
func (m *Manager) Range(fn func(*Record)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		fn(r)
	}
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// IDs returns the connected client IDs in no particular order.
func (m *Manager) IDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint32, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe registers a buffered listener for join/leave events.
func (m *Manager) Subscribe() chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 16)
	m.listeners = append(m.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a previously-registered listener channel.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.listeners {
		if l == ch {
			close(l)
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Manager) notify(evt Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}
