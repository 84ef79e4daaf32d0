// Package mixer implements the server-side "n-1" audio mix: every connected
// client receives the sum of all other clients' audio, never its own. Each
// source fans its samples out into one dedicated ring per listener, so every
// listener's mixing pass reads and consumes its own copy rather than racing
// other listeners over a shared ring.
package mixer

import (
	"sync"

	"github.com/zfogg/ascii-chat/internal/ringbuf"
)

const defaultRingCapacity = 4096

// Mixer owns one ring buffer per (source, listener) pair and produces, for
// any given listener, the mix of every other source's feed.
type Mixer struct {
	mu sync.RWMutex
	// feeds[sourceID][listenerID] is that source's dedicated ring into that
	// listener's mix. A client is registered as both a source and a
	// listener by AddSource, so feeds is fully connected minus the diagonal.
	feeds       map[uint32]map[uint32]*ringbuf.Ring[float32]
	listenerIDs map[uint32]struct{}
	ringCap     int
}

// New creates an empty mixer. ringCapacity is rounded up to a power of two
// by the underlying ring buffer; pass 0 to use the default.
func New(ringCapacity int) *Mixer {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	return &Mixer{
		feeds:       make(map[uint32]map[uint32]*ringbuf.Ring[float32]),
		listenerIDs: make(map[uint32]struct{}),
		ringCap:     ringCapacity,
	}
}

// AddSource registers id as both an audio source and a mix listener, wiring
// a dedicated ring to and from every other already-registered client. It is
// a no-op if id is already registered.
func (m *Mixer) AddSource(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.feeds[id]; exists {
		return
	}

	m.feeds[id] = make(map[uint32]*ringbuf.Ring[float32])
	for otherID := range m.listenerIDs {
		m.feeds[id][otherID] = ringbuf.New[float32](m.ringCap)
	}
	for srcID, byListener := range m.feeds {
		if srcID == id {
			continue
		}
		byListener[id] = ringbuf.New[float32](m.ringCap)
	}
	m.listenerIDs[id] = struct{}{}
}

// RemoveSource drops id as both source and listener, tearing down every
// ring it fed or was fed by, e.g. on client disconnect.
func (m *Mixer) RemoveSource(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.feeds, id)
	delete(m.listenerIDs, id)
	for _, byListener := range m.feeds {
		delete(byListener, id)
	}
}

// Submit fans samples captured from source id out to every listener's
// dedicated ring for that source.
func (m *Mixer) Submit(id uint32, samples []float32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.feeds[id] {
		r.Write(samples)
	}
}

// MixFor returns the n-1 mix for listener id: the sum of the next (oldest)
// n unread samples from every other source's ring dedicated to id, soft-clipped to
// [-1, 1]. Each listener consumes its own ring per source, so concurrent
// MixFor calls for different listeners never contend over the same data. If
// listener id is the only source (or no sources have data), it returns
// silence.
func (m *Mixer) MixFor(id uint32, n int) []float32 {
	out := make([]float32, n)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for srcID, byListener := range m.feeds {
		if srcID == id {
			continue
		}
		r, ok := byListener[id]
		if !ok {
			continue
		}
		samples := r.Read(n)
		for i, s := range samples {
			out[i] += s
		}
	}
	softClip(out)
	return out
}

// SourceCount reports how many sources are currently registered.
func (m *Mixer) SourceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.feeds)
}

// softClip bounds samples to [-1, 1] using a cubic soft-knee so that
// summed audio from many sources doesn't produce harsh digital clipping.
func softClip(samples []float32) {
	const threshold = 0.8
	for i, s := range samples {
		switch {
		case s > threshold:
			samples[i] = threshold + (1-threshold)*tanhApprox((s-threshold)/(1-threshold))
		case s < -threshold:
			samples[i] = -threshold - (1-threshold)*tanhApprox((-s-threshold)/(1-threshold))
		}
		if samples[i] > 1 {
			samples[i] = 1
		}
		if samples[i] < -1 {
			samples[i] = -1
		}
	}
}

// tanhApprox is a cheap rational approximation of tanh for x >= 0, good
// enough for soft-clipping where exact saturation curve shape doesn't matter.
func tanhApprox(x float32) float32 {
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}
