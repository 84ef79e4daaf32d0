// Package keepalive implements the per-client PING/PONG sub-loop: send a
// PING every probe interval, and mark the client connection lost after a
// configurable number of consecutive missed probes.
package keepalive

import (
	"sync"
	"sync/atomic"
	"time"
)

// Monitor sends periodic pings over a caller-supplied transport and
// declares a client unreachable after too many consecutive misses.
type Monitor struct {
	probeInterval time.Duration
	missedLimit   int

	sendPing      func() error
	onUnreachable func()

	missed        atomic.Int32
	awaitingReply atomic.Bool

	mu      sync.Mutex
	stopped bool
	stopC   chan struct{}
	doneC   chan struct{}
}

// New creates a Monitor. sendPing is invoked every probeInterval; if it
// returns an error, or if RecordPong isn't called within the interval, the
// miss counter increments. Once missed reaches missedLimit, onUnreachable
// fires exactly once.
func New(probeInterval time.Duration, missedLimit int, sendPing func() error, onUnreachable func()) *Monitor {
	return &Monitor{
		probeInterval: probeInterval,
		missedLimit:   missedLimit,
		sendPing:      sendPing,
		onUnreachable: onUnreachable,
		stopC:         make(chan struct{}),
		doneC:         make(chan struct{}),
	}
}

// Start launches the probe loop in a new goroutine.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.doneC)
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopC:
			return
		case <-ticker.C:
			// The previous tick's ping went unanswered for a full interval.
			if m.awaitingReply.Load() {
				m.missed.Add(1)
			}

			if err := m.sendPing(); err != nil {
				m.missed.Add(1)
				m.awaitingReply.Store(false)
			} else {
				m.awaitingReply.Store(true)
			}

			if int(m.missed.Load()) >= m.missedLimit {
				if m.onUnreachable != nil {
					m.onUnreachable()
				}
				return
			}
		}
	}
}

// RecordPong marks this round's ping as answered, clearing the miss streak.
func (m *Monitor) RecordPong() {
	m.awaitingReply.Store(false)
	m.missed.Store(0)
}

// MissedCount returns the current consecutive-miss count.
func (m *Monitor) MissedCount() int {
	return int(m.missed.Load())
}

// Stop halts the probe loop. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.stopC)
	<-m.doneC
}
