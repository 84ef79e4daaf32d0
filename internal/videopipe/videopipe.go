// Package videopipe runs the server-side video render goroutine: one per
// client, each ticking independently, reading its target's sources,
// invoking asciirender.Render to composite that client's grid, and
// committing the result into that client's outgoing video double-buffer.
package videopipe

import (
	"image"
	"sync"
	"time"

	"github.com/zfogg/ascii-chat/internal/asciirender"
	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/videobuf"
)

var log = logging.New("videopipe")

// FrameSource supplies the latest captured frame for one client slot, or
// nil if that client has not produced a frame yet.
type FrameSource func() image.Image

// Target is one client's render destination: the grid slot order to
// composite for them, their declared terminal size/color mode, and the
// double-buffer to commit the result into.
type Target struct {
	ClientID  uint32
	Sources   []FrameSource
	Width     int
	Height    int
	ColorMode asciirender.ColorMode
	Buffer    *videobuf.DoubleBuffer
}

// Pipeline is the render-target registry shared by every client's render
// goroutine: each goroutine looks up its own target fresh on every tick, so
// roster/size changes made through SetTarget apply without restarting it.
type Pipeline struct {
	mu       sync.RWMutex
	targets  map[uint32]*Target
	interval time.Duration
}

// New creates a render pipeline ticking at interval (the default render
// rate is 60 Hz, i.e. ~16.6ms).
func New(interval time.Duration) *Pipeline {
	return &Pipeline{targets: make(map[uint32]*Target), interval: interval}
}

// SetTarget registers or replaces a client's render target.
func (p *Pipeline) SetTarget(t *Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[t.ClientID] = t
}

// RemoveTarget drops a client's render target.
func (p *Pipeline) RemoveTarget(clientID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.targets, clientID)
}

// Run renders clientID's registered target once per tick until stop is
// closed. The caller starts one Run goroutine per connected client, so one
// client's composite work can never delay another's.
func (p *Pipeline) Run(clientID uint32, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.renderOnce(clientID)
		}
	}
}

func (p *Pipeline) renderOnce(clientID uint32) {
	p.mu.RLock()
	t := p.targets[clientID]
	p.mu.RUnlock()
	if t == nil {
		return
	}

	snap := asciirender.Snapshot{Sources: make([]asciirender.Source, len(t.Sources))}
	for i, fs := range t.Sources {
		snap.Sources[i] = asciirender.Source{Image: fs()}
	}
	result := asciirender.Render(snap, t.Width, t.Height, t.ColorMode)

	back := t.Buffer.BeginWrite(len(result.Bytes))
	copy(back, result.Bytes)
	t.Buffer.Commit(len(result.Bytes), result.ContentHash)
}
