// Package audiopipe runs the server-side audio mix/encode goroutine: one
// per client, each ticking independently, mixing that client's n-1 audio
// feed, Opus-encoding it, and enqueueing it onto that client's outgoing
// audio queue.
package audiopipe

import (
	"sync"
	"time"

	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/mixer"
	"github.com/zfogg/ascii-chat/internal/opuscodec"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/wire"
)

var log = logging.New("audiopipe")

// Listener is one client's mix-and-encode destination.
type Listener struct {
	ClientID     uint32
	Codec        *opuscodec.Codec
	OutQueue     *pktqueue.Queue
	NextSequence func() uint32
}

// Pipeline is the listener registry shared by every client's mix/encode
// goroutine, ticking on a fixed interval (the default is a 20ms / 50Hz
// audio frame interval).
type Pipeline struct {
	mixer        *mixer.Mixer
	interval     time.Duration
	frameSamples int
	channels     int

	mu        sync.RWMutex
	listeners map[uint32]*Listener
}

// New creates an audio pipeline. frameSamples is the per-channel Opus frame
// size (e.g. 960 samples = 20ms @ 48kHz); channels is the interleaved
// channel count the mixer must pull per tick (2 for stereo) so the samples
// handed to Codec.Encode are a complete interleaved frame.
func New(m *mixer.Mixer, interval time.Duration, frameSamples, channels int) *Pipeline {
	return &Pipeline{
		mixer:        m,
		interval:     interval,
		frameSamples: frameSamples,
		channels:     channels,
		listeners:    make(map[uint32]*Listener),
	}
}

// SetListener registers or replaces a client's mix/encode destination.
func (p *Pipeline) SetListener(l *Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[l.ClientID] = l
}

// RemoveListener drops a client's mix/encode destination.
func (p *Pipeline) RemoveListener(clientID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, clientID)
}

// Run mixes and Opus-encodes audio for clientID's registered listener once
// per tick until stop is closed. The caller starts one Run goroutine per
// connected client, so one listener's mix/encode work can never delay
// another's.
func (p *Pipeline) Run(clientID uint32, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tickOnce(clientID)
		}
	}
}

func (p *Pipeline) tickOnce(clientID uint32) {
	p.mu.RLock()
	l := p.listeners[clientID]
	p.mu.RUnlock()
	if l == nil {
		return
	}

	pcm := p.mixer.MixFor(l.ClientID, p.frameSamples*p.channels)
	encoded, err := l.Codec.Encode(pcm)
	if err != nil {
		log.Warnf("client %d: opus encode failed: %v", l.ClientID, err)
		return
	}
	seq := l.NextSequence()
	l.OutQueue.Enqueue(pktqueue.Packet{
		Header:  wire.NewHeader(wire.TypeAudio, seq, l.ClientID, encoded),
		Payload: encoded,
	})
}
