// Package sched implements each client's outgoing send scheduler: audio
// packets always go out as soon as they're queued (low-latency priority),
// while outgoing video frames are rate-capped to one per video interval,
// pulled from the client's videobuf.DoubleBuffer only when it's time to
// send one.
package sched

import (
	"time"

	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/videobuf"
	"github.com/zfogg/ascii-chat/internal/wire"
)

var log = logging.New("sched")

// Sender is the minimal transport surface the scheduler writes to.
type Sender interface {
	Send(typ wire.Type, sequence, clientID uint32, payload []byte) error
}

// Scheduler drains one client's outgoing audio queue and rate-caps its
// outgoing video frames onto a shared Sender. The server uses it to send
// rendered ASCII_FRAMEs; the client uses the same loop to send captured
// IMAGE_FRAMEs, distinguished by VideoType.
type Scheduler struct {
	ClientID      uint32
	Sender        Sender
	AudioQueue    *pktqueue.Queue
	VideoBuffer   *videobuf.DoubleBuffer
	VideoInterval time.Duration
	NextSequence  func() uint32
	// VideoType is the packet type sent for each rate-capped video frame.
	// Zero defaults to TypeASCIIFrame (the server's outgoing direction).
	VideoType wire.Type

	lastVideoHash uint32
	haveSentVideo bool
}

// audioPollInterval bounds how long each loop iteration waits for an audio
// packet before re-checking the video ticker and stop signal.
const audioPollInterval = 2 * time.Millisecond

// Run drains audio and sends rate-capped video until stop is closed.
func (s *Scheduler) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.VideoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sendVideoIfDue()
		default:
		}

		pkt, ok := s.AudioQueue.DequeueBlocking(time.After(audioPollInterval))
		if !ok {
			continue
		}
		if err := s.Sender.Send(pkt.Header.Type, pkt.Header.Sequence, pkt.Header.ClientID, pkt.Payload); err != nil {
			log.Warnf("client %d: send audio packet failed: %v", s.ClientID, err)
		}
	}
}

// sendVideoIfDue snapshots the current front video buffer and sends it,
// skipping the send entirely if nothing has been committed yet (duplicate
// suppression already happened at commit time in videobuf).
func (s *Scheduler) sendVideoIfDue() {
	frame, ok := s.VideoBuffer.Snapshot()
	if !ok {
		return
	}
	if s.haveSentVideo && frame.Hash == s.lastVideoHash {
		return
	}
	videoType := s.VideoType
	if videoType == 0 {
		videoType = wire.TypeASCIIFrame
	}
	seq := s.NextSequence()
	if err := s.Sender.Send(videoType, seq, s.ClientID, frame.Bytes); err != nil {
		log.Warnf("client %d: send video frame failed: %v", s.ClientID, err)
		return
	}
	s.lastVideoHash = frame.Hash
	s.haveSentVideo = true
}
