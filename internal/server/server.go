// Package server assembles the server side of the conferencing protocol
// into one object: accept connections, run the handshake, register a
// client.Record, and hang its four per-client goroutines (render,
// audio-render, send, receive) off the shared video/audio pipeline
// registries, broadcasting SERVER_STATE on every join/leave.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zfogg/ascii-chat/internal/asciirender"
	"github.com/zfogg/ascii-chat/internal/audiopipe"
	"github.com/zfogg/ascii-chat/internal/client"
	"github.com/zfogg/ascii-chat/internal/config"
	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/handshake"
	"github.com/zfogg/ascii-chat/internal/keepalive"
	"github.com/zfogg/ascii-chat/internal/lifecycle"
	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/mixer"
	"github.com/zfogg/ascii-chat/internal/opuscodec"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/recv"
	"github.com/zfogg/ascii-chat/internal/sched"
	"github.com/zfogg/ascii-chat/internal/transport"
	"github.com/zfogg/ascii-chat/internal/videobuf"
	"github.com/zfogg/ascii-chat/internal/videopipe"
	"github.com/zfogg/ascii-chat/internal/wire"
)

var log = logging.New("server")

// frameSamples is the fixed per-channel Opus frame size used server-wide:
// 20ms @ 48kHz.
const frameSamples = 960

// serverStateWire is the SERVER_STATE broadcast payload.
type serverStateWire struct {
	ClientIDs []uint32 `json:"client_ids"`
}

// imageStore holds each client's most recently received captured frame,
// read by the video pipeline's per-target FrameSource closures.
type imageStore struct {
	mu     sync.RWMutex
	frames map[uint32]image.Image
}

func newImageStore() *imageStore {
	return &imageStore{frames: make(map[uint32]image.Image)}
}

func (s *imageStore) Set(id uint32, img image.Image) {
	s.mu.Lock()
	s.frames[id] = img
	s.mu.Unlock()
}

func (s *imageStore) Get(id uint32) image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames[id]
}

func (s *imageStore) Delete(id uint32) {
	s.mu.Lock()
	delete(s.frames, id)
	s.mu.Unlock()
}

// Server owns the client registry and the shared video/audio pipelines.
type Server struct {
	cfg config.Config

	clients *client.Manager
	images  *imageStore
	mixer   *mixer.Mixer
	video   *videopipe.Pipeline
	audio   *audiopipe.Pipeline
	nextID  atomic.Uint32
}

// New builds a server ready to Serve on a listener.
func New(cfg config.Config) *Server {
	codecCfg := opuscodec.DefaultConfig()
	channels := codecCfg.Channels
	// Each mixer ring holds about 500ms of interleaved samples.
	m := mixer.New(codecCfg.SampleRate / 2 * channels)
	return &Server{
		cfg:     cfg,
		clients: client.NewManager(),
		images:  newImageStore(),
		mixer:   m,
		video:   videopipe.New(time.Second / 60),
		audio:   audiopipe.New(m, 20*time.Millisecond, frameSamples, channels),
	}
}

// Serve accepts connections on ln until ctx is canceled. Render and
// audio-render work happen on per-client goroutines started inside
// handleConn, not here.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("server: accept: %w", errs.ErrNetwork)
			}
		}
		go s.handleConn(ctx, transport.NewStream(conn))
	}
}

// wsUpgrader upgrades an HTTP request to a WebSocket connection for
// ServeWS. Origin checking is left to a reverse proxy in front of this
// server, matching how the stream listener trusts its network perimeter.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS runs the server over WebSocket instead of raw TCP: each HTTP
// upgrade request becomes one client connection, framed and reassembled by
// transport.FramedWS rather than relying on TCP's byte stream.
func (s *Server) ServeWS(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("websocket upgrade failed: %v", err)
			return
		}
		go s.handleConn(ctx, transport.NewFramedWS(conn, transport.RoleServer))
	})
	httpServer := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve websocket: %w", errs.ErrNetwork)
	}
	return nil
}

// handleConn drives one client connection from handshake through teardown.
func (s *Server) handleConn(ctx context.Context, t transport.Transport) {
	id := s.nextID.Add(1)

	result, err := handshake.RunServer(t, 0, id)
	if err != nil {
		log.Warnf("client %d: handshake failed: %v", id, err)
		_ = t.Close()
		return
	}
	t.SetBox(result.Box)

	record := &client.Record{
		ID:            id,
		Capabilities:  result.Capabilities,
		OutgoingVideo: videobuf.New(),
		OutgoingAudio: pktqueue.New(s.cfg.Mixer.AudioQueueCapacity),
		Box:           result.Box,
	}
	record.Active.Store(true)
	record.CryptoReady.Store(true)

	s.clients.Add(record)
	s.mixer.AddSource(id)
	s.refreshVideoTargets()
	s.broadcastServerState()

	defer func() {
		s.clients.Remove(id)
		s.mixer.RemoveSource(id)
		s.video.RemoveTarget(id)
		s.audio.RemoveListener(id)
		s.images.Delete(id)
		s.refreshVideoTargets()
		s.broadcastServerState()
		_ = t.Close()
	}()

	codec, err := opuscodec.New(opuscodec.DefaultConfig())
	if err != nil {
		log.Warnf("client %d: opus init failed: %v", id, err)
		return
	}

	if !s.cfg.Server.NoAudioMixer {
		s.audio.SetListener(&audiopipe.Listener{
			ClientID:     id,
			Codec:        codec,
			OutQueue:     record.OutgoingAudio,
			NextSequence: record.NextSequence,
		})
	}

	// One render and one audio-render goroutine per client: each ticks
	// independently against this client's own target/listener so one
	// client's composite or encode work never blocks another's.
	var renderWG, audioRenderWG, sendWG, receiveWG sync.WaitGroup
	ctrl := lifecycle.New(lifecycle.Handles{
		Render:      &renderWG,
		AudioRender: &audioRenderWG,
		Send:        &sendWG,
		Receive:     &receiveWG,
	})
	_ = ctrl.Advance(lifecycle.StateActive)

	renderStop := make(chan struct{})
	renderWG.Add(1)
	go func() {
		defer renderWG.Done()
		s.video.Run(id, renderStop)
	}()

	audioRenderStop := make(chan struct{})
	audioRenderWG.Add(1)
	go func() {
		defer audioRenderWG.Done()
		s.audio.Run(id, audioRenderStop)
	}()

	schedStop := make(chan struct{})
	sendWG.Add(1)
	go func() {
		defer sendWG.Done()
		sc := &sched.Scheduler{
			ClientID:      id,
			Sender:        t,
			AudioQueue:    record.OutgoingAudio,
			VideoBuffer:   record.OutgoingVideo,
			VideoInterval: time.Second / 60,
			NextSequence:  record.NextSequence,
		}
		sc.Run(schedStop)
	}()

	ka := keepalive.New(
		time.Duration(s.cfg.Timeouts.ProbeIntervalSec)*time.Second,
		s.cfg.Timeouts.MissedProbes,
		func() error { return t.Send(wire.TypePing, record.NextSequence(), id, nil) },
		func() {
			log.Warnf("client %d: keepalive exhausted, tearing down", id)
			record.ConnectionLost.Store(true)
			_ = t.Close()
		},
	)
	ka.Start()
	defer ka.Stop()

	recvStop := make(chan struct{})
	var recvStopOnce sync.Once
	closeRecvStop := func() { recvStopOnce.Do(func() { close(recvStop) }) }

	receiveWG.Add(1)
	go func() {
		defer receiveWG.Done()
		recv.Loop(t, id, recv.Handlers{
			OnImageFrame: func(cid uint32, payload []byte) {
				img, err := wire.DecodeImageFrame(payload)
				if err != nil {
					return
				}
				s.images.Set(cid, img)
			},
			OnAudio: func(cid uint32, payload []byte) {
				pcm, err := codec.Decode(payload, frameSamples)
				if err != nil {
					return
				}
				s.mixer.Submit(cid, pcm)
			},
			OnPing: func(cid uint32) {
				_ = t.Send(wire.TypePong, record.NextSequence(), cid, nil)
			},
			OnPong: func(uint32) {
				ka.RecordPong()
			},
			OnClientLeave: func(uint32) {
				closeRecvStop()
			},
			OnProtocolError: func(err error) {
				log.Warnf("client %d: protocol error: %v", id, err)
				closeRecvStop()
			},
			OnConnectionLost: func(err error) {
				record.ConnectionLost.Store(true)
				closeRecvStop()
			},
		}, recvStop)
	}()

	select {
	case <-ctx.Done():
	case <-recvStop:
	}
	close(schedStop)
	close(renderStop)
	close(audioRenderStop)
	record.ShuttingDown.Store(true)
	closeRecvStop()
	_ = t.Close()
	ctrl.Teardown()
}

// refreshVideoTargets rebuilds every client's render target so each one's
// grid excludes its own feed and includes every other connected client's
// most recently received frame.
func (s *Server) refreshVideoTargets() {
	ids := s.clients.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.clients.Range(func(r *client.Record) {
		sources := make([]videopipe.FrameSource, 0, len(ids))
		for _, otherID := range ids {
			if otherID == r.ID {
				continue
			}
			oid := otherID
			sources = append(sources, func() image.Image { return s.images.Get(oid) })
		}
		s.video.SetTarget(&videopipe.Target{
			ClientID:  r.ID,
			Sources:   sources,
			Width:     r.Capabilities.Width,
			Height:    r.Capabilities.Height,
			ColorMode: asciirender.ColorMode(r.Capabilities.ColorMode),
			Buffer:    r.OutgoingVideo,
		})
	})
}

// broadcastServerState pushes the current roster to every connected client
// by enqueueing SERVER_STATE on that client's outgoing audio queue, which
// its scheduler drains ahead of the rate-capped video path, so the roster
// update does not wait on the video rate cap.
func (s *Server) broadcastServerState() {
	ids := s.clients.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	payload, err := json.Marshal(serverStateWire{ClientIDs: ids})
	if err != nil {
		log.Warnf("marshal server state: %v", err)
		return
	}
	s.clients.Range(func(r *client.Record) {
		r.OutgoingAudio.Enqueue(pktqueue.Packet{
			Header:  wire.NewHeader(wire.TypeServerState, r.NextSequence(), r.ID, payload),
			Payload: payload,
		})
	})
}
