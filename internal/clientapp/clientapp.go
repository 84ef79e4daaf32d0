// Package clientapp assembles the client side of the conferencing protocol
// into one object, the mirror image of internal/server: dial, run the
// handshake, open local capture devices, and hang a capture-encode-send
// goroutine and a receive-dispatch goroutine off the resulting transport.
// Terminal rendering is left to the caller via Callbacks; this package only
// produces decoded frames and PCM, never writes to a screen itself.
package clientapp

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zfogg/ascii-chat/internal/asciirender"
	"github.com/zfogg/ascii-chat/internal/capture"
	"github.com/zfogg/ascii-chat/internal/client"
	"github.com/zfogg/ascii-chat/internal/config"
	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/handshake"
	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/opuscodec"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/recv"
	"github.com/zfogg/ascii-chat/internal/sched"
	"github.com/zfogg/ascii-chat/internal/transport"
	"github.com/zfogg/ascii-chat/internal/videobuf"
	"github.com/zfogg/ascii-chat/internal/wire"
)

var log = logging.New("clientapp")

// frameSamples is the fixed Opus frame size used client-side, matching the
// server's: 20ms @ 48kHz.
const frameSamples = 960

// videoSendInterval rate-caps outgoing IMAGE_FRAMEs; the server renders at
// 60Hz but a captured webcam frame rarely changes that fast, so the client
// sends at half that rate.
const videoSendInterval = time.Second / 30

// serverStateWire mirrors the SERVER_STATE broadcast payload.
type serverStateWire struct {
	ClientIDs []uint32 `json:"client_ids"`
}

// Callbacks delivers decoded inbound data to the caller. Any field left nil
// silently drops that packet type. Rendering the ASCII art or playing back
// PCM audio is entirely the caller's responsibility.
type Callbacks struct {
	OnASCIIFrame   func(payload []byte)
	OnAudioFrame   func(pcm []float32)
	OnServerState  func(clientIDs []uint32)
	OnClearConsole func()
}

// App holds one client session: its transport, capture devices (if any),
// and the buffers the send/receive goroutines operate on.
type App struct {
	cfg config.Config

	t        transport.Transport
	caps     client.Capabilities
	videoSrc capture.VideoSource
	audioSrc capture.AudioSource
	codec    *opuscodec.Codec

	videoBuf   *videobuf.DoubleBuffer
	audioQueue *pktqueue.Queue
	sequence   atomic.Uint32
}

// Dial connects to the configured server address, runs the handshake, and
// opens local capture devices (falling back to receive-only if neither
// camera nor microphone is available).
func Dial(cfg config.Config) (*App, error) {
	t, err := dialTransport(cfg)
	if err != nil {
		return nil, err
	}

	vs, as, deviceCaps, err := capture.Devices(cfg.Client.Width, cfg.Client.Height)
	if err != nil {
		log.Warnf("clientapp: no capture devices, running receive-only: %v", err)
	}

	colorMode := asciirender.ColorNone
	if cfg.Client.Color {
		colorMode = asciirender.ColorTrueColor
	}

	declared := client.Capabilities{
		Video:     deviceCaps.HasVideo,
		Audio:     deviceCaps.HasAudio && cfg.Client.Audio,
		Width:     cfg.Client.Width,
		Height:    cfg.Client.Height,
		ColorMode: int(colorMode),
	}

	result, err := handshake.RunClient(t, 0, 0, declared)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.SetBox(result.Box)

	var codec *opuscodec.Codec
	if declared.Audio {
		codec, err = opuscodec.New(opuscodec.DefaultConfig())
		if err != nil {
			log.Warnf("clientapp: opus init failed, disabling audio: %v", err)
			declared.Audio = false
		}
	}

	return &App{
		cfg:        cfg,
		t:          t,
		caps:       declared,
		videoSrc:   vs,
		audioSrc:   as,
		codec:      codec,
		videoBuf:   videobuf.New(),
		audioQueue: pktqueue.New(cfg.Mixer.AudioQueueCapacity),
	}, nil
}

// dialTransport opens the underlying connection per cfg.Client.UseWebsocket:
// a raw TCP stream by default, or a WebSocket upgrade when the server is
// configured to accept one.
func dialTransport(cfg config.Config) (transport.Transport, error) {
	if cfg.Client.UseWebsocket {
		u := url.URL{Scheme: "ws", Host: net.JoinHostPort(cfg.Client.Address, strconv.Itoa(cfg.Client.Port)), Path: "/"}
		dialer := &websocket.Dialer{HandshakeTimeout: cfg.Timeouts.ConnectTimeout()}
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("clientapp: websocket dial %s: %w", u.String(), errs.ErrNetwork)
		}
		return transport.NewFramedWS(conn, transport.RoleClient), nil
	}

	addr := net.JoinHostPort(cfg.Client.Address, strconv.Itoa(cfg.Client.Port))
	conn, err := net.DialTimeout("tcp", addr, cfg.Timeouts.ConnectTimeout())
	if err != nil {
		return nil, fmt.Errorf("clientapp: dial %s: %w", addr, errs.ErrNetwork)
	}
	return transport.NewStream(conn), nil
}

// NextSequence returns the next outbound sequence number for this session.
func (a *App) NextSequence() uint32 {
	return a.sequence.Add(1)
}

// Close tears down the transport and any open capture devices without
// running Run; used when Dial succeeds but the caller aborts before Run.
func (a *App) Close() error {
	if a.videoSrc != nil {
		_ = a.videoSrc.Close()
	}
	if a.audioSrc != nil {
		_ = a.audioSrc.Close()
	}
	return a.t.Close()
}

// Run drives the session until ctx is canceled or the connection is lost:
// capture goroutines feed the outgoing buffers, a scheduler drains them onto
// the transport, and a receive loop dispatches inbound packets to cb. Run
// blocks until every goroutine it started has exited.
func (a *App) Run(ctx context.Context, cb Callbacks) error {
	captureStop := make(chan struct{})
	schedStop := make(chan struct{})
	recvStop := make(chan struct{})
	var recvStopOnce sync.Once
	closeRecvStop := func() { recvStopOnce.Do(func() { close(recvStop) }) }

	var wg sync.WaitGroup

	if a.videoSrc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.captureVideoLoop(captureStop)
		}()
	}
	if a.audioSrc != nil && a.codec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.captureAudioLoop(captureStop)
		}()
	}

	sc := &sched.Scheduler{
		ClientID:      0,
		Sender:        a.t,
		AudioQueue:    a.audioQueue,
		VideoBuffer:   a.videoBuf,
		VideoInterval: videoSendInterval,
		VideoType:     wire.TypeImageFrame,
		NextSequence:  a.NextSequence,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.Run(schedStop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		recv.Loop(a.t, 0, recv.Handlers{
			OnASCIIFrame: func(_ uint32, payload []byte) {
				if cb.OnASCIIFrame != nil {
					cb.OnASCIIFrame(payload)
				}
			},
			OnAudio: func(_ uint32, payload []byte) {
				if a.codec == nil || cb.OnAudioFrame == nil {
					return
				}
				pcm, err := a.codec.Decode(payload, frameSamples)
				if err != nil {
					return
				}
				cb.OnAudioFrame(pcm)
			},
			OnServerState: func(_ uint32, payload []byte) {
				var sw serverStateWire
				if err := json.Unmarshal(payload, &sw); err != nil {
					return
				}
				if cb.OnServerState != nil {
					cb.OnServerState(sw.ClientIDs)
				}
			},
			OnClearConsole: func(uint32) {
				if cb.OnClearConsole != nil {
					cb.OnClearConsole()
				}
			},
			OnPing: func(uint32) {
				_ = a.t.Send(wire.TypePong, a.NextSequence(), 0, nil)
			},
			OnProtocolError: func(err error) {
				log.Warnf("protocol error: %v", err)
				closeRecvStop()
			},
			OnConnectionLost: func(err error) {
				closeRecvStop()
			},
		}, recvStop)
	}()

	select {
	case <-ctx.Done():
	case <-recvStop:
	}
	close(captureStop)
	close(schedStop)
	closeRecvStop()
	_ = a.Close()
	wg.Wait()
	return nil
}

func (a *App) captureVideoLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := a.videoSrc.ReadFrame()
		if err != nil {
			log.Warnf("video capture stopped: %v", err)
			return
		}
		payload := wire.EncodeImageFrame(frame.Image)
		buf := a.videoBuf.BeginWrite(len(payload))
		copy(buf, payload)
		a.videoBuf.Commit(len(payload), contentHash(payload))
	}
}

func (a *App) captureAudioLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		pcm, err := a.audioSrc.ReadSamples()
		if err != nil {
			log.Warnf("audio capture stopped: %v", err)
			return
		}
		encoded, err := a.codec.Encode(pcm)
		if err != nil {
			log.Warnf("opus encode failed: %v", err)
			continue
		}
		seq := a.NextSequence()
		a.audioQueue.Enqueue(pktqueue.Packet{
			Header:  wire.NewHeader(wire.TypeAudio, seq, 0, encoded),
			Payload: encoded,
		})
	}
}

func contentHash(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}
