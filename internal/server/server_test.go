package server

import (
	"context"
	"image"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat/internal/client"
	"github.com/zfogg/ascii-chat/internal/config"
	"github.com/zfogg/ascii-chat/internal/handshake"
	"github.com/zfogg/ascii-chat/internal/transport"
	"github.com/zfogg/ascii-chat/internal/videobuf"
	"github.com/zfogg/ascii-chat/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Timeouts.ProbeIntervalSec = 1
	cfg.Timeouts.MissedProbes = 5
	return New(cfg)
}

func TestSingleClientLoopbackReceivesASCIIFrames(t *testing.T) {
	s := newTestServer(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.handleConn(ctx, transport.NewStream(serverConn))
		close(done)
	}()

	ct := transport.NewStream(clientConn)
	result, err := handshake.RunClient(ct, 0, 0, client.Capabilities{
		Video: true, Audio: false, Width: 20, Height: 4, ColorMode: 0,
	})
	require.NoError(t, err)
	ct.SetBox(result.Box)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	payload := wire.EncodeImageFrame(img)
	require.NoError(t, ct.Send(wire.TypeImageFrame, 1, 0, payload))

	received := make(chan wire.Packet, 8)
	go func() {
		for {
			pkt, err := ct.Recv()
			if err != nil {
				return
			}
			received <- pkt
		}
	}()

	var sawServerState, sawASCIIFrame bool
	timeout := time.After(2 * time.Second)
	for !sawServerState || !sawASCIIFrame {
		select {
		case pkt := <-received:
			switch pkt.Header.Type {
			case wire.TypeServerState:
				sawServerState = true
			case wire.TypeASCIIFrame:
				sawASCIIFrame = true
			}
		case <-timeout:
			t.Fatalf("did not observe both SERVER_STATE (%v) and ASCII_FRAME (%v)", sawServerState, sawASCIIFrame)
		}
	}

	cancel()
	_ = clientConn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConn did not return after context cancellation")
	}
}

func TestServeWSHandshakeAndImageFrame(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan struct{})
	go func() {
		_ = s.ServeWS(ctx, ln)
		close(serveDone)
	}()

	wsURL := "ws://" + ln.Addr().String() + "/"
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer wsConn.Close()

	ct := transport.NewFramedWS(wsConn, transport.RoleClient)
	result, err := handshake.RunClient(ct, 0, 0, client.Capabilities{
		Video: true, Width: 20, Height: 4,
	})
	require.NoError(t, err)
	ct.SetBox(result.Box)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	require.NoError(t, ct.Send(wire.TypeImageFrame, 1, 0, wire.EncodeImageFrame(img)))

	var sawServerState bool
	timeout := time.After(2 * time.Second)
	for !sawServerState {
		pkt, err := ct.Recv()
		if err != nil {
			t.Fatalf("recv failed waiting for SERVER_STATE: %v", err)
		}
		if pkt.Header.Type == wire.TypeServerState {
			sawServerState = true
		}
		select {
		case <-timeout:
			t.Fatal("did not observe SERVER_STATE broadcast over websocket")
		default:
		}
	}

	cancel()
	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWS did not return after context cancellation")
	}
}

func TestRefreshVideoTargetsRegistersRenderableTarget(t *testing.T) {
	s := newTestServer(t)

	r1 := &client.Record{ID: 1, OutgoingVideo: videobuf.New()}
	r2 := &client.Record{ID: 2, OutgoingVideo: videobuf.New()}
	s.clients.Add(r1)
	s.clients.Add(r2)
	s.images.Set(2, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NotPanics(t, func() { s.refreshVideoTargets() })

	renderStop := make(chan struct{})
	defer close(renderStop)
	go s.video.Run(r1.ID, renderStop)

	require.Eventually(t, func() bool {
		_, ok := r1.OutgoingVideo.Snapshot()
		return ok
	}, time.Second, 5*time.Millisecond)
}
