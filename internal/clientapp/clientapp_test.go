package clientapp

import (
	"context"
	"image"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat/internal/capture"
	"github.com/zfogg/ascii-chat/internal/client"
	"github.com/zfogg/ascii-chat/internal/config"
	"github.com/zfogg/ascii-chat/internal/handshake"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
	"github.com/zfogg/ascii-chat/internal/transport"
	"github.com/zfogg/ascii-chat/internal/videobuf"
	"github.com/zfogg/ascii-chat/internal/wire"
)

// fakeVideoSource yields a single solid-color frame repeatedly.
type fakeVideoSource struct {
	img    image.Image
	closed chan struct{}
	once   sync.Once
}

func newFakeVideoSource() *fakeVideoSource {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	return &fakeVideoSource{img: img, closed: make(chan struct{})}
}

func (f *fakeVideoSource) ReadFrame() (capture.VideoFrame, error) {
	select {
	case <-f.closed:
		return capture.VideoFrame{}, context.Canceled
	default:
	}
	time.Sleep(time.Millisecond)
	return capture.VideoFrame{Image: f.img, CapturedAt: time.Now()}, nil
}

func (f *fakeVideoSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestRunSendsCapturedVideoAndDispatchesASCIIFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st := transport.NewStream(serverConn)
		result, err := handshake.RunServer(st, 0, 1)
		require.NoError(t, err)
		st.SetBox(result.Box)

		// Wait for at least one IMAGE_FRAME, then send an ASCII_FRAME back.
		for {
			pkt, err := st.Recv()
			if err != nil {
				return
			}
			if pkt.Header.Type == wire.TypeImageFrame {
				_ = st.Send(wire.TypeASCIIFrame, 1, 1, []byte("rendered"))
				return
			}
		}
	}()

	ct := transport.NewStream(clientConn)
	result, err := handshake.RunClient(ct, 0, 0, client.Capabilities{Video: true, Width: 80, Height: 24})
	require.NoError(t, err)
	ct.SetBox(result.Box)

	app := &App{
		cfg:        config.Default(),
		t:          ct,
		caps:       client.Capabilities{Video: true},
		videoSrc:   newFakeVideoSource(),
		videoBuf:   videobuf.New(),
		audioQueue: pktqueue.New(8),
	}

	var received []byte
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = app.Run(ctx, Callbacks{
			OnASCIIFrame: func(payload []byte) {
				mu.Lock()
				received = append([]byte(nil), payload...)
				mu.Unlock()
				cancel()
			},
		})
	}()

	wg.Wait()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ASCII_FRAME received")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("rendered"), received)
}

func TestCloseWithoutRunClosesCaptureDevices(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	vs := newFakeVideoSource()
	app := &App{
		t:          transport.NewStream(clientConn),
		videoSrc:   vs,
		videoBuf:   videobuf.New(),
		audioQueue: pktqueue.New(4),
	}

	require.NoError(t, app.Close())
	select {
	case <-vs.closed:
	default:
		t.Fatal("expected video source to be closed")
	}
}
