package audiopipe

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat/internal/mixer"
	"github.com/zfogg/ascii-chat/internal/opuscodec"
	"github.com/zfogg/ascii-chat/internal/pktqueue"
)

func TestTickEnqueuesEncodedAudioForListener(t *testing.T) {
	m := mixer.New(4096)
	m.AddSource(1)
	m.AddSource(2)
	m.Submit(2, make([]float32, 960*2))

	codec, err := opuscodec.New(opuscodec.DefaultConfig())
	require.NoError(t, err)

	q := pktqueue.New(16)
	var seq atomic.Uint32

	p := New(m, 10*time.Millisecond, 960, 2)
	p.SetListener(&Listener{
		ClientID:     1,
		Codec:        codec,
		OutQueue:     q,
		NextSequence: func() uint32 { return seq.Add(1) },
	})

	stop := make(chan struct{})
	go p.Run(1, stop)
	defer close(stop)

	require.Eventually(t, func() bool { return q.Size() > 0 }, time.Second, 5*time.Millisecond)
}

func TestRemoveListenerStopsEncoding(t *testing.T) {
	m := mixer.New(4096)
	m.AddSource(1)

	codec, err := opuscodec.New(opuscodec.DefaultConfig())
	require.NoError(t, err)

	q := pktqueue.New(16)
	p := New(m, 5*time.Millisecond, 960, 2)
	p.SetListener(&Listener{ClientID: 1, Codec: codec, OutQueue: q, NextSequence: func() uint32 { return 1 }})
	p.RemoveListener(1)

	stop := make(chan struct{})
	go p.Run(1, stop)
	time.Sleep(30 * time.Millisecond)
	close(stop)

	require.Equal(t, 0, q.Size())
}

func TestRunIsScopedToOneClient(t *testing.T) {
	m := mixer.New(4096)
	m.AddSource(1)
	m.AddSource(2)

	codec, err := opuscodec.New(opuscodec.DefaultConfig())
	require.NoError(t, err)

	q1 := pktqueue.New(16)
	q2 := pktqueue.New(16)
	p := New(m, 5*time.Millisecond, 960, 2)
	p.SetListener(&Listener{ClientID: 1, Codec: codec, OutQueue: q1, NextSequence: func() uint32 { return 1 }})
	p.SetListener(&Listener{ClientID: 2, Codec: codec, OutQueue: q2, NextSequence: func() uint32 { return 1 }})

	stop := make(chan struct{})
	go p.Run(1, stop)
	defer close(stop)

	require.Eventually(t, func() bool { return q1.Size() > 0 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, q2.Size(), "a Run goroutine scoped to client 1 must never encode for client 2")
}
