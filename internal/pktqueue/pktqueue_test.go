package pktqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zfogg/ascii-chat/internal/wire"
)

func mkPacket(seq uint32) Packet {
	return Packet{Header: wire.NewHeader(wire.TypeAudio, seq, 1, []byte{byte(seq)})}
}

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New(10)
	q.Enqueue(mkPacket(1))
	q.Enqueue(mkPacket(2))

	p1, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, uint32(1), p1.Header.Sequence)

	p2, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, uint32(2), p2.Header.Sequence)

	_, ok = q.TryDequeue()
	require.False(t, ok)
}

func TestDropOldestOnOverflow(t *testing.T) {
	q := New(2)
	q.Enqueue(mkPacket(1))
	q.Enqueue(mkPacket(2))
	q.Enqueue(mkPacket(3)) // drops seq 1

	require.LessOrEqual(t, q.Size(), 2)
	require.Equal(t, uint64(1), q.Stats().Dropped)

	p, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, uint32(2), p.Header.Sequence)
}

func TestSizeNeverExceedsMax(t *testing.T) {
	q := New(5)
	for i := 0; i < 100; i++ {
		q.Enqueue(mkPacket(uint32(i)))
		require.LessOrEqual(t, q.Size(), 5)
	}
	require.Equal(t, uint64(95), q.Stats().Dropped)
}

func TestShutdownWakesBlockedDequeue(t *testing.T) {
	q := New(4)
	done := make(chan struct{})
	var gotOK bool
	go func() {
		_, ok := q.DequeueBlocking(time.After(5 * time.Second))
		gotOK = ok
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DequeueBlocking did not wake on shutdown")
	}
	require.False(t, gotOK)
}

func TestEnqueueAfterShutdownIsNoop(t *testing.T) {
	q := New(4)
	q.Shutdown()
	q.Enqueue(mkPacket(1))
	require.Equal(t, 0, q.Size())
}

func TestConcurrentEnqueueNoLeakOrPanic(t *testing.T) {
	q := New(16)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(mkPacket(uint32(i)))
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, q.Size(), 16)
}
