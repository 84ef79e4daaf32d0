package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := New[float32](500)
	require.Equal(t, 512, r.Cap())
}

func TestWriteReadOrder(t *testing.T) {
	r := New[int](8)
	r.Write([]int{1, 2, 3})
	require.Equal(t, 3, r.AvailableRead())
	require.Equal(t, []int{1, 2, 3}, r.Read(10))
	require.Equal(t, 0, r.AvailableRead())
}

func TestOverrunAtCapacityBoundary(t *testing.T) {
	r := New[int](4)
	r.Write([]int{1, 2, 3, 4})
	require.Equal(t, uint64(0), r.Overruns())

	// One more sample than capacity: oldest (1) is dropped, overrun += 1.
	r.Write([]int{5})
	require.Equal(t, uint64(1), r.Overruns())
	require.Equal(t, 4, r.AvailableRead())
	require.Equal(t, []int{2, 3, 4, 5}, r.Read(4))
}

func TestAvailableWrite(t *testing.T) {
	r := New[int](4)
	require.Equal(t, 4, r.AvailableWrite())
	r.Write([]int{1, 2})
	require.Equal(t, 2, r.AvailableWrite())
}

func TestReadFewerThanRequested(t *testing.T) {
	r := New[int](4)
	r.Write([]int{9})
	out := r.Read(10)
	require.Equal(t, []int{9}, out)
}

func TestClear(t *testing.T) {
	r := New[int](4)
	r.Write([]int{1, 2})
	r.Clear()
	require.Equal(t, 0, r.AvailableRead())
	require.Equal(t, uint64(0), r.Overruns())
}
