package mixer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMixExcludesOwnSource(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.AddSource(2)

	m.Submit(1, []float32{0.5, 0.5, 0.5, 0.5})
	m.Submit(2, []float32{0.2, 0.2, 0.2, 0.2})

	mixFor1 := m.MixFor(1, 4)
	for _, s := range mixFor1 {
		require.InDelta(t, 0.2, s, 1e-6, "listener 1 must hear only source 2")
	}

	mixFor2 := m.MixFor(2, 4)
	for _, s := range mixFor2 {
		require.InDelta(t, 0.5, s, 1e-6, "listener 2 must hear only source 1")
	}
}

func TestMixWithNoOtherSourcesIsSilence(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.Submit(1, []float32{1, 1, 1, 1})

	out := m.MixFor(1, 4)
	for _, s := range out {
		require.Equal(t, float32(0), s)
	}
}

func TestMixSumsMultipleSources(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.AddSource(2)
	m.AddSource(3)

	m.Submit(1, []float32{0.1, 0.1})
	m.Submit(2, []float32{0.1, 0.1})
	m.Submit(3, []float32{0.1, 0.1})

	out := m.MixFor(1, 2)
	for _, s := range out {
		require.InDelta(t, 0.2, s, 1e-6)
	}
}

func TestSoftClipBoundsOutput(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.AddSource(2)
	m.AddSource(3)
	m.AddSource(4)

	for id := uint32(2); id <= 4; id++ {
		m.Submit(id, []float32{1, 1, 1, 1})
	}

	out := m.MixFor(1, 4)
	for _, s := range out {
		require.LessOrEqual(t, s, float32(1.0))
		require.GreaterOrEqual(t, s, float32(-1.0))
	}
}

func TestRemoveSourceStopsContributing(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.AddSource(2)
	m.Submit(2, []float32{0.5, 0.5})
	m.RemoveSource(2)

	out := m.MixFor(1, 2)
	for _, s := range out {
		require.Equal(t, float32(0), s)
	}
	require.Equal(t, 1, m.SourceCount())
}

func TestAddSourceIdempotent(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.Submit(1, []float32{0.3, 0.3})
	m.AddSource(1) // must not reset the ring buffer
	require.Equal(t, 1, m.SourceCount())
}

// TestMultipleListenersEachGetTheFullMixInOneTick reproduces a tick with
// 3+ listeners: every listener must see the same n-1 mix of a single
// Submit, not a drained/non-overlapping fragment of it because an earlier
// listener's MixFor already consumed the shared data.
func TestMultipleListenersEachGetTheFullMixInOneTick(t *testing.T) {
	m := New(64)
	m.AddSource(1)
	m.AddSource(2)
	m.AddSource(3)
	m.AddSource(4)

	m.Submit(1, []float32{0.4, 0.4})
	m.Submit(2, []float32{0.3, 0.3})
	m.Submit(3, []float32{0.2, 0.2})
	m.Submit(4, []float32{0.1, 0.1})

	out2 := m.MixFor(2, 2)
	out3 := m.MixFor(3, 2)
	out4 := m.MixFor(4, 2)

	for _, s := range out2 {
		require.InDelta(t, 0.7, s, 1e-6, "listener 2 must hear sources 1,3,4 in full")
	}
	for _, s := range out3 {
		require.InDelta(t, 0.8, s, 1e-6, "listener 3 must hear sources 1,2,4 in full")
	}
	for _, s := range out4 {
		require.InDelta(t, 0.9, s, 1e-6, "listener 4 must hear sources 1,2,3 in full")
	}
}
