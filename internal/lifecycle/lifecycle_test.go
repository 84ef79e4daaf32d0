package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidTransitionSequence(t *testing.T) {
	c := New(Handles{})
	require.Equal(t, StateHandshaking, c.State())
	require.NoError(t, c.Advance(StateActive))
	require.Equal(t, StateActive, c.State())
	require.NoError(t, c.Advance(StateDraining))
	require.NoError(t, c.Advance(StateTerminated))
}

func TestIllegalTransitionRejected(t *testing.T) {
	c := New(Handles{})
	err := c.Advance(StateTerminated)
	require.Error(t, err)
	require.Equal(t, StateHandshaking, c.State())
}

// TestTeardownBlocksUntilReceiveGroupJoinsLast verifies that Teardown does
// not return (and does not transition to StateTerminated) until the
// receive goroutine — joined last in the fixed render -> audio-render ->
// send -> receive order — has actually finished, even when the other three
// groups finish immediately.
func TestTeardownBlocksUntilReceiveGroupJoinsLast(t *testing.T) {
	var render, audio, send, recv sync.WaitGroup
	render.Add(1)
	audio.Add(1)
	send.Add(1)
	recv.Add(1)

	render.Done()
	audio.Done()
	send.Done()

	releaseReceive := make(chan struct{})
	go func() {
		<-releaseReceive
		recv.Done()
	}()

	c := New(Handles{Render: &render, AudioRender: &audio, Send: &send, Receive: &recv})
	teardownDone := make(chan struct{})
	go func() {
		c.Teardown()
		close(teardownDone)
	}()

	select {
	case <-teardownDone:
		t.Fatal("Teardown returned before the receive goroutine joined")
	case <-time.After(50 * time.Millisecond):
	}
	require.NotEqual(t, StateTerminated, c.State())

	close(releaseReceive)

	select {
	case <-teardownDone:
	case <-time.After(time.Second):
		t.Fatal("Teardown did not return after the receive goroutine joined")
	}
	require.Equal(t, StateTerminated, c.State())
}

func TestTeardownIsIdempotent(t *testing.T) {
	c := New(Handles{})
	c.Teardown()
	require.NotPanics(t, func() { c.Teardown() })
}

func TestDoneChannelClosesAfterTeardown(t *testing.T) {
	c := New(Handles{})
	done := c.Done()
	select {
	case <-done:
		t.Fatal("done channel closed before teardown")
	default:
	}
	c.Teardown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel did not close after teardown")
	}
}
