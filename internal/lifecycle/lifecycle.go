// Package lifecycle implements the per-client state machine and teardown
// sequence: HANDSHAKING -> ACTIVE -> DRAINING -> TERMINATED, with
// goroutines joined in the order render -> audio-render -> send -> receive
// to resolve the transport use-after-free an undisciplined teardown order
// produces (the receive goroutine is the only one allowed to touch the
// connection after the others have stopped writing to it).
package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zfogg/ascii-chat/internal/errs"
)

// State is one point in the per-client lifecycle.
type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "HANDSHAKING"
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// validTransitions enumerates the only state changes Advance permits.
var validTransitions = map[State][]State{
	StateHandshaking: {StateActive, StateDraining},
	StateActive:      {StateDraining},
	StateDraining:    {StateTerminated},
	StateTerminated:  {},
}

// Handles are the four per-client goroutine stop signals, joined in this
// fixed order on teardown: render, then audio-render, then send, then
// receive. The receive goroutine is joined last because it alone may need
// to observe a final error off the connection before the connection is
// closed out from under the other three.
type Handles struct {
	Render      *sync.WaitGroup
	AudioRender *sync.WaitGroup
	Send        *sync.WaitGroup
	Receive     *sync.WaitGroup
}

// Controller drives one client's lifecycle state machine and owns the
// teardown sequence.
type Controller struct {
	state   atomic.Int32
	mu      sync.Mutex
	hung    bool
	hangupC chan struct{}
	handles Handles
}

// New creates a Controller starting in StateHandshaking.
func New(h Handles) *Controller {
	return &Controller{hangupC: make(chan struct{}), handles: h}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Advance attempts to move to next, rejecting transitions not listed in
// validTransitions.
func (c *Controller) Advance(next State) error {
	cur := c.State()
	for _, allowed := range validTransitions[cur] {
		if allowed == next {
			c.state.Store(int32(next))
			return nil
		}
	}
	return fmt.Errorf("lifecycle: illegal transition %s -> %s: %w", cur, next, errs.ErrInvalidParameter)
}

// Done returns a channel closed once Teardown has run.
func (c *Controller) Done() <-chan struct{} {
	return c.hangupC
}

// Teardown is idempotent: the first call joins the four goroutine groups in
// the fixed render -> audio-render -> send -> receive order and transitions
// to StateTerminated; subsequent calls are no-ops.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.hung {
		c.mu.Unlock()
		return
	}
	c.hung = true
	c.mu.Unlock()

	c.state.Store(int32(StateDraining))

	if c.handles.Render != nil {
		c.handles.Render.Wait()
	}
	if c.handles.AudioRender != nil {
		c.handles.AudioRender.Wait()
	}
	if c.handles.Send != nil {
		c.handles.Send.Wait()
	}
	if c.handles.Receive != nil {
		c.handles.Receive.Wait()
	}

	c.state.Store(int32(StateTerminated))
	close(c.hangupC)
}
