package gateway

import (
	"fmt"
	"time"

	"github.com/chandamin/Shipperman/pkg/shipper"
)

// State is a step of the per-request pipeline.
type State int

const (
	StateReceived State = iota
	StateCredentialResolved
	StateTranslated
	StateCarrierCalled
	StateResponseMapped
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateCredentialResolved:
		return "credential_resolved"
	case StateTranslated:
		return "translated"
	case StateCarrierCalled:
		return "carrier_called"
	case StateResponseMapped:
		return "response_mapped"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Snapshot is the final record of one dispatched request.
type Snapshot struct {
	RequestID   string
	Operation   string
	Shop        string
	ReferenceID string
	State       State
	Kind        error // set when State is StateFailed
	History     []State
	Duration    time.Duration
}

// tracker walks one request through the pipeline. Transitions only move forward
// and Failed is reachable from every non-terminal state.
type tracker struct {
	snap    Snapshot
	started time.Time
}

func newTracker(requestID, operation, shop string) *tracker {
	return &tracker{
		snap: Snapshot{
			RequestID: requestID,
			Operation: operation,
			Shop:      shop,
			State:     StateReceived,
			History:   []State{StateReceived},
		},
		started: time.Now(),
	}
}

func (t *tracker) state() State { return t.snap.State }

// advance moves to the next state. Moving backwards, repeating a state, or leaving a
// terminal state is a programming error and panics.
func (t *tracker) advance(to State) {
	from := t.snap.State
	if from.Terminal() || to <= from || to == StateFailed {
		panic(fmt.Sprintf("gateway: invalid transition %s -> %s", from, to))
	}
	t.snap.State = to
	t.snap.History = append(t.snap.History, to)
}

// fail moves to StateFailed and records the error kind. It returns err.
func (t *tracker) fail(err error) error {
	if t.snap.State.Terminal() {
		panic(fmt.Sprintf("gateway: invalid transition %s -> %s", t.snap.State, StateFailed))
	}
	t.snap.State = StateFailed
	t.snap.Kind = shipper.Kind(err)
	t.snap.History = append(t.snap.History, StateFailed)
	return err
}

func (t *tracker) finish() Snapshot {
	t.snap.Duration = time.Since(t.started)
	t.snap.History = append([]State(nil), t.snap.History...)
	return t.snap
}
