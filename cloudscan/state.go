package cloudscan

import "fmt"

// ScanState is the operator selected capture mode.
type ScanState int

const (
	// StateOff materializes nothing.
	StateOff ScanState = iota
	// StateOn accumulates every frame, starting from an empty registry.
	StateOn
	// StateScreenshot captures one frame and goes back to StateOff.
	StateScreenshot
	// StateStream replaces the registry contents with every frame.
	StateStream
)

func (s ScanState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StateScreenshot:
		return "screenshot"
	case StateStream:
		return "stream"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Plan is what the state machine wants done with one frame.
type Plan struct {
	Materialize bool
	Clear       bool
	Style       Style
	Generation  uint64

	from         ScanState
	consumeClear bool
}

// StateMachine holds the scan mode and the one-shot clear flag of a new scan.
// It is not safe for concurrent use; Scanner serializes access.
type StateMachine struct {
	state        ScanState
	clearPending bool
	generation   uint64
}

// State returns the current mode.
func (sm *StateMachine) State() ScanState {
	return sm.state
}

// ClearPending reports whether the next On frame will clear the registry first.
func (sm *StateMachine) ClearPending() bool {
	return sm.clearPending
}

// Generation increments every time a command clears the registry.
func (sm *StateMachine) Generation() uint64 {
	return sm.generation
}

// Screenshot captures the next eligible frame from any state.
func (sm *StateMachine) Screenshot() {
	sm.state = StateScreenshot
}

// StartScan enters StateOn with an empty registry for the first frame.
// It does nothing while already scanning. It returns true if the state changed.
func (sm *StateMachine) StartScan() bool {
	if sm.state == StateOn {
		return false
	}
	sm.state = StateOn
	sm.clearPending = true
	return true
}

// StopScan leaves StateOn. It returns true if the state changed.
func (sm *StateMachine) StopScan() bool {
	if sm.state != StateOn {
		return false
	}
	sm.state = StateOff
	return true
}

// Cleared records a command-driven registry clear; stop also enters StateOff.
func (sm *StateMachine) Cleared(stop bool) {
	sm.generation++
	if stop {
		sm.state = StateOff
	}
}

// Stream enters StateStream. The caller clears the registry.
func (sm *StateMachine) Stream() {
	sm.generation++
	sm.state = StateStream
}

// Plan decides what to do with a frame of pointCount points without changing any state.
func (sm *StateMachine) Plan(pointCount int) Plan {
	p := Plan{from: sm.state, Generation: sm.generation, Style: StyleCaptured}
	if pointCount <= 0 {
		return p
	}

	switch sm.state {
	case StateOn:
		p.Materialize = true
		if sm.clearPending {
			p.Clear = true
			p.consumeClear = true
		}
	case StateScreenshot:
		p.Materialize = true
	case StateStream:
		p.Materialize = true
		p.Clear = true
		p.Style = StyleLive
	}
	return p
}

// Commit applies the transitions of a plan once its snapshot was built.
// It returns false, changing nothing, if a command arrived since the plan was made.
func (sm *StateMachine) Commit(p Plan) bool {
	if !p.Materialize || p.Generation != sm.generation || p.from != sm.state {
		return false
	}
	if sm.state == StateScreenshot {
		sm.state = StateOff
	}
	if p.consumeClear {
		sm.clearPending = false
	}
	return true
}
