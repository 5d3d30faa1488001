// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package motion decides when the scene has settled onto a new slide.
//
// It is a two-state machine with hysteresis: a capture fires when the change
// ratio falls below Low, and the machine re-arms only after the ratio climbs to
// High or above. Nothing here does I/O.
package motion

import "fmt"

// State of the machine.
type State int

const (
	// Watching is the initial state, the scene may be moving or settling.
	Watching State = iota
	// Captured means a slide was just captured and the scene has not changed
	// enough since.
	Captured
)

func (s State) String() string {
	switch s {
	case Watching:
		return "WATCHING"
	case Captured:
		return "CAPTURED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Thresholds are in percent of changed pixels.
type Thresholds struct {
	// Capture when change ratio drops below Low.
	Low float64
	// Re-arm when change ratio is at or above High.
	High float64
	// Frames with index not above Warmup never trigger a capture.
	Warmup int
}

// Validate checks Low < High and non-negative warm-up.
func (t Thresholds) Validate() error {
	if !(t.Low >= 0) || !(t.High > t.Low) {
		return fmt.Errorf("thresholds should satisfy 0 <= low < high, got low=%v high=%v", t.Low, t.High)
	}
	if t.Warmup < 0 {
		return fmt.Errorf("warm-up should not be negative, got %d", t.Warmup)
	}
	return nil
}

// Transition is the pure transition function. It returns the next state and
// whether the current frame has to be captured.
func Transition(s State, ratio float64, index int, th Thresholds) (State, bool) {
	switch {
	case s != Captured && ratio < th.Low && index > th.Warmup:
		return Captured, true
	case s == Captured && ratio >= th.High:
		return Watching, false
	default:
		return s, false
	}
}

// Machine tracks state across frames of one video and numbers captures.
type Machine struct {
	th       Thresholds
	state    State
	captures int
}

// NewMachine creates Machine in Watching state.
func NewMachine(th Thresholds) (*Machine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Machine{th: th}, nil
}

// Observe feeds change ratio of frame with given sampler index. When the frame
// has to be captured it returns its zero-based capture index and true.
func (m *Machine) Observe(ratio float64, index int) (int, bool) {
	next, capture := Transition(m.state, ratio, index, m.th)
	m.state = next
	if !capture {
		return 0, false
	}
	n := m.captures
	m.captures++
	return n, true
}

// State returns current state.
func (m *Machine) State() State {
	return m.state
}

// Captures returns number of captures emitted so far.
func (m *Machine) Captures() int {
	return m.captures
}
