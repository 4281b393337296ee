// Package fake provides a deterministic kbdiface.Instance used by the
// core's own tests, standing in for the real keyboard/layer interpreter.
package fake

import (
	"fmt"

	"github.com/keyremap/keyremapd/internal/kbdiface"
)

// Instance is a minimal, fully deterministic keyboard state machine: it
// remaps a fixed set of codes, can simulate a held oneshot layer, and
// accepts or rejects Eval calls based on a configurable AcceptEval func.
type Instance struct {
	Remap map[uint16]uint16

	// OneshotActive, when true, is cleared by the next ProcessKeyEvent that
	// is not itself a tick (code != 0) — enough to exercise the scroll
	// synthesis contract a caller depends on around a synthesized mouse
	// button press/release.
	OneshotActive bool

	// AcceptEval, when non-nil, decides the outcome of Eval. A nil func
	// means every expression is accepted.
	AcceptEval func(expr string) error

	// NextTimeout is returned verbatim from ProcessKeyEvent.
	NextTimeout int

	Emit  kbdiface.EmitKeyFunc
	Layer kbdiface.LayerFunc

	Events []Event
}

// Event records one ProcessKeyEvent call for assertions in tests.
type Event struct {
	Code    uint16
	Pressed bool
}

// New builds a fake instance wired with the two core callbacks.
func New(emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) *Instance {
	return &Instance{
		Remap: make(map[uint16]uint16),
		Emit:  emit,
		Layer: layer,
	}
}

func (i *Instance) ProcessKeyEvent(code uint16, pressed bool) int {
	i.Events = append(i.Events, Event{Code: code, Pressed: pressed})

	if code != 0 {
		i.OneshotActive = false
	}

	if code == 0 {
		return i.NextTimeout
	}

	out := code
	if mapped, ok := i.Remap[code]; ok {
		out = mapped
	}
	if i.Emit != nil {
		i.Emit(out, pressed)
	}
	return i.NextTimeout
}

func (i *Instance) Eval(expr string) error {
	if i.AcceptEval != nil {
		return i.AcceptEval(expr)
	}
	return nil
}

// ActivateLayer is a test helper that announces a layer transition through
// the wired LayerFunc, as the real interpreter would on its own schedule.
func (i *Instance) ActivateLayer(name string, active bool) {
	if i.Layer != nil {
		i.Layer(name, active)
	}
}

// RejectingEval is a convenience AcceptEval that always fails with msg.
func RejectingEval(msg string) func(string) error {
	return func(string) error { return fmt.Errorf("%s", msg) }
}
