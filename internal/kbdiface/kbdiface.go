// Package kbdiface fixes the contract between the core and the keyboard/
// layer interpreter. The interpreter itself — macro expansion, layer
// stacks, oneshot/tap-hold timing — is an external collaborator; this
// package only names the shape the core talks to it through, so the core
// can be built and tested against a fake without depending on the real
// interpreter.
package kbdiface

// EmitKeyFunc is the callback a keyboard instance uses to report a
// synthesized key output. It calls through to the virtual sink's SendKey.
type EmitKeyFunc func(code uint16, pressed bool)

// LayerFunc is the callback a keyboard instance uses to announce a layer
// activation or deactivation. It calls through to the IPC broadcaster.
type LayerFunc func(name string, active bool)

// Instance is a single configuration's keyboard state machine.
//
//   - ProcessKeyEvent delivers a key event (code=0 denotes a pure tick used
//     to advance internal timers) and returns the number of milliseconds
//     until the next tick should fire, or 0 for "no timeout requested".
//   - Eval evaluates an ad-hoc binding expression (the IPC BIND command)
//     against this instance, returning an error describing the failure
//     reason on rejection.
type Instance interface {
	ProcessKeyEvent(code uint16, pressed bool) (nextTimeoutMS int)
	Eval(expr string) error
}

// Factory builds a new keyboard Instance from a parsed configuration plus
// the two callback capabilities it is allowed to call back into. Config is
// an opaque type owned by the (out of scope) configuration parser.
type Factory func(config any, emit EmitKeyFunc, layer LayerFunc) (Instance, error)
