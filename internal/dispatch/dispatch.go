// Package dispatch implements the event dispatcher: the single
// handler passed to internal/evsource.Source.Next, wired to every other
// component's callback capability and to the one piece of cross-event
// state the daemon keeps, last_kbd.
package dispatch

import (
	"errors"
	"log/slog"
	"os"

	"github.com/keyremap/keyremapd/internal/device"
	"github.com/keyremap/keyremapd/internal/domain"
	"github.com/keyremap/keyremapd/internal/evsource"
	"github.com/keyremap/keyremapd/internal/ipc"
	"github.com/keyremap/keyremapd/internal/kbdiface"
	"github.com/keyremap/keyremapd/internal/registry"
)

// Sink is the subset of internal/vsink.Sink the dispatcher drives.
// Naming it as an interface, rather than depending on *vsink.Sink directly,
// lets the dispatcher's own tests run without touching /dev/uinput.
type Sink interface {
	SendKey(code uint16, pressed bool) error
	MouseMove(dx, dy int32) error
	MouseMoveAbs(x, y int32, hasX, hasY bool) error
	MouseScroll(dx, dy int32) error
	Clear() error
}

// Dispatcher is the event loop's sole handler. It holds every
// process-singleton resource the daemon owns: the registry, device manager,
// virtual sink, listener set, and the IPC server whose fd it services on
// FD_ACTIVITY.
type Dispatcher struct {
	Registry *registry.Registry
	Manager  *device.Manager
	Sink     Sink
	IPC      *ipc.Server
	Logger   *slog.Logger

	// Reload rebuilds the registry from disk. Supplied by the caller
	// because the configuration dir and parser live with daemonconfig.
	Reload func() error

	// IPCFd is the listening socket's descriptor, compared against
	// FD_ACTIVITY events (the daemon registers no other external fd).
	IPCFd int

	lastKbd kbdiface.Instance
}

// Handle is the func(evsource.Event) int passed to Source.Next. Every
// non-key branch echoes ev.TimeLeft rather than returning 0, so a hotplug
// or IPC event arriving mid-timeout doesn't cancel it.
func (d *Dispatcher) Handle(ev evsource.Event) int {
	switch ev.Type {
	case evsource.EventTimeout:
		return d.onTimeout()
	case evsource.EventDevice:
		return d.onDeviceEvent(ev)
	case evsource.EventDeviceAdd:
		d.onDeviceAdd(ev.Dev)
		return ev.TimeLeft
	case evsource.EventDeviceRemove:
		d.onDeviceRemove(ev.Dev)
		return ev.TimeLeft
	case evsource.EventFDActivity:
		d.onFDActivity(ev.FD)
		return ev.TimeLeft
	}
	return 0
}

func (d *Dispatcher) onTimeout() int {
	if d.lastKbd == nil {
		return 0
	}
	return d.lastKbd.ProcessKeyEvent(domain.KeyTick, false)
}

func (d *Dispatcher) onDeviceEvent(ev evsource.Event) int {
	entry, ok := d.boundEntry(ev.Dev)
	if !ok {
		return ev.TimeLeft
	}

	switch ev.DevEvent.Kind {
	case evsource.KindKey:
		d.lastKbd = entry.Kbd
		return entry.Kbd.ProcessKeyEvent(ev.DevEvent.Code, ev.DevEvent.Pressed)

	case evsource.KindMouseMove:
		d.Sink.MouseMove(ev.DevEvent.DX, ev.DevEvent.DY)
		return ev.TimeLeft

	case evsource.KindMouseMoveAbs:
		d.Sink.MouseMoveAbs(ev.DevEvent.DX, ev.DevEvent.DY, ev.DevEvent.HasDX, ev.DevEvent.HasDY)
		return ev.TimeLeft

	case evsource.KindMouseScroll:
		entry.Kbd.ProcessKeyEvent(domain.KeyExternalMouseButton, true)
		entry.Kbd.ProcessKeyEvent(domain.KeyExternalMouseButton, false)
		d.Sink.MouseScroll(ev.DevEvent.DX, ev.DevEvent.DY)
		return ev.TimeLeft
	}
	return ev.TimeLeft
}

// boundEntry resolves the registry entry a device's current binding refers
// to, rejecting a binding left over from a generation the registry has
// since moved past.
func (d *Dispatcher) boundEntry(dev *domain.Device) (*registry.Entry, bool) {
	if dev == nil || dev.Binding == nil {
		return nil, false
	}
	if dev.Binding.Generation != d.Registry.Generation() {
		return nil, false
	}
	entry := d.Registry.EntryByID(dev.Binding.EntryID)
	if entry == nil {
		return nil, false
	}
	return entry, true
}

func (d *Dispatcher) onDeviceAdd(dev *domain.Device) {
	d.Manager.AddDevice(dev)
}

func (d *Dispatcher) onDeviceRemove(dev *domain.Device) {
	d.Manager.RemoveDevice(dev.Path)
}

func (d *Dispatcher) onFDActivity(fd int) {
	if fd != d.IPCFd {
		return
	}
	if err := d.IPC.Accept(); err != nil {
		d.Logger.Warn("ipc accept failed", "error", err)
	}
}

// DoReload implements the RELOAD command: rebuild the registry, re-bind
// every device against the new generation, and clear the virtual sink so
// no key stays latched from an interpreter that no longer exists. A
// configuration that fails to load is fatal here, as it is at startup: the
// error is logged and the daemon exits.
func (d *Dispatcher) DoReload() error {
	d.Registry.Free()
	if err := d.Reload(); err != nil {
		d.Logger.Error("reloading remap configuration", "error", err)
		os.Exit(1)
	}
	d.Manager.RebindAll()
	return d.Sink.Clear()
}

// DoBind implements the BIND command: evaluate expr against every entry's
// keyboard in turn, succeeding iff at least one accepts it.
func (d *Dispatcher) DoBind(expr string) error {
	var lastErr error
	accepted := false
	for _, entry := range d.Registry.Entries() {
		if err := entry.Kbd.Eval(expr); err != nil {
			lastErr = err
			continue
		}
		accepted = true
	}
	if accepted {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return errNoEntries
}

var errNoEntries = errors.New("no configuration entries loaded")

// BroadcastLayer implements the layer_fn callback: it is passed to
// every keyboard instance as the LayerFunc capability.
func (d *Dispatcher) BroadcastLayer(name string, active bool) {
	sign := "-"
	if active {
		sign = "+"
	}
	d.IPC.Listeners.Broadcast(sign + name + "\n")
}
