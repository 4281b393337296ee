package device

import (
	"log/slog"

	evdev "github.com/holoplot/go-evdev"

	"github.com/keyremap/keyremapd/internal/domain"
	"github.com/keyremap/keyremapd/internal/evsource"
	"github.com/keyremap/keyremapd/internal/registry"
	"github.com/keyremap/keyremapd/internal/vsink"
)

// Manager owns the device table and decides, for every device it knows
// about, whether to grab it and which registry entry it is bound to.
type Manager struct {
	table    domain.DeviceTable
	registry *registry.Registry
	source   *evsource.Source
	logger   *slog.Logger

	handles map[string]*handle
}

// New builds a device manager wired to the registry it looks up bindings
// in and the event source it feeds decoded events into.
func New(reg *registry.Registry, source *evsource.Source, logger *slog.Logger) *Manager {
	return &Manager{
		registry: reg,
		source:   source,
		logger:   logger,
		handles:  make(map[string]*handle),
	}
}

// AddDevice appends dev to the table and binds it, unless its name matches
// the virtual sink sentinel.
func (m *Manager) AddDevice(dev *domain.Device) {
	if dev.Name == vsink.VirtualName {
		m.logger.Debug("ignoring virtual sink device add", "path", dev.Path)
		return
	}
	if err := m.table.Add(dev); err != nil {
		m.logger.Warn("device table full, ignoring device", "path", dev.Path, "error", err)
		return
	}
	m.Bind(dev)
}

// RemoveDevice compacts dev out of the table and stops its reader
// goroutine if it was grabbed.
func (m *Manager) RemoveDevice(path string) {
	if h, ok := m.handles[path]; ok {
		close(h.stop)
		h.dev.Close()
		delete(m.handles, path)
	}
	m.table.Remove(path)
}

// Bind computes the device's id, resolves the best-matching registry
// entry, and grabs or ungrabs the device accordingly.
func (m *Manager) Bind(dev *domain.Device) {
	id := dev.ID()
	rank, entry := m.registry.Lookup(id)

	shouldGrab := (rank >= 1 && dev.Caps.HasKeyboard()) || (rank == 2 && dev.Caps.HasPointer())

	if !shouldGrab {
		m.ungrab(dev)
		dev.Binding = nil
		return
	}

	if err := m.grab(dev); err != nil {
		m.logger.Warn("failed to grab device", "path", dev.Path, "error", err)
		dev.Binding = nil
		return
	}

	dev.Binding = &domain.Binding{EntryID: entry.ID, Generation: m.registry.Generation()}
}

// RebindAll re-evaluates every device in the table against the current
// registry generation. Called after a reload.
func (m *Manager) RebindAll() {
	for _, dev := range m.table.All() {
		m.Bind(dev)
	}
}

func (m *Manager) grab(dev *domain.Device) error {
	if _, ok := m.handles[dev.Path]; ok {
		// Already grabbed by this process; a second EVIOCGRAB on the same
		// device is refused by the kernel with EBUSY.
		return nil
	}

	ed, err := evdev.Open(dev.Path)
	if err != nil {
		return err
	}
	if err := ed.Grab(); err != nil {
		ed.Close()
		return err
	}

	h := &handle{path: dev.Path, dev: ed, stop: make(chan struct{})}
	m.handles[dev.Path] = h
	go m.readLoop(dev, h)
	return nil
}

func (m *Manager) ungrab(dev *domain.Device) {
	h, ok := m.handles[dev.Path]
	if !ok {
		return
	}
	close(h.stop)
	h.dev.Ungrab()
	h.dev.Close()
	delete(m.handles, dev.Path)
}

// readLoop decodes raw evdev events for one grabbed device and forwards
// them to the event source. It is a pure forwarder: all state mutation
// happens in the dispatcher, which is the event source's sole consumer.
func (m *Manager) readLoop(dev *domain.Device, h *handle) {
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		ev, err := h.dev.ReadOne()
		if err != nil {
			return
		}

		de, ok := decode(ev)
		if !ok {
			continue
		}
		m.source.PushDevice(dev, de)
	}
}

func decode(ev *evdev.InputEvent) (evsource.DevEvent, bool) {
	switch ev.Type {
	case evdev.EV_KEY:
		return evsource.DevEvent{
			Kind:    evsource.KindKey,
			Code:    uint16(ev.Code),
			Pressed: ev.Value != 0,
		}, true
	case evdev.EV_REL:
		switch ev.Code {
		case evdev.REL_X:
			return evsource.DevEvent{Kind: evsource.KindMouseMove, DX: ev.Value}, true
		case evdev.REL_Y:
			return evsource.DevEvent{Kind: evsource.KindMouseMove, DY: ev.Value}, true
		case evdev.REL_WHEEL:
			return evsource.DevEvent{Kind: evsource.KindMouseScroll, DY: ev.Value}, true
		case evdev.REL_HWHEEL:
			return evsource.DevEvent{Kind: evsource.KindMouseScroll, DX: ev.Value}, true
		}
	case evdev.EV_ABS:
		switch ev.Code {
		case evdev.ABS_X:
			return evsource.DevEvent{Kind: evsource.KindMouseMoveAbs, DX: ev.Value, HasDX: true}, true
		case evdev.ABS_Y:
			return evsource.DevEvent{Kind: evsource.KindMouseMoveAbs, DY: ev.Value, HasDY: true}, true
		}
	}
	return evsource.DevEvent{}, false
}

// Table exposes the device table for callers that need to enumerate
// current devices.
func (m *Manager) Table() *domain.DeviceTable { return &m.table }
