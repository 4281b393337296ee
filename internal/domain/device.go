// Package domain holds the core data model: devices, capabilities, and the
// opaque association between a device and the keyboard instance bound to it.
package domain

import "fmt"

// Capability is a bit in a device's CapabilitySet.
type Capability uint8

const (
	CapKeyboard Capability = 1 << iota
	CapMouseRelative
	CapMouseAbsolute
)

// CapabilitySet is the set of input capabilities a device exposes.
type CapabilitySet uint8

func (c CapabilitySet) Has(cap Capability) bool { return c&CapabilitySet(cap) != 0 }

func (c CapabilitySet) HasKeyboard() bool { return c.Has(CapKeyboard) }
func (c CapabilitySet) HasPointer() bool {
	return c.Has(CapMouseRelative) || c.Has(CapMouseAbsolute)
}

// Binding is the opaque association a device holds to a keyboard instance
// owned by some registry entry. It is a generation-counted reference rather
// than a raw pointer: the registry bumps its generation on every reload, so a
// Binding captured before a reload is recognizably stale afterwards instead
// of dangling.
type Binding struct {
	EntryID    int
	Generation uint64
}

// Device is a single physical input device under management. It is mutated
// only by the device manager (internal/device).
type Device struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Caps      CapabilitySet
	Name      string

	// Binding is nil when the device is ungrabbed/ignored.
	Binding *Binding
}

// ID returns the (vendor,product) identity used for registry lookups.
func (d *Device) ID() uint32 {
	return uint32(d.VendorID)<<16 | uint32(d.ProductID)
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%04x:%04x)", d.Path, d.VendorID, d.ProductID)
}

// Bound reports whether the device currently has a live association.
func (d *Device) Bound() bool { return d.Binding != nil }

// MaxDevices bounds the device table.
const MaxDevices = 256

// DeviceTable is a bounded, order-preserving collection of active devices.
// Insertion appends; removal compacts the remaining entries in place so
// iteration order among survivors never changes.
type DeviceTable struct {
	devices []*Device
}

// Add appends dev to the table. It returns an error if the table is full.
func (t *DeviceTable) Add(dev *Device) error {
	if len(t.devices) >= MaxDevices {
		return fmt.Errorf("device table full (capacity %d)", MaxDevices)
	}
	t.devices = append(t.devices, dev)
	return nil
}

// Remove deletes the device with the given path, compacting the slice.
// It reports whether a device was found and removed.
func (t *DeviceTable) Remove(path string) bool {
	for i, d := range t.devices {
		if d.Path == path {
			t.devices = append(t.devices[:i], t.devices[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the device with the given path, or nil.
func (t *DeviceTable) Find(path string) *Device {
	for _, d := range t.devices {
		if d.Path == path {
			return d
		}
	}
	return nil
}

// All returns the live devices in table order. The returned slice must not
// be mutated by the caller.
func (t *DeviceTable) All() []*Device {
	return t.devices
}

// Len returns the number of devices currently tracked.
func (t *DeviceTable) Len() int {
	return len(t.devices)
}
