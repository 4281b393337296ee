// Package device implements the evdev half of the event source plus the
// device manager: discovering devices, probing capability and identity,
// grab/ungrab, and feeding decoded events into an internal/evsource.Source.
package device

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"github.com/keyremap/keyremapd/internal/domain"
	"github.com/keyremap/keyremapd/internal/evsource"
)

const eviocgid = 0x80084502

type inputID struct {
	Bustype, Vendor, Product, Version uint16
}

// queryInputID issues EVIOCGID directly, independent of whatever identity
// accessors the evdev wrapper library does or doesn't expose.
func queryInputID(path string) (vendor, product uint16, err error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s for id query: %w", path, err)
	}
	defer unix.Close(fd)

	var id inputID
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgid, uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return 0, 0, fmt.Errorf("EVIOCGID on %s: %w", path, errno)
	}
	return id.Vendor, id.Product, nil
}

func probeCapabilities(dev *evdev.InputDevice) domain.CapabilitySet {
	var caps domain.CapabilitySet

	for _, t := range dev.CapableTypes() {
		switch t {
		case evdev.EV_KEY:
			for _, code := range dev.CapableEvents(evdev.EV_KEY) {
				// Codes 30..50 (KEY_A through KEY_M) cover the home-row and
				// bottom-row letter keys; a device exposing any of them is
				// treated as a keyboard.
				if code >= 30 && code <= 50 {
					caps |= domain.CapabilitySet(domain.CapKeyboard)
					break
				}
			}
		case evdev.EV_REL:
			caps |= domain.CapabilitySet(domain.CapMouseRelative)
		case evdev.EV_ABS:
			caps |= domain.CapabilitySet(domain.CapMouseAbsolute)
		}
	}
	return caps
}

// handle pairs the evdev library's open device with the reserved-path
// plumbing the manager needs to stop its reader goroutine on removal.
type handle struct {
	path string
	dev  *evdev.InputDevice
	stop chan struct{}
}

// Enumerate globs /dev/input/event* and returns a Device for every node
// the kernel will open. It does not filter by name; callers add the
// result through Manager.AddDevice, which ignores the virtual sink's own
// name so the daemon never grabs its own output.
func Enumerate() ([]*domain.Device, error) {
	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("globbing /dev/input: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(matches[i], "/dev/input/event"))
		nj, _ := strconv.Atoi(strings.TrimPrefix(matches[j], "/dev/input/event"))
		return ni < nj
	})

	var out []*domain.Device
	for _, path := range matches {
		dev, err := Probe(path)
		if err != nil {
			continue
		}
		out = append(out, dev)
	}
	return out, nil
}

// Probe opens path just long enough to read its name, identity, and
// capabilities, then closes it, returning a domain.Device descriptor.
func Probe(path string) (*domain.Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer dev.Close()

	name, err := dev.Name()
	if err != nil {
		return nil, fmt.Errorf("reading name of %s: %w", path, err)
	}

	vendor, product, err := queryInputID(path)
	if err != nil {
		return nil, err
	}

	return &domain.Device{
		Path:      path,
		Name:      name,
		VendorID:  vendor,
		ProductID: product,
		Caps:      probeCapabilities(dev),
	}, nil
}
