// Package vsink implements the virtual sink: the single synthesized
// keyboard+mouse device the daemon replays remapped events through. It is
// built directly on the /dev/uinput ioctl interface via golang.org/x/sys/unix
// rather than a higher-level uinput wrapper, since one device needs to carry
// keyboard, relative-mouse, and absolute-mouse capability together; a
// wrapper that creates one /dev/uinput registration per device type cannot
// express that (see DESIGN.md).
package vsink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// VirtualName is the fixed display name the synthesized device is created
// with. The device manager ignores DEV_ADD events carrying this exact
// name so the daemon never grabs its own output.
const VirtualName = "keyd virtual keyboard"

const (
	uinputPath        = "/dev/uinput"
	uinputMaxNameSize = 80
	absCnt            = 64

	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relWheel  = 0x08
	relHWheel = 0x06

	absX = 0x00
	absY = 0x01

	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetRelBit = 0x40045566
	uiSetAbsBit = 0x40045567
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	// KeyCodeMax is the highest evdev key code this sink will register
	// and the highest code the keystate vector tracks.
	KeyCodeMax = 255
)

type inputID struct {
	Bustype, Vendor, Product, Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev from linux/uinput.h. The
// legacy write-based setup interface is used (rather than UI_DEV_SETUP +
// UI_ABS_SETUP) so absolute axis ranges can be supplied in the same write
// as the device name and id.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// inputEvent mirrors struct input_event on a 64-bit kernel.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Sink is the virtual sink singleton: the live key-down set plus the
// uinput fd events are replayed through.
type Sink struct {
	fd       int
	keystate [KeyCodeMax + 1]bool
}

// New creates and registers the synthesized device.
func New() (*Sink, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", uinputPath, err)
	}

	s := &Sink{fd: fd}
	if err := s.setup(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *Sink) setup() error {
	if err := s.ioctl(uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("enabling EV_KEY: %w", err)
	}
	if err := s.ioctl(uiSetEvBit, evRel); err != nil {
		return fmt.Errorf("enabling EV_REL: %w", err)
	}
	if err := s.ioctl(uiSetEvBit, evAbs); err != nil {
		return fmt.Errorf("enabling EV_ABS: %w", err)
	}
	if err := s.ioctl(uiSetEvBit, evSyn); err != nil {
		return fmt.Errorf("enabling EV_SYN: %w", err)
	}

	for code := 0; code <= KeyCodeMax; code++ {
		if err := s.ioctl(uiSetKeyBit, uintptr(code)); err != nil {
			return fmt.Errorf("enabling key %d: %w", code, err)
		}
	}

	for _, rel := range []uintptr{relX, relY, relWheel, relHWheel} {
		if err := s.ioctl(uiSetRelBit, rel); err != nil {
			return fmt.Errorf("enabling rel axis %d: %w", rel, err)
		}
	}
	for _, abs := range []uintptr{absX, absY} {
		if err := s.ioctl(uiSetAbsBit, abs); err != nil {
			return fmt.Errorf("enabling abs axis %d: %w", abs, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], VirtualName)
	dev.ID = inputID{Bustype: 0x06, Vendor: 0x6b65, Product: 0x7964, Version: 1}
	dev.AbsMax[absX] = 65535
	dev.AbsMax[absY] = 65535

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dev); err != nil {
		return fmt.Errorf("encoding uinput_user_dev: %w", err)
	}
	if _, err := unix.Write(s.fd, buf.Bytes()); err != nil {
		return fmt.Errorf("writing device setup: %w", err)
	}

	if err := s.ioctl(uiDevCreate, 0); err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

func (s *Sink) ioctl(cmd uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), cmd, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (s *Sink) write(typ, code uint16, value int32) error {
	now := time.Now()
	ev := inputEvent{
		Sec:   now.Unix(),
		Usec:  int64(now.Nanosecond() / 1000),
		Type:  typ,
		Code:  code,
		Value: value,
	}
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	_, err := unix.Write(s.fd, buf)
	return err
}

func (s *Sink) syn() error {
	return s.write(evSyn, synReport, 0)
}

// SendKey records keystate[code]=state and forwards the event. It
// unconditionally overwrites the recorded state; callers may repeat
// releases safely.
func (s *Sink) SendKey(code uint16, pressed bool) error {
	if int(code) <= KeyCodeMax {
		s.keystate[code] = pressed
	}
	v := int32(0)
	if pressed {
		v = 1
	}
	if err := s.write(evKey, code, v); err != nil {
		return fmt.Errorf("sending key %d: %w", code, err)
	}
	return s.syn()
}

// MouseMove forwards a relative motion event unchanged.
func (s *Sink) MouseMove(dx, dy int32) error {
	if dx != 0 {
		if err := s.write(evRel, relX, dx); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := s.write(evRel, relY, dy); err != nil {
			return err
		}
	}
	return s.syn()
}

// MouseMoveAbs forwards an absolute motion event unchanged. hasX/hasY
// report which axis the source event actually carried; a coordinate of 0
// on an absolute axis is a real position, not "no movement", so the axis
// not carried must be left untouched rather than written as 0.
func (s *Sink) MouseMoveAbs(x, y int32, hasX, hasY bool) error {
	if hasX {
		if err := s.write(evAbs, absX, x); err != nil {
			return err
		}
	}
	if hasY {
		if err := s.write(evAbs, absY, y); err != nil {
			return err
		}
	}
	if !hasX && !hasY {
		return nil
	}
	return s.syn()
}

// MouseScroll forwards a scroll event unchanged.
func (s *Sink) MouseScroll(dx, dy int32) error {
	if dy != 0 {
		if err := s.write(evRel, relWheel, dy); err != nil {
			return err
		}
	}
	if dx != 0 {
		if err := s.write(evRel, relHWheel, dx); err != nil {
			return err
		}
	}
	return s.syn()
}

// Clear releases every key currently recorded as pressed, zeroing the
// keystate vector. After Clear, no key is reported pressed.
func (s *Sink) Clear() error {
	for code := 0; code <= KeyCodeMax; code++ {
		if s.keystate[code] {
			if err := s.SendKey(uint16(code), false); err != nil {
				return err
			}
		}
	}
	return nil
}

// KeyPressed reports the last recorded state for code, for tests and
// invariant checks.
func (s *Sink) KeyPressed(code uint16) bool {
	if int(code) > KeyCodeMax {
		return false
	}
	return s.keystate[code]
}

// Close destroys the synthesized device.
func (s *Sink) Close() error {
	s.ioctl(uiDevDestroy, 0)
	return unix.Close(s.fd)
}
