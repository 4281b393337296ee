// Package evsource implements a single blocking Next() call that serializes
// every device event, hotplug notification, externally-registered fd
// activity, and timeout into one handler invocation at a time. Collection
// happens concurrently (one goroutine per device, one per watched fd) but
// every goroutine is a pure forwarder onto one channel; Next is the sole
// consumer, which is what keeps dispatch single-threaded.
package evsource

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/keyremap/keyremapd/internal/domain"
)

// Kind discriminates the payload of a DEV_EVENT.
type Kind int

const (
	KindKey Kind = iota
	KindMouseMove
	KindMouseMoveAbs
	KindMouseScroll
)

// DevEvent is the decoded payload of a raw device event.
type DevEvent struct {
	Kind    Kind
	Code    uint16 // KindKey
	Pressed bool   // KindKey
	DX, DY  int32  // KindMouseMove / KindMouseMoveAbs (x,y) / KindMouseScroll

	// HasDX/HasDY report which axis KindMouseMoveAbs actually carries; a
	// single ABS_X or ABS_Y report never carries both. Unlike relative
	// motion, an absolute coordinate of 0 is a real position, not "no
	// movement", so the unset axis can't be inferred from its zero value.
	HasDX, HasDY bool
}

// Type names the variant of an Event.
type Type int

const (
	EventTimeout Type = iota
	EventDevice
	EventDeviceAdd
	EventDeviceRemove
	EventFDActivity
)

// Event is the single type Next() hands to the caller's handler.
type Event struct {
	Type Type
	Dev  *domain.Device

	DevEvent DevEvent

	// TimeLeft is the number of milliseconds remaining on the pending
	// timeout, if one was armed, as of this event's arrival. A handler
	// that wants a non-key event to leave an in-flight timeout
	// undisturbed should return it unchanged rather than 0.
	TimeLeft int

	FD int
}

type msgKind int

const (
	msgDevice msgKind = iota
	msgDeviceAdd
	msgDeviceRemove
	msgFDActivity
)

type rawMsg struct {
	kind     msgKind
	dev      *domain.Device
	devEvent DevEvent
	fd       int
}

// Source is the process-singleton event source.
type Source struct {
	ch   chan rawMsg
	done chan struct{}

	closeOnce sync.Once

	timer    *time.Timer
	armed    bool
	deadline time.Time

	watchers map[int]*fdWatcher
}

type fdWatcher struct {
	fd  int
	ack chan struct{}
}

// New builds an empty event source.
func New() *Source {
	return &Source{
		ch:       make(chan rawMsg),
		done:     make(chan struct{}),
		watchers: make(map[int]*fdWatcher),
	}
}

// Close stops every registered watcher and unblocks any pending Next call.
// It is safe to call more than once.
func (s *Source) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// PushDevice is called by a device's reader goroutine for every decoded
// raw event.
func (s *Source) PushDevice(dev *domain.Device, de DevEvent) {
	select {
	case s.ch <- rawMsg{kind: msgDevice, dev: dev, devEvent: de}:
	case <-s.done:
	}
}

// PushDeviceAdd is called by the hotplug monitor (or initial enumeration)
// when a device appears.
func (s *Source) PushDeviceAdd(dev *domain.Device) {
	select {
	case s.ch <- rawMsg{kind: msgDeviceAdd, dev: dev}:
	case <-s.done:
	}
}

// PushDeviceRemove is called by the hotplug monitor when a device
// disappears.
func (s *Source) PushDeviceRemove(dev *domain.Device) {
	select {
	case s.ch <- rawMsg{kind: msgDeviceRemove, dev: dev}:
	case <-s.done:
	}
}

// RegisterFD starts watching fd for readability with unix.Poll and delivers
// an EventFDActivity each time it becomes readable. Because
// readability is level-triggered, the watcher waits for Next to finish
// handling the activity (the handler is expected to drain it, e.g. by
// accepting the pending connection) before polling again.
func (s *Source) RegisterFD(fd int) {
	w := &fdWatcher{fd: fd, ack: make(chan struct{})}
	s.watchers[fd] = w
	go s.watchFD(w)
}

func (s *Source) watchFD(w *fdWatcher) {
	pfds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(pfds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}

		select {
		case s.ch <- rawMsg{kind: msgFDActivity, fd: w.fd}:
		case <-s.done:
			return
		}

		select {
		case <-w.ack:
		case <-s.done:
			return
		}
	}
}

// Next blocks until an event is available, invokes handler, and uses its
// return value as the number of milliseconds until a TIMEOUT should fire
// if nothing else intervenes (0 disarms the timer). It returns only when
// Close is called.
func (s *Source) Next(handler func(Event) int) error {
	for {
		var timeoutC <-chan time.Time
		if s.timer != nil {
			timeoutC = s.timer.C
		}

		select {
		case <-s.done:
			return nil

		case <-timeoutC:
			s.timer = nil
			s.armed = false
			delay := handler(Event{Type: EventTimeout})
			s.rearm(delay)

		case msg := <-s.ch:
			timeLeft := s.timeLeft()
			ev := s.toEvent(msg, timeLeft)
			delay := handler(ev)

			if msg.kind == msgFDActivity {
				if w, ok := s.watchers[msg.fd]; ok {
					select {
					case w.ack <- struct{}{}:
					case <-s.done:
						return nil
					}
				}
			}

			s.rearm(delay)
		}
	}
}

func (s *Source) toEvent(msg rawMsg, timeLeft int) Event {
	switch msg.kind {
	case msgDevice:
		return Event{Type: EventDevice, Dev: msg.dev, DevEvent: msg.devEvent, TimeLeft: timeLeft}
	case msgDeviceAdd:
		return Event{Type: EventDeviceAdd, Dev: msg.dev, TimeLeft: timeLeft}
	case msgDeviceRemove:
		return Event{Type: EventDeviceRemove, Dev: msg.dev, TimeLeft: timeLeft}
	case msgFDActivity:
		return Event{Type: EventFDActivity, FD: msg.fd, TimeLeft: timeLeft}
	}
	return Event{}
}

func (s *Source) timeLeft() int {
	if !s.armed {
		return 0
	}
	d := time.Until(s.deadline)
	if d <= 0 {
		return 0
	}
	return int(d / time.Millisecond)
}

func (s *Source) rearm(delayMS int) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	if delayMS > 0 {
		s.deadline = time.Now().Add(time.Duration(delayMS) * time.Millisecond)
		s.timer = time.NewTimer(time.Duration(delayMS) * time.Millisecond)
		s.armed = true
	}
}
