// Package hotplug monitors kernel device events over netlink and turns
// "input" subsystem add/remove uevents into DEV_ADD/DEV_REMOVE events for
// the event source.
package hotplug

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/keyremap/keyremapd/internal/device"
	"github.com/keyremap/keyremapd/internal/domain"
	"github.com/keyremap/keyremapd/internal/evsource"
)

const netlinkKobjectUevent = 15

// Monitor listens for kernel "input" subsystem uevents.
type Monitor struct {
	fd     int
	source *evsource.Source
	logger *slog.Logger
	stop   chan struct{}
}

// New opens the netlink socket and subscribes to the kernel broadcast
// group. Callers should call Run in its own goroutine.
func New(source *evsource.Source, logger *slog.Logger) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, netlinkKobjectUevent)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Monitor{fd: fd, source: source, logger: logger, stop: make(chan struct{})}, nil
}

// Close releases the netlink socket, unblocking Run.
func (m *Monitor) Close() error {
	close(m.stop)
	return unix.Close(m.fd)
}

// Run reads uevents until Close is called, translating "input" subsystem
// add/remove actions for /dev/input/eventN nodes into device events.
func (m *Monitor) Run() {
	buf := make([]byte, 8192)
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}

		ev := parseUevent(buf[:n])
		if ev == nil || ev.subsystem != "input" {
			continue
		}
		if !strings.HasPrefix(filepath.Base(ev.devPath), "event") {
			continue
		}

		path := "/dev/" + ev.devPath
		switch ev.action {
		case "add":
			dev, err := device.Probe(path)
			if err != nil {
				m.logger.Debug("hotplug add: probe failed", "path", path, "error", err)
				continue
			}
			m.source.PushDeviceAdd(dev)
		case "remove":
			m.source.PushDeviceRemove(&domain.Device{Path: path})
		}
	}
}

type uevent struct {
	action    string
	kobj      string
	subsystem string
	devPath   string
}

// parseUevent decodes the "ACTION@KOBJ\0KEY=VALUE\0..." netlink payload,
// skipping an optional libudev binary header.
func parseUevent(data []byte) *uevent {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] == 0 {
				rest := data[i+1:]
				if idx := bytes.IndexByte(rest, '@'); idx > 0 && idx < 20 {
					data = rest
					break
				}
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) == 0 || len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	atIdx := strings.Index(header, "@")
	if atIdx < 1 {
		return nil
	}

	ev := &uevent{action: header[:atIdx], kobj: header[atIdx+1:]}

	for _, part := range parts[1:] {
		if len(part) == 0 {
			continue
		}
		kv := string(part)
		eq := strings.Index(kv, "=")
		if eq < 1 {
			continue
		}
		key, value := kv[:eq], kv[eq+1:]
		switch key {
		case "SUBSYSTEM":
			ev.subsystem = value
		case "DEVNAME":
			ev.devPath = value
		}
	}
	return ev
}
