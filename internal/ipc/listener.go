package ipc

import (
	"net"
	"time"
)

// MaxListeners bounds the number of concurrent LAYER_LISTEN connections.
// Once full, new listen requests are refused.
const MaxListeners = 32

// writeDeadline is the per-listener back-pressure budget for a broadcast
// write: a slow reader is dropped rather than allowed to stall the
// whole broadcast.
const writeDeadline = 50 * time.Millisecond

// ListenerSet is the bounded collection of connections that asked to
// observe layer activation lines via LAYER_LISTEN.
type ListenerSet struct {
	conns []net.Conn
}

// Add registers c as a listener. It reports false, leaving c untouched for
// the caller to reject, if the set is already at MaxListeners.
func (ls *ListenerSet) Add(c net.Conn) bool {
	if len(ls.conns) >= MaxListeners {
		return false
	}
	ls.conns = append(ls.conns, c)
	return true
}

// Len reports the current listener count.
func (ls *ListenerSet) Len() int { return len(ls.conns) }

// Broadcast writes line to every listener under a short write deadline,
// dropping and closing any connection that can't keep up. line should
// already carry the "+name\n" / "-name\n" framing.
func (ls *ListenerSet) Broadcast(line string) {
	payload := []byte(line)

	live := ls.conns[:0]
	for _, c := range ls.conns {
		c.SetWriteDeadline(time.Now().Add(writeDeadline))
		if n, err := c.Write(payload); err != nil || n != len(payload) {
			c.Close()
			continue
		}
		live = append(live, c)
	}
	ls.conns = live
}

// CloseAll closes every listener connection, used on shutdown.
func (ls *ListenerSet) CloseAll() {
	for _, c := range ls.conns {
		c.Close()
	}
	ls.conns = nil
}
