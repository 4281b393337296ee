// Package priority requests a favorable scheduling priority for the event
// loop. Input-device remapping is latency sensitive; a lowered nice value
// helps the daemon keep up under load. Failure here is never fatal — most
// commonly it just means the daemon isn't running as root.
package priority

import "golang.org/x/sys/unix"

// niceValue is a modest realtime-ish nice bump rather than a full
// SCHED_FIFO switch, which would need CAP_SYS_NICE and complicate
// cooperation with the rest of the system under load.
const niceValue = -10

// RequestRealtime attempts to lower the calling process's nice value. The
// error is informational; callers should log and continue rather than
// treat it as fatal.
func RequestRealtime() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, niceValue)
}
