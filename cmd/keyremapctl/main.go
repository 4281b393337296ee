// Command keyremapctl is the companion CLI: it speaks the IPC frame
// protocol to request a reload, bind an ad-hoc remap expression, or
// stream layer activation lines from a running keyremapd.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/keyremap/keyremapd/internal/ipc"
)

func main() {
	socketPath := flag.String("socket", "/run/keyremapd.socket", "Path to the daemon's IPC socket")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-socket path] <reload|bind EXPR|listen>\n", os.Args[0])
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "keyremapctl: connecting:", err)
		os.Exit(1)
	}
	defer conn.Close()

	switch args[0] {
	case "reload":
		runRequest(conn, ipc.TypeReload, nil)
	case "bind":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		runRequest(conn, ipc.TypeBind, []byte(args[1]))
	case "listen":
		runListen(conn)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runRequest(conn net.Conn, typ ipc.MessageType, payload []byte) {
	if err := ipc.WriteFrame(conn, typ, payload); err != nil {
		fmt.Fprintln(os.Stderr, "keyremapctl: sending request:", err)
		os.Exit(1)
	}

	resp, err := ipc.ReadFrame(conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "keyremapctl: reading reply:", err)
		os.Exit(1)
	}

	switch resp.Type {
	case ipc.TypeSuccess:
		fmt.Println("OK")
	case ipc.TypeFail:
		fmt.Fprintln(os.Stderr, "FAIL:", string(resp.Data))
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "keyremapctl: unexpected reply type")
		os.Exit(1)
	}
}

func runListen(conn net.Conn) {
	if err := ipc.WriteFrame(conn, ipc.TypeLayerListen, nil); err != nil {
		fmt.Fprintln(os.Stderr, "keyremapctl: sending request:", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
}
