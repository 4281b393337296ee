// Package ipc implements the IPC server and the fixed-size message
// frame it speaks: RELOAD, BIND, and LAYER_LISTEN requests dispatched
// over a local (AF_UNIX) stream socket, replying SUCCESS or FAIL, with
// LAYER_LISTEN connections promoted to a bounded listener set that receives
// plain-text layer activation lines.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the frame's type field.
type MessageType uint32

const (
	TypeReload MessageType = iota
	TypeBind
	TypeLayerListen
	TypeSuccess
	TypeFail
)

// MaxIPCMessageSize bounds the payload carried in a frame.
const MaxIPCMessageSize = 4096

const frameWireSize = 4 + 4 + MaxIPCMessageSize

// Frame is one decoded IPC message.
type Frame struct {
	Type MessageType
	Data []byte
}

// ReadFrame reads one fixed-size frame off the wire.
func ReadFrame(r io.Reader) (*Frame, error) {
	buf := make([]byte, frameWireSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading ipc frame: %w", err)
	}

	typ := MessageType(binary.LittleEndian.Uint32(buf[0:4]))
	sz := binary.LittleEndian.Uint32(buf[4:8])
	if sz > MaxIPCMessageSize {
		return nil, fmt.Errorf("ipc frame payload too large: %d", sz)
	}

	data := make([]byte, sz)
	copy(data, buf[8:8+sz])
	return &Frame{Type: typ, Data: data}, nil
}

// WriteFrame writes one fixed-size frame onto the wire.
func WriteFrame(w io.Writer, typ MessageType, payload []byte) error {
	if len(payload) > MaxIPCMessageSize {
		return fmt.Errorf("ipc payload exceeds %d bytes", MaxIPCMessageSize)
	}

	buf := make([]byte, frameWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:8+len(payload)], payload)

	_, err := w.Write(buf)
	return err
}
