package ipc

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("046d:c52b:30=48")

	if err := WriteFrame(&buf, TypeBind, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Type != TypeBind {
		t.Errorf("Type = %v, want TypeBind", frame.Type)
	}
	if !bytes.Equal(frame.Data, payload) {
		t.Errorf("Data = %q, want %q", frame.Data, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeReload, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Data) != 0 {
		t.Errorf("Data = %q, want empty", frame.Data)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, MaxIPCMessageSize+1)
	if err := WriteFrame(&buf, TypeBind, huge); err == nil {
		t.Error("WriteFrame accepted a payload larger than MaxIPCMessageSize")
	}
}

func TestWriteFrameWireSizeIsFixed(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, TypeReload, []byte("x"))
	if buf.Len() != frameWireSize {
		t.Errorf("wire size = %d, want %d regardless of payload length", buf.Len(), frameWireSize)
	}
}
