package hotplug

import "testing"

func TestParseUeventBasicAdd(t *testing.T) {
	raw := "add@/devices/virtual/input/input5/event3\x00ACTION=add\x00SUBSYSTEM=input\x00DEVNAME=input/event3\x00"
	ev := parseUevent([]byte(raw))
	if ev == nil {
		t.Fatal("parseUevent() = nil")
	}
	if ev.action != "add" {
		t.Errorf("action = %q, want add", ev.action)
	}
	if ev.subsystem != "input" {
		t.Errorf("subsystem = %q, want input", ev.subsystem)
	}
	if ev.devPath != "input/event3" {
		t.Errorf("devPath = %q, want input/event3", ev.devPath)
	}
}

func TestParseUeventRemove(t *testing.T) {
	raw := "remove@/devices/virtual/input/input5/event3\x00ACTION=remove\x00SUBSYSTEM=input\x00DEVNAME=input/event3\x00"
	ev := parseUevent([]byte(raw))
	if ev == nil || ev.action != "remove" {
		t.Fatalf("parseUevent() = %+v, want action=remove", ev)
	}
}

func TestParseUeventIgnoresNonInputSubsystem(t *testing.T) {
	raw := "add@/devices/pci0000:00/0000:00:1f.2\x00ACTION=add\x00SUBSYSTEM=block\x00DEVNAME=sda\x00"
	ev := parseUevent([]byte(raw))
	if ev == nil {
		t.Fatal("parseUevent() = nil")
	}
	if ev.subsystem == "input" {
		t.Error("subsystem incorrectly parsed as input")
	}
}

func TestParseUeventEmpty(t *testing.T) {
	if ev := parseUevent(nil); ev != nil {
		t.Errorf("parseUevent(nil) = %+v, want nil", ev)
	}
}

func TestParseUeventMalformedHeader(t *testing.T) {
	if ev := parseUevent([]byte("not-a-header\x00FOO=bar\x00")); ev != nil {
		t.Errorf("parseUevent() = %+v, want nil for a header with no '@'", ev)
	}
}

