package domain

import "testing"

func TestDeviceID(t *testing.T) {
	d := &Device{VendorID: 0x046d, ProductID: 0xc52b}
	want := uint32(0x046d)<<16 | uint32(0xc52b)
	if got := d.ID(); got != want {
		t.Errorf("ID() = %#x, want %#x", got, want)
	}
}

func TestCapabilitySet(t *testing.T) {
	var c CapabilitySet
	if c.HasKeyboard() || c.HasPointer() {
		t.Fatal("zero-value CapabilitySet reports a capability")
	}

	c |= CapabilitySet(CapKeyboard)
	if !c.HasKeyboard() {
		t.Error("HasKeyboard() = false after setting CapKeyboard")
	}
	if c.HasPointer() {
		t.Error("HasPointer() = true without a pointer capability set")
	}

	c |= CapabilitySet(CapMouseRelative)
	if !c.HasPointer() {
		t.Error("HasPointer() = false after setting CapMouseRelative")
	}
}

func TestDeviceBound(t *testing.T) {
	d := &Device{}
	if d.Bound() {
		t.Fatal("new device reports Bound()")
	}
	d.Binding = &Binding{EntryID: 1, Generation: 1}
	if !d.Bound() {
		t.Error("Bound() = false with a non-nil Binding")
	}
}

func TestDeviceTableAddRemoveCompacts(t *testing.T) {
	var table DeviceTable

	a := &Device{Path: "/dev/input/event0"}
	b := &Device{Path: "/dev/input/event1"}
	c := &Device{Path: "/dev/input/event2"}

	for _, d := range []*Device{a, b, c} {
		if err := table.Add(d); err != nil {
			t.Fatalf("Add(%s): %v", d.Path, err)
		}
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}

	if !table.Remove("/dev/input/event1") {
		t.Fatal("Remove() reported false for a present device")
	}
	if table.Find("/dev/input/event1") != nil {
		t.Error("Find() still returns the removed device")
	}

	all := table.All()
	if len(all) != 2 || all[0] != a || all[1] != c {
		t.Errorf("All() = %v, want [a c] in order", all)
	}
}

func TestDeviceTableFull(t *testing.T) {
	var table DeviceTable
	for i := 0; i < MaxDevices; i++ {
		if err := table.Add(&Device{Path: string(rune(i))}); err != nil {
			t.Fatalf("Add() failed before reaching capacity: %v", err)
		}
	}
	if err := table.Add(&Device{Path: "overflow"}); err == nil {
		t.Error("Add() beyond MaxDevices did not return an error")
	}
}
