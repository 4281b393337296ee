package device

import (
	"io"
	"log/slog"
	"testing"

	"github.com/keyremap/keyremapd/internal/domain"
	"github.com/keyremap/keyremapd/internal/evsource"
	"github.com/keyremap/keyremapd/internal/kbdiface"
	"github.com/keyremap/keyremapd/internal/kbdiface/fake"
	"github.com/keyremap/keyremapd/internal/registry"
	"github.com/keyremap/keyremapd/internal/vsink"
)

type rankZeroMatcher struct{}

func (rankZeroMatcher) CheckMatch(uint32) int { return 0 }

type stubParser struct{}

func (stubParser) Parse(path string, emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) (registry.Matcher, kbdiface.Instance, error) {
	return rankZeroMatcher{}, fake.New(emit, layer), nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := registry.New(stubParser{}, nil, nil)
	source := evsource.New()
	t.Cleanup(source.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, source, logger)
}

func TestBindNoMatchLeavesDeviceUnbound(t *testing.T) {
	m := newTestManager(t)
	dev := &domain.Device{Path: "/dev/input/event0", Caps: domain.CapabilitySet(domain.CapKeyboard)}

	m.Bind(dev)

	if dev.Binding != nil {
		t.Errorf("Binding = %+v, want nil for a rank-0 match", dev.Binding)
	}
}

func TestAddDeviceIgnoresVirtualSink(t *testing.T) {
	m := newTestManager(t)
	dev := &domain.Device{Path: "/dev/input/event9", Name: vsink.VirtualName}

	m.AddDevice(dev)

	if m.Table().Len() != 0 {
		t.Errorf("Table().Len() = %d, want 0 (virtual sink must never be tracked)", m.Table().Len())
	}
}

func TestAddDeviceTracksUnmatchedDevice(t *testing.T) {
	m := newTestManager(t)
	dev := &domain.Device{Path: "/dev/input/event1", Name: "some keyboard"}

	m.AddDevice(dev)

	if m.Table().Len() != 1 {
		t.Fatalf("Table().Len() = %d, want 1", m.Table().Len())
	}
	if m.Table().Find(dev.Path) == nil {
		t.Error("Find() did not locate the added device")
	}
}

func TestRemoveDeviceCompactsTable(t *testing.T) {
	m := newTestManager(t)
	dev := &domain.Device{Path: "/dev/input/event2", Name: "some mouse"}
	m.AddDevice(dev)

	m.RemoveDevice(dev.Path)

	if m.Table().Len() != 0 {
		t.Errorf("Table().Len() = %d, want 0 after RemoveDevice", m.Table().Len())
	}
}
