package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/keyremap/keyremapd/internal/kbdiface"
	"github.com/keyremap/keyremapd/internal/kbdiface/fake"
)

// stubMatcher ranks by filename: a file named "rank2.conf" matches any id
// with rank 2, "rank1.conf" with rank 1, everything else rank 0.
type stubMatcher struct {
	rank int
}

func (m stubMatcher) CheckMatch(id uint32) int { return m.rank }

type stubParser struct {
	parseCount int
	failOn     string
}

func (p *stubParser) Parse(path string, emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) (Matcher, kbdiface.Instance, error) {
	p.parseCount++
	base := filepath.Base(path)
	if base == p.failOn {
		return nil, nil, fmt.Errorf("forced failure on %s", base)
	}

	rank := 0
	switch base {
	case "rank1.conf":
		rank = 1
	case "rank2.conf":
		rank = 2
	}
	return stubMatcher{rank: rank}, fake.New(emit, layer), nil
}

func writeConfFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.conf"), 0755); err != nil {
		t.Fatalf("creating subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("writing ignored.txt: %v", err)
	}
	return dir
}

func TestLoadSkipsNonConfAndSubdirs(t *testing.T) {
	dir := writeConfFiles(t, "rank1.conf", "rank2.conf")
	parser := &stubParser{}
	r := New(parser, nil, nil)

	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if parser.parseCount != 2 {
		t.Errorf("parseCount = %d, want 2 (subdir and .txt file skipped)", parser.parseCount)
	}
	if len(r.Entries()) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(r.Entries()))
	}
}

func TestLoadOrderMostRecentFirst(t *testing.T) {
	dir := writeConfFiles(t, "a.conf", "b.conf", "c.conf")
	r := New(&stubParser{}, nil, nil)

	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(entries))
	}
	// os.ReadDir returns entries sorted by name: a, b, c. Load prepends each
	// as it's parsed, so the final order is reverse: c, b, a.
	got := []string{filepath.Base(entries[0].Path), filepath.Base(entries[1].Path), filepath.Base(entries[2].Path)}
	want := []string{"c.conf", "b.conf", "a.conf"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entries()[%d].Path = %s, want %s", i, got[i], want[i])
		}
	}
	for i, e := range entries {
		if e.ID != i {
			t.Errorf("Entries()[%d].ID = %d, want %d", i, e.ID, i)
		}
	}
}

func TestLoadFailureLeavesRegistryUnchanged(t *testing.T) {
	dir := writeConfFiles(t, "rank1.conf")
	parser := &stubParser{}
	r := New(parser, nil, nil)
	if err := r.Load(dir); err != nil {
		t.Fatalf("initial Load() error: %v", err)
	}
	before := r.Entries()
	beforeGen := r.Generation()

	badDir := writeConfFiles(t, "bad.conf")
	parser.failOn = "bad.conf"

	if err := r.Load(badDir); err == nil {
		t.Fatal("Load() with a bad file did not return an error")
	}
	if len(r.Entries()) != len(before) {
		t.Error("Load() failure mutated the entries slice")
	}
	if r.Generation() != beforeGen {
		t.Error("Load() failure bumped the generation")
	}
}

func TestLookupPrefersHighestRank(t *testing.T) {
	dir := writeConfFiles(t, "rank1.conf", "rank2.conf")
	r := New(&stubParser{}, nil, nil)
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	rank, entry := r.Lookup(0x046d0001)
	if rank != 2 {
		t.Fatalf("Lookup rank = %d, want 2", rank)
	}
	if filepath.Base(entry.Path) != "rank2.conf" {
		t.Errorf("Lookup entry = %s, want rank2.conf", entry.Path)
	}
}

func TestLookupNoMatch(t *testing.T) {
	dir := writeConfFiles(t, "plain.conf")
	r := New(&stubParser{}, nil, nil)
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	rank, entry := r.Lookup(0xffff)
	if rank != 0 || entry != nil {
		t.Errorf("Lookup() = (%d, %v), want (0, nil)", rank, entry)
	}
}

func TestEntryByIDOutOfRange(t *testing.T) {
	r := New(&stubParser{}, nil, nil)
	if e := r.EntryByID(0); e != nil {
		t.Error("EntryByID on empty registry returned non-nil")
	}
	if e := r.EntryByID(-1); e != nil {
		t.Error("EntryByID(-1) returned non-nil")
	}
}

func TestFreeClearsEntries(t *testing.T) {
	dir := writeConfFiles(t, "rank1.conf")
	r := New(&stubParser{}, nil, nil)
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	r.Free()
	if len(r.Entries()) != 0 {
		t.Error("Free() left entries behind")
	}
}

func TestGenerationBumpsOnLoad(t *testing.T) {
	dir := writeConfFiles(t, "rank1.conf")
	r := New(&stubParser{}, nil, nil)
	g0 := r.Generation()
	if err := r.Load(dir); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if r.Generation() != g0+1 {
		t.Errorf("Generation() = %d, want %d", r.Generation(), g0+1)
	}
}
