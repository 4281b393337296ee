// Package registry holds the ordered collection of parsed remapping
// configurations and resolves a device identity to the best-matching one.
// The configuration grammar and its parser live outside this package;
// it only depends on the two small interfaces below.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keyremap/keyremapd/internal/kbdiface"
)

// Matcher is implemented by a parsed configuration. Rank is the match
// contract: 0 = no match, 1 = keyboard-only match, 2 = match extends to
// pointer devices.
type Matcher interface {
	CheckMatch(id uint32) int
}

// Parser turns one configuration file's contents into a Matcher plus the
// keyboard instance built from it. It is supplied by the (out of scope)
// configuration grammar package.
type Parser interface {
	Parse(path string, emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) (Matcher, kbdiface.Instance, error)
}

// Entry is a parsed configuration plus the keyboard instance built from it.
// It exclusively owns that instance. ID is the entry's index within the
// current generation's entries slice, used by a device's Binding to refer
// back to it without holding a raw pointer across a reload.
type Entry struct {
	ID     int
	Path   string
	Config Matcher
	Kbd    kbdiface.Instance
}

// Registry is the ordered collection of configuration entries. Iteration
// order is reverse of load order: the most-recently-loaded file is first,
// so it wins ties in Lookup.
type Registry struct {
	parser Parser
	emit   kbdiface.EmitKeyFunc
	layer  kbdiface.LayerFunc

	entries    []*Entry
	generation uint64
}

// New builds an empty registry. emit/layer are the two callback
// capabilities every keyboard instance built by this registry is
// constructed with.
func New(parser Parser, emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) *Registry {
	return &Registry{parser: parser, emit: emit, layer: layer}
}

// Generation returns the current reload generation, bumped by every
// successful Load.
// Devices compare this against the generation captured in their Binding to
// detect staleness across a reload.
func (r *Registry) Generation() uint64 { return r.generation }

// Load scans dir for files whose name ends in ".conf" (subdirectories and
// all other names are skipped) and parses each into an Entry, pushed to the
// front of the list. A parse failure aborts the whole load: the registry is
// left exactly as it was before Load was called, and the error is returned
// for the caller to treat as fatal.
func (r *Registry) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading config directory %s: %w", dir, err)
	}

	var loaded []*Entry
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if !strings.HasSuffix(de.Name(), ".conf") {
			continue
		}

		path := filepath.Join(dir, de.Name())
		matcher, kbd, err := r.parser.Parse(path, r.emit, r.layer)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		// Prepend so later files in this load end up earlier in the final
		// order, matching the "most-recently-loaded first" rule.
		loaded = append([]*Entry{{Path: path, Config: matcher, Kbd: kbd}}, loaded...)
	}

	for i, e := range loaded {
		e.ID = i
	}

	r.entries = loaded
	r.generation++
	return nil
}

// EntryByID returns the entry with the given ID in the current generation,
// or nil if it is out of range (e.g. the Binding predates a reload).
func (r *Registry) EntryByID(id int) *Entry {
	if id < 0 || id >= len(r.entries) {
		return nil
	}
	return r.entries[id]
}

// Free destroys every entry. Keyboard instances have no explicit Close in
// the kbdiface contract; the registry simply drops its references so they
// become eligible for garbage collection.
func (r *Registry) Free() {
	r.entries = nil
}

// Lookup returns the entry with the strictly greatest CheckMatch rank for
// id, resolving ties to the first entry encountered in iteration order
// (i.e. the most recently loaded). Rank 0 means no binding.
func (r *Registry) Lookup(id uint32) (rank int, entry *Entry) {
	best := 0
	var bestEntry *Entry
	for _, e := range r.entries {
		rank := e.Config.CheckMatch(id)
		if rank > best {
			best = rank
			bestEntry = e
		}
	}
	return best, bestEntry
}

// Entries returns the current entries in iteration order. The returned
// slice must not be mutated by the caller.
func (r *Registry) Entries() []*Entry {
	return r.entries
}
