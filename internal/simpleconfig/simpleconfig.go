// Package simpleconfig is a minimal reference implementation of the
// registry.Parser and kbdiface.Instance collaborator interfaces. The
// remapping grammar and the full keyboard state machine (oneshot, layers,
// chords, tap-hold) are intentionally out of scope here: this
// package covers only a flat code-to-code remap table plus a match-rank
// id list, enough to load real ".conf" files and exercise the core
// end-to-end without pretending to be the real interpreter.
package simpleconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/keyremap/keyremapd/internal/kbdiface"
	"github.com/keyremap/keyremapd/internal/registry"
)

// idMatch is one (vendor,product) -> rank entry.
type idMatch struct {
	Vendor  uint16 `yaml:"vendor"`
	Product uint16 `yaml:"product"`
	Rank    int    `yaml:"rank"`
}

// fileFormat mirrors the on-disk ".conf" shape this minimal grammar reads.
type fileFormat struct {
	IDs   []idMatch        `yaml:"ids"`
	Remap map[uint16]uint16 `yaml:"remap"`
}

// Config is the parsed form of one ".conf" file: the id/rank table used for
// matching plus the flat remap table driving Instance.
type Config struct {
	ids   []idMatch
	remap map[uint16]uint16
}

// CheckMatch implements registry.Matcher.
func (c *Config) CheckMatch(id uint32) int {
	vendor := uint16(id >> 16)
	product := uint16(id)

	best := 0
	for _, m := range c.ids {
		if m.Vendor == vendor && m.Product == product && m.Rank > best {
			best = m.Rank
		}
	}
	return best
}

// Instance is the minimal kbdiface.Instance this package builds: a flat
// code-to-code remap table with no timing state, so ProcessKeyEvent always
// requests no timeout.
type Instance struct {
	remap map[uint16]uint16
	emit  kbdiface.EmitKeyFunc
	layer kbdiface.LayerFunc
}

// ProcessKeyEvent implements kbdiface.Instance.
func (i *Instance) ProcessKeyEvent(code uint16, pressed bool) int {
	out := code
	if mapped, ok := i.remap[code]; ok {
		out = mapped
	}
	i.emit(out, pressed)
	return 0
}

// Eval implements kbdiface.Instance. The only supported expression shape is
// "from=to", adding or replacing one remap entry; anything else is rejected.
func (i *Instance) Eval(expr string) error {
	var from, to uint16
	n, err := fmt.Sscanf(expr, "%d=%d", &from, &to)
	if err != nil || n != 2 {
		return fmt.Errorf("invalid bind expression %q, want \"from=to\"", expr)
	}
	i.remap[from] = to
	return nil
}

// Parser implements registry.Parser for this minimal grammar.
type Parser struct{}

// Parse implements registry.Parser.
func (Parser) Parse(path string, emit kbdiface.EmitKeyFunc, layer kbdiface.LayerFunc) (registry.Matcher, kbdiface.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	remap := ff.Remap
	if remap == nil {
		remap = make(map[uint16]uint16)
	}

	cfg := &Config{ids: ff.IDs, remap: remap}
	inst := &Instance{remap: remap, emit: emit, layer: layer}
	return cfg, inst, nil
}
