package featureconfig

import (
	"strings"

	"github.com/vk/qorgraph/internal/pipelineerr"
)

// Preset is a named, fixed set of toggle values.
type Preset struct {
	Name    string
	Toggles Toggles
}

// FileName is the document name a preset is written under.
func (p Preset) FileName() string { return p.Name + ".txt" }

// Build builds the preset's Config on top of base.
func (p Preset) Build(base string) (*Config, error) { return Build(p.Name, base, p.Toggles) }

type presetFunc func(*Toggles)

// converted is the shared starting point of the alloca-converted variants.
func converted(t *Toggles) {
	t.AbsorbTypes = true
	t.ConvertAllocas = true
	t.ProxyPrograml = false
	t.EncodeNodeType = false
}

func noPositional(t *Toggles) {
	t.EncodeBBID = false
	t.EncodeFuncID = false
	t.EncodeEdgeOrder = false
}

var presetTable = []struct {
	name  string
	apply []presetFunc
}{
	{"baseline", nil},
	{"A1", []presetFunc{func(t *Toggles) { t.AbsorbPragmas = true }}},
	{"A2", []presetFunc{func(t *Toggles) { t.EncodeTripcount = true }}},
	{"B1", []presetFunc{func(t *Toggles) {
		t.AbsorbPragmas = true
		t.EncodeTripcount = true
	}}},
	{"C1", []presetFunc{func(t *Toggles) {
		t.AbsorbPragmas = true
		t.EncodeTripcount = true
		t.AbsorbTypes = true
	}}},
	{"D1", []presetFunc{converted, func(t *Toggles) {
		t.AbsorbPragmas = true
		t.EncodeTripcount = true
	}}},
	{"E1", []presetFunc{converted, func(t *Toggles) {
		t.AbsorbPragmas = true
		t.EncodeTripcount = true
		t.HierarchicalUnroll = true
	}}},
	{"F1", []presetFunc{converted}},
	{"G1", []presetFunc{converted, func(t *Toggles) { t.AbsorbPragmas = true }}},
	{"H1", []presetFunc{converted, func(t *Toggles) {
		t.AbsorbPragmas = true
		t.HierarchicalUnroll = true
	}}},
	{"J1", []presetFunc{converted, noPositional, func(t *Toggles) {
		t.AbsorbPragmas = true
		t.HierarchicalUnroll = true
		t.OneHotEncodeTypes = false
	}}},
	{"K1", []presetFunc{converted, noPositional, func(t *Toggles) {
		t.AbsorbPragmas = true
		t.HierarchicalUnroll = true
	}}},
	{"L1", []presetFunc{converted, noPositional}},
	{"M1", []presetFunc{noPositional, func(t *Toggles) { t.EncodeNodeType = false }}},
}

// Presets returns every named variant in catalogue order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetTable))
	for _, row := range presetTable {
		t := DefaultToggles()
		for _, f := range row.apply {
			f(&t)
		}
		out = append(out, Preset{Name: row.name, Toggles: t})
	}
	return out
}

// LookupPreset finds a preset by name, ignoring case.
func LookupPreset(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, pipelineerr.New(pipelineerr.Configuration, "lookup preset", "unknown variant %q", name)
}
