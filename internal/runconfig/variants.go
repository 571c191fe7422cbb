package runconfig

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/fsutil"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

// toggleFields maps run-file attribute names onto the fields of t.
func toggleFields(t *featureconfig.Toggles) map[string]*bool {
	return map[string]*bool{
		"proxy_programl":            &t.ProxyPrograml,
		"encode_node_type":          &t.EncodeNodeType,
		"encode_bb_id":              &t.EncodeBBID,
		"encode_func_id":            &t.EncodeFuncID,
		"encode_edge_order":         &t.EncodeEdgeOrder,
		"absorb_types":              &t.AbsorbTypes,
		"absorb_pragmas":            &t.AbsorbPragmas,
		"convert_allocas":           &t.ConvertAllocas,
		"ignore_control_flow":       &t.IgnoreControlFlow,
		"memory_only_control_flow":  &t.MemoryOnlyControlFlow,
		"add_num_calls":             &t.AddNumCalls,
		"reduce_iterator_bitwidths": &t.ReduceIteratorBitwidths,
		"one_hot_encode_types":      &t.OneHotEncodeTypes,
		"index_flow_type":           &t.IndexFlowType,
		"encode_tripcount":          &t.EncodeTripcount,
		"hierarchical_unroll":       &t.HierarchicalUnroll,
	}
}

func resolveVariant(vb variantBlock, evalCtx *hcl.EvalContext) (*VariantDef, error) {
	base := vb.Base
	if base == "" {
		base = DefaultVariant
	}
	preset, err := featureconfig.LookupPreset(base)
	if err != nil {
		return nil, fmt.Errorf("variant %q: %w", vb.Name, err)
	}
	if _, err := featureconfig.LookupPreset(vb.Name); err == nil {
		return nil, fmt.Errorf("variant %q shadows a preset", vb.Name)
	}

	def := &VariantDef{Name: vb.Name, Base: preset.Name, Toggles: preset.Toggles}
	if vb.Toggles == nil {
		return def, nil
	}

	attrs, diags := vb.Toggles.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("variant %q: %w", vb.Name, diags)
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := toggleFields(&def.Toggles)
	for _, name := range names {
		attr := attrs[name]
		dst, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("variant %q: unknown toggle %q at %s", vb.Name, name, attr.NameRange)
		}
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("variant %q: %w", vb.Name, diags)
		}
		if err := gocty.FromCtyValue(val, dst); err != nil {
			return nil, fmt.Errorf("variant %q: toggle %s: %w", vb.Name, name, err)
		}
	}
	if err := def.Toggles.Validate(); err != nil {
		return nil, fmt.Errorf("variant %q: %w", vb.Name, err)
	}
	return def, nil
}

// VariantConfigs builds the feature configs of the named variants, or of
// the run file's variants list when names is empty, or of the baseline
// when both are empty. A name resolves, in order, to a variant block, to
// <documents_dir>/<name>.txt, and to a preset.
func (c *Config) VariantConfigs(names []string) ([]*featureconfig.Config, error) {
	if len(names) == 0 {
		names = c.Variants
	}
	if len(names) == 0 {
		names = []string{DefaultVariant}
	}

	docs, err := c.documents()
	if err != nil {
		return nil, err
	}

	out := make([]*featureconfig.Config, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		cfg, err := c.variantConfig(name, docs)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (c *Config) variantConfig(name string, docs map[string]string) (*featureconfig.Config, error) {
	for _, def := range c.VariantDefs {
		if def.Name == name {
			return featureconfig.Build(def.Name, c.BaseInvocation(), def.Toggles)
		}
	}
	if path, ok := docs[name]; ok {
		cfg, err := featureconfig.LoadDocument(path)
		if err != nil {
			return nil, err
		}
		cfg.Invocation = c.retool(cfg.Invocation)
		return cfg, nil
	}
	preset, err := featureconfig.LookupPreset(name)
	if err != nil {
		return nil, err
	}
	return preset.Build(c.BaseInvocation())
}

// retool swaps the executable of a stored invocation for the configured
// tool.
func (c *Config) retool(invocation string) string {
	fields := strings.Fields(invocation)
	if len(fields) == 0 {
		return c.BaseInvocation()
	}
	fields[0] = c.Tool
	return strings.Join(fields, " ")
}

func (c *Config) documents() (map[string]string, error) {
	docs := make(map[string]string)
	if c.DocumentsDir == "" {
		return docs, nil
	}
	paths, err := fsutil.FindFilesByExtension(c.DocumentsDir, ".txt")
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, "list config documents", err)
	}
	for _, p := range paths {
		docs[strings.TrimSuffix(filepath.Base(p), ".txt")] = p
	}
	return docs, nil
}
