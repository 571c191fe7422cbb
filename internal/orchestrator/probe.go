package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/qorgraph/internal/annotate"
	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/blockcfg"
	"github.com/vk/qorgraph/internal/candidates"
	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/directive"
	"github.com/vk/qorgraph/internal/encode"
)

// ProbeResult is the intermediate state of one kernel's first candidate.
type ProbeResult struct {
	Kernel    string
	Script    string
	Graph     *attrgraph.Graph
	Features  *encode.Features
	CFG       *blockcfg.CFG
	Unmatched []directive.Directive
}

// Probe runs the chain for the first eligible candidate of every kernel
// without persisting anything, and stops at the first error. Kernels without
// candidates are skipped.
func (o *Orchestrator) Probe(ctx context.Context, kernels []Kernel) ([]ProbeResult, error) {
	logger := ctxlog.FromContext(ctx)
	dir := filepath.Join(o.opts.WorkDir, o.opts.Variant, "probe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create probe directory: %w", err)
	}

	var out []ProbeResult
	for _, k := range kernels {
		cands, err := o.opts.Source.Candidates(ctx, k.SpaceID)
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}
		if len(cands) == 0 {
			logger.Warn("Kernel has no eligible candidates.", "kernel", k.Name)
			continue
		}
		script, err := directive.ParseScript(cands[0].Script)
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}

		dst := filepath.Join(dir, k.Name+filepath.Ext(k.Source))
		res, err := annotate.AnnotateFile(ctx, k.Name, script.Directives, k.Source, dst)
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}
		g, err := o.opts.Extractor.Extract(ctx, k.Name, dst)
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}
		f, err := o.encoder.Encode(g)
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}
		cfg, err := o.kernelCFG(ctx, k, filepath.Join(dir, k.Name))
		if err != nil {
			return out, fmt.Errorf("probe %s: %w", k.Name, err)
		}

		logger.Info("Kernel probed.", "kernel", k.Name, "nodes", len(g.Nodes), "edges", len(g.Edges),
			"node_width", o.encoder.NodeWidth(), "edge_width", o.encoder.EdgeWidth(), "blocks", cfg.NumBlocks)
		out = append(out, ProbeResult{
			Kernel:    k.Name,
			Script:    cands[0].Script,
			Graph:     g,
			Features:  f,
			CFG:       cfg,
			Unmatched: res.Unmatched(),
		})
	}
	return out, nil
}

// KernelCount is the size of one kernel's configuration space.
type KernelCount struct {
	Kernel   string
	SpaceID  int64
	Total    int
	Eligible int
}

// Inventory counts the design points of every kernel.
func Inventory(ctx context.Context, src candidates.Source, kernels []Kernel) ([]KernelCount, error) {
	out := make([]KernelCount, 0, len(kernels))
	for _, k := range kernels {
		total, err := src.Count(ctx, k.SpaceID)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", k.Name, err)
		}
		cands, err := src.Candidates(ctx, k.SpaceID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", k.Name, err)
		}
		out = append(out, KernelCount{Kernel: k.Name, SpaceID: k.SpaceID, Total: total, Eligible: len(cands)})
	}
	return out, nil
}
