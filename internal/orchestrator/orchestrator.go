// Package orchestrator generates a dataset for one feature variant: for
// every kernel it fetches the candidate design points, builds the kernel's
// block graph once, and fans the candidates out to a fixed pool of workers
// that annotate, extract, encode and persist one sample each.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/qorgraph/internal/annotate"
	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/blockcfg"
	"github.com/vk/qorgraph/internal/candidates"
	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/directive"
	"github.com/vk/qorgraph/internal/encode"
	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/labels"
	"github.com/vk/qorgraph/internal/ledger"
	"github.com/vk/qorgraph/internal/pipelineerr"
	"github.com/vk/qorgraph/internal/progress"
	"github.com/vk/qorgraph/internal/sample"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 12

// Kernel is one entry of the kernel catalogue.
type Kernel struct {
	Name string
	// SpaceID identifies the kernel's configuration space in the candidate
	// store.
	SpaceID int64
	// Source is the path of the unannotated kernel source.
	Source string
}

// GraphExtractor produces the attributed graph of a kernel source file.
type GraphExtractor interface {
	Extract(ctx context.Context, kernel, srcPath string) (*attrgraph.Graph, error)
}

// Failure is a candidate, or a whole kernel when Position is -1, that
// produced no sample.
type Failure struct {
	Variant  string
	Kernel   string
	Position int
	Index    int64
	Err      error
}

func (f *Failure) Error() string {
	if f.Position < 0 {
		return fmt.Sprintf("variant %s kernel %s: %v", f.Variant, f.Kernel, f.Err)
	}
	return fmt.Sprintf("variant %s kernel %s candidate %d (index %d): %v", f.Variant, f.Kernel, f.Position, f.Index, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Options configures an Orchestrator.
type Options struct {
	Variant   string
	Config    *featureconfig.Config
	Extractor GraphExtractor
	Source    candidates.Source
	Store     *sample.Store
	// WorkDir holds the annotated sources: the label-stripped kernel copy
	// used for the block graph, and one directory per worker.
	WorkDir       string
	Workers       int
	Bidirectional bool
	// StartIndex is the global index of the first candidate of the first
	// kernel.
	StartIndex int64
	// Resume skips candidates whose sample already exists in Store. With a
	// Ledger, the sample must also have been recorded as generated.
	Resume bool
	RunID  string
	// Ledger, Reporter and OnError are optional.
	Ledger   *ledger.Ledger
	Reporter progress.Reporter
	OnError  func(ctx context.Context, f *Failure)
}

// KernelSummary is the outcome of one kernel.
type KernelSummary struct {
	Kernel     string
	Base       int64
	Candidates int
	Generated  int
	Failed     int
	Skipped    int
	Elapsed    time.Duration
}

// Summary is the outcome of a run.
type Summary struct {
	Variant   string
	RunID     string
	Kernels   []KernelSummary
	Generated int
	Failed    int
	Skipped   int
	// NextIndex is the global index following the last kernel's range.
	NextIndex int64
	Elapsed   time.Duration
	// Failures combines every *Failure of the run.
	Failures error
}

func (s *Summary) add(k KernelSummary) {
	s.Kernels = append(s.Kernels, k)
	s.Generated += k.Generated
	s.Failed += k.Failed
	s.Skipped += k.Skipped
}

// Orchestrator runs dataset generation for one variant.
type Orchestrator struct {
	opts    Options
	encoder *encode.Encoder
}

// New validates opts and compiles the variant's encoders.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "no feature config")
	case opts.Extractor == nil:
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "no graph extractor")
	case opts.Source == nil:
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "no candidate source")
	case opts.Store == nil:
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "no sample store")
	case opts.WorkDir == "":
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "no work directory")
	case opts.Workers < 0:
		return nil, pipelineerr.New(pipelineerr.Configuration, "create orchestrator", "negative worker count %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Variant == "" {
		opts.Variant = opts.Config.Name
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Multi{}
	}

	enc, err := encode.New(opts.Config, opts.Bidirectional)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{opts: opts, encoder: enc}, nil
}

// Run processes kernels in order. Candidate failures are reported and
// collected in the summary; only configuration problems, candidate store
// failures and cancellation end the run early.
func (o *Orchestrator) Run(ctx context.Context, kernels []Kernel) (*Summary, error) {
	ctx = ctxlog.With(ctx, "variant", o.opts.Variant)
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	sum := &Summary{Variant: o.opts.Variant, RunID: o.opts.RunID, NextIndex: o.opts.StartIndex}

	maxima, err := o.opts.Source.Maxima(ctx)
	if err != nil {
		return sum, pipelineerr.Wrap(pipelineerr.Source, "fetch maxima", err)
	}
	logger.Debug("Label maxima fetched.", "maxima", fmt.Sprintf("%+v", maxima))

	var errs asyncErrors
	base := o.opts.StartIndex
	for _, k := range kernels {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ks, err := o.runKernel(ctx, k, base, maxima, &errs)
		if err != nil {
			sum.Failures = errs.Err()
			return sum, err
		}
		sum.add(ks)
		base += int64(ks.Candidates)
		sum.NextIndex = base
	}

	sum.Elapsed = time.Since(started)
	sum.Failures = errs.Err()
	o.opts.Reporter.Report(ctx, progress.Event{
		Type:      progress.RunFinished,
		RunID:     o.opts.RunID,
		Variant:   o.opts.Variant,
		Generated: sum.Generated,
		Failed:    sum.Failed,
		Skipped:   sum.Skipped,
		Elapsed:   sum.Elapsed,
		Time:      time.Now(),
	})
	return sum, nil
}

// job is one candidate handed to a worker. Everything but dir is shared
// read-only between the workers of a kernel.
type job struct {
	kernel Kernel
	pos    int
	index  int64
	cand   candidates.Candidate
	script *directive.Script
	cfg    *blockcfg.CFG
	maxima labels.Maxima
	dir    string
	done   bool
}

// tally counts a kernel's outcomes across its workers.
type tally struct {
	mu sync.Mutex
	KernelSummary
}

func (t *tally) add(outcome ledger.Outcome) KernelSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case ledger.OK:
		t.Generated++
	case ledger.Failed:
		t.Failed++
	case ledger.Skipped:
		t.Skipped++
	}
	return t.KernelSummary
}

func (o *Orchestrator) runKernel(ctx context.Context, k Kernel, base int64, maxima labels.Maxima, errs *asyncErrors) (KernelSummary, error) {
	ctx = ctxlog.With(ctx, "kernel", k.Name)
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	cands, err := o.opts.Source.Candidates(ctx, k.SpaceID)
	if err != nil {
		return KernelSummary{}, pipelineerr.Wrap(pipelineerr.Source, "fetch candidates of "+k.Name, err)
	}
	scripts := make([]*directive.Script, len(cands))
	for i, c := range cands {
		s, err := directive.ParseScript(c.Script)
		if err != nil {
			return KernelSummary{}, fmt.Errorf("kernel %s candidate %d: %w", k.Name, i, err)
		}
		scripts[i] = s
	}

	t := &tally{KernelSummary: KernelSummary{Kernel: k.Name, Base: base, Candidates: len(cands)}}
	o.opts.Reporter.Report(ctx, o.event(progress.KernelStarted, k.Name, t.KernelSummary))

	finish := func() KernelSummary {
		t.Elapsed = time.Since(started)
		o.opts.Reporter.Report(ctx, o.event(progress.KernelFinished, k.Name, t.KernelSummary))
		return t.KernelSummary
	}

	if len(cands) == 0 {
		logger.Warn("Kernel has no eligible candidates.", "space_id", k.SpaceID)
		return finish(), nil
	}

	kernelDir := filepath.Join(o.opts.WorkDir, o.opts.Variant, k.Name)
	cfg, err := o.kernelCFG(ctx, k, kernelDir)
	if err != nil {
		o.fail(ctx, errs, &Failure{Variant: o.opts.Variant, Kernel: k.Name, Position: -1, Index: base, Err: err})
		for pos := range cands {
			o.record(ctx, &job{kernel: k, pos: pos, index: GlobalIndex(base, pos)}, ledger.Failed, err, errs)
		}
		t.Failed = len(cands)
		return finish(), nil
	}

	done, err := o.completed(k)
	if err != nil {
		return KernelSummary{}, err
	}

	dirs := make([]string, o.opts.Workers)
	for w := range dirs {
		dirs[w] = filepath.Join(kernelDir, fmt.Sprintf("worker_%d", w))
		if err := os.MkdirAll(dirs[w], 0o755); err != nil {
			return KernelSummary{}, pipelineerr.Wrap(pipelineerr.Persistence, "create work directory", err)
		}
	}

	logger.Debug("Dispatching candidates.", "candidates", len(cands), "workers", o.opts.Workers, "base", base)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < o.opts.Workers; w++ {
		eg.Go(func() error {
			wctx := ctxlog.With(egCtx, "worker", w)
			for _, pos := range Stride(w, o.opts.Workers, len(cands)) {
				if err := wctx.Err(); err != nil {
					return err
				}
				j := &job{
					kernel: k,
					pos:    pos,
					index:  GlobalIndex(base, pos),
					cand:   cands[pos],
					script: scripts[pos],
					cfg:    cfg,
					maxima: maxima,
					dir:    dirs[w],
				}
				j.done = done == nil || done[j.index]
				outcome := o.process(wctx, j, errs)
				snap := t.add(outcome)
				ev := o.event(progress.SampleDone, k.Name, snap)
				ev.Position, ev.Index, ev.Outcome = pos, j.index, string(outcome)
				o.opts.Reporter.Report(wctx, ev)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return t.KernelSummary, err
	}
	return finish(), nil
}

// kernelCFG builds the block graph from the kernel source with its loop
// labels stripped and no pragma inserted; it is the same for every candidate
// of the kernel. The stripped copy is written to dir.
func (o *Orchestrator) kernelCFG(ctx context.Context, k Kernel, dir string) (*blockcfg.CFG, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, "create work directory", err)
	}
	dst := filepath.Join(dir, filepath.Base(k.Source))
	if _, err := annotate.AnnotateFile(ctx, k.Name, nil, k.Source, dst); err != nil {
		return nil, fmt.Errorf("build block graph: %w", pipelineerr.Wrap(pipelineerr.Persistence, "strip labels", err))
	}
	g, err := o.opts.Extractor.Extract(ctx, k.Name, dst)
	if err != nil {
		return nil, fmt.Errorf("build block graph: %w", err)
	}
	cfg := blockcfg.Build(g)
	ctxlog.FromContext(ctx).Debug("Block graph built.", "blocks", cfg.NumBlocks, "edges", len(cfg.Edges[0]))
	return cfg, nil
}

// completed returns the kernel's indices the ledger records as generated by
// any run. A nil map means every existing sample counts as done.
func (o *Orchestrator) completed(k Kernel) (map[int64]bool, error) {
	if !o.opts.Resume || o.opts.Ledger == nil {
		return nil, nil
	}
	done, err := o.opts.Ledger.Completed(o.opts.Variant, k.Name)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, "read ledger", err)
	}
	return done, nil
}

func (o *Orchestrator) process(ctx context.Context, j *job, errs *asyncErrors) ledger.Outcome {
	if o.opts.Resume && j.done && o.opts.Store.Exists(j.index) {
		o.record(ctx, j, ledger.Skipped, nil, errs)
		return ledger.Skipped
	}

	s, err := o.build(ctx, j)
	if err == nil {
		err = o.opts.Store.Write(s)
	}
	if err != nil {
		o.fail(ctx, errs, &Failure{Variant: o.opts.Variant, Kernel: j.kernel.Name, Position: j.pos, Index: j.index, Err: err})
		o.record(ctx, j, ledger.Failed, err, errs)
		return ledger.Failed
	}
	o.record(ctx, j, ledger.OK, nil, errs)
	return ledger.OK
}

func (o *Orchestrator) build(ctx context.Context, j *job) (*sample.Sample, error) {
	if !j.cand.Complete {
		return nil, pipelineerr.New(pipelineerr.Source, "read candidate", "measurements are incomplete")
	}

	dst := filepath.Join(j.dir, filepath.Base(j.kernel.Source))
	if _, err := annotate.AnnotateFile(ctx, j.kernel.Name, j.script.Directives, j.kernel.Source, dst); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Persistence, "annotate", err)
	}

	g, err := o.opts.Extractor.Extract(ctx, j.kernel.Name, dst)
	if err != nil {
		return nil, err
	}
	f, err := o.encoder.Encode(g)
	if err != nil {
		return nil, err
	}

	return &sample.Sample{
		Index:         j.index,
		Kernel:        j.kernel.Name,
		Variant:       o.opts.Variant,
		Pragmas:       j.cand.Script,
		RunID:         o.opts.RunID,
		X:             f.NodeFeatures,
		EdgeIndex:     f.EdgeIndex,
		EdgeAttr:      f.EdgeFeatures,
		EdgeIndexAttr: f.EdgeIndexAttrs,
		Y:             labels.Normalize(j.cand.Measurements, j.maxima),
		MaxY:          j.maxima,
		CFG:           j.cfg,
		CFGSelect:     blockcfg.NodeBlocks(g),
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, errs *asyncErrors, f *Failure) {
	ctxlog.FromContext(ctx).Error("Candidate failed.",
		"candidate", f.Position, "index", f.Index, "kind", pipelineerr.KindOf(f.Err).String(), "error", f.Err)
	errs.Append(f)
	if o.opts.OnError != nil {
		o.opts.OnError(ctx, f)
	}
}

func (o *Orchestrator) record(ctx context.Context, j *job, outcome ledger.Outcome, cause error, errs *asyncErrors) {
	if o.opts.Ledger == nil {
		return
	}
	r := ledger.Record{
		Variant:  o.opts.Variant,
		Kernel:   j.kernel.Name,
		Position: j.pos,
		Index:    j.index,
		Outcome:  outcome,
	}
	if cause != nil {
		r.ErrKind = pipelineerr.KindOf(cause).String()
		r.Message = cause.Error()
	}
	if err := o.opts.Ledger.Record(r); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record outcome.", "index", j.index, "error", err)
		errs.Append(pipelineerr.Wrap(pipelineerr.Persistence, "record outcome", err))
	}
}

func (o *Orchestrator) event(typ progress.EventType, kernel string, k KernelSummary) progress.Event {
	return progress.Event{
		Type:      typ,
		RunID:     o.opts.RunID,
		Variant:   o.opts.Variant,
		Kernel:    kernel,
		Total:     k.Candidates,
		Generated: k.Generated,
		Failed:    k.Failed,
		Skipped:   k.Skipped,
		Elapsed:   k.Elapsed,
		Time:      time.Now(),
	}
}
