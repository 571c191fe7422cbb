package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/qorgraph/internal/candidates"
	"github.com/vk/qorgraph/internal/extract"
	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/labels"
	"github.com/vk/qorgraph/internal/ledger"
	"github.com/vk/qorgraph/internal/pipelineerr"
	"github.com/vk/qorgraph/internal/progress"
	"github.com/vk/qorgraph/internal/sample"
	"github.com/vk/qorgraph/internal/testutil"
)

const failMarker = "FAILCORE"

var maxima = labels.Maxima{LUTs: 1000, FFs: 1000, BRAMs: 0, DSPs: 100, Clock: 10, Latency: 5000}

// fakeSource serves fixed candidates per configuration space.
type fakeSource struct {
	spaces    map[int64][]candidates.Candidate
	totals    map[int64]int
	maximaErr error
}

func (f *fakeSource) Maxima(context.Context) (labels.Maxima, error) {
	return maxima, f.maximaErr
}

func (f *fakeSource) Candidates(_ context.Context, spaceID int64) ([]candidates.Candidate, error) {
	return f.spaces[spaceID], nil
}

func (f *fakeSource) Count(_ context.Context, spaceID int64) (int, error) {
	return f.totals[spaceID], nil
}

func candidate(script string, latency float64) candidates.Candidate {
	return candidates.Candidate{
		Script:       script,
		Measurements: labels.Measurements{LUT: 500, FF: 250, DSP: 10, Clock: 5, Latency: latency},
		Complete:     true,
	}
}

type fixture struct {
	ctx     context.Context
	logs    *testutil.SafeBuffer
	tool    string
	kernels []Kernel
	source  *fakeSource
	store   *sample.Store
	work    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, logs := testutil.LoggerContext(t)

	dir := testutil.WriteFiles(t, map[string]string{
		"k/k.cpp":   testutil.KernelSource,
		"k2/k2.cpp": strings.Replace(testutil.KernelSource, "void k(", "void k2(", 1),
	})
	incomplete := candidate(`set_directive_pipeline "k/L2"`, 700)
	incomplete.Complete = false

	src := &fakeSource{
		spaces: map[int64][]candidates.Candidate{
			297: {
				candidate(`set_directive_unroll -factor 2 "k/L1"`, 1000),
				candidate(`set_directive_array_partition -type cyclic -factor 4 -dim 1 "k" buf`, 2000),
				candidate(`set_directive_resource -core `+failMarker+` "k" buf`, 3000),
				incomplete,
				candidate("", 5000),
			},
			383: {
				candidate(`set_directive_pipeline "k2/L2"`, 800),
				candidate(`set_directive_unroll -factor 4 "k2/L1"`+"\n"+`set_directive_pipeline "k2/L2"`, 900),
			},
		},
		totals: map[int64]int{297: 9, 383: 2},
	}

	store, err := sample.OpenStore(filepath.Join(t.TempDir(), "baseline"), sample.Zstd)
	require.NoError(t, err)

	return &fixture{
		ctx:  ctx,
		logs: logs,
		tool: testutil.WriteFakeTool(t, failMarker),
		kernels: []Kernel{
			{Name: "k", SpaceID: 297, Source: filepath.Join(dir, "k", "k.cpp")},
			{Name: "k2", SpaceID: 383, Source: filepath.Join(dir, "k2", "k2.cpp")},
		},
		source: src,
		store:  store,
		work:   t.TempDir(),
	}
}

func (f *fixture) options(t *testing.T) Options {
	t.Helper()
	p, err := featureconfig.LookupPreset("baseline")
	require.NoError(t, err)
	cfg, err := p.Build("")
	require.NoError(t, err)
	x, err := extract.New(f.tool, 0)
	require.NoError(t, err)

	return Options{
		Config:        cfg,
		Extractor:     x,
		Source:        f.source,
		Store:         f.store,
		WorkDir:       f.work,
		Workers:       3,
		Bidirectional: true,
		RunID:         "run-1",
	}
}

func TestGlobalIndex(t *testing.T) {
	assert.Equal(t, int64(0), GlobalIndex(0, 0))
	assert.Equal(t, int64(107), GlobalIndex(100, 7))

	assert.Equal(t, []int64{10, 15, 15, 17}, BaseOffsets(10, []int{5, 0, 2, 4}))
	assert.Empty(t, BaseOffsets(0, nil))
}

func TestStride(t *testing.T) {
	testCases := []struct {
		name    string
		w, p, n int
		want    []int
	}{
		{name: "first worker", w: 0, p: 3, n: 8, want: []int{0, 3, 6}},
		{name: "last worker", w: 2, p: 3, n: 8, want: []int{2, 5}},
		{name: "idle worker", w: 4, p: 6, n: 3, want: nil},
		{name: "single worker", w: 0, p: 1, n: 3, want: []int{0, 1, 2}},
		{name: "out of range", w: 3, p: 3, n: 8, want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Stride(tc.w, tc.p, tc.n))
		})
	}
}

func TestStride_PartitionsPositions(t *testing.T) {
	for p := 1; p <= 7; p++ {
		seen := make(map[int]int)
		for w := 0; w < p; w++ {
			for _, pos := range Stride(w, p, 20) {
				seen[pos]++
			}
		}
		require.Len(t, seen, 20, "pool size %d", p)
		for pos, n := range seen {
			assert.Equal(t, 1, n, "position %d handled %d times with pool size %d", pos, n, p)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	f := newFixture(t)
	valid := f.options(t)

	testCases := []struct {
		name   string
		mutate func(*Options)
	}{
		{name: "no config", mutate: func(o *Options) { o.Config = nil }},
		{name: "no extractor", mutate: func(o *Options) { o.Extractor = nil }},
		{name: "no source", mutate: func(o *Options) { o.Source = nil }},
		{name: "no store", mutate: func(o *Options) { o.Store = nil }},
		{name: "no work dir", mutate: func(o *Options) { o.WorkDir = "" }},
		{name: "negative workers", mutate: func(o *Options) { o.Workers = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.mutate(&opts)
			_, err := New(opts)
			require.Error(t, err)
			assert.True(t, pipelineerr.Is(err, pipelineerr.Configuration))
		})
	}

	o, err := New(Options{Config: valid.Config, Extractor: valid.Extractor, Source: valid.Source, Store: valid.Store, WorkDir: valid.WorkDir})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, o.opts.Workers)
	assert.Equal(t, "baseline", o.opts.Variant)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	opts := f.options(t)

	var mu sync.Mutex
	var reported []*Failure
	opts.OnError = func(_ context.Context, fl *Failure) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, fl)
	}
	tracker := progress.NewTracker("run-1")
	opts.Reporter = tracker

	o, err := New(opts)
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Generated)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 0, sum.Skipped)
	assert.Equal(t, int64(7), sum.NextIndex)
	require.Len(t, sum.Kernels, 2)
	assert.Equal(t, int64(0), sum.Kernels[0].Base)
	assert.Equal(t, int64(5), sum.Kernels[1].Base)
	assert.Equal(t, 5, sum.Kernels[0].Candidates)

	indices, err := f.store.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 4, 5, 6}, indices)

	failures := Failures(sum.Failures)
	require.Len(t, failures, 2)
	byPos := map[int]*Failure{}
	for _, fl := range failures {
		byPos[fl.Position] = fl
	}
	require.Contains(t, byPos, 2)
	require.Contains(t, byPos, 3)
	assert.Equal(t, pipelineerr.Extraction, pipelineerr.KindOf(byPos[2].Err))
	assert.Equal(t, int64(2), byPos[2].Index)
	assert.Equal(t, pipelineerr.Source, pipelineerr.KindOf(byPos[3].Err))
	assert.Len(t, reported, 2)

	logs := f.logs.String()
	assert.Contains(t, logs, `msg="Candidate failed." variant=baseline kernel=k`)
	assert.Contains(t, logs, "tool crashed on k")

	snap := tracker.Snapshot()
	assert.Equal(t, []string{"baseline"}, snap.Variants)
	assert.Equal(t, 5, snap.Generated)
	for _, k := range snap.Kernels {
		assert.True(t, k.Done, k.Kernel)
	}
}

func TestRun_SampleContents(t *testing.T) {
	f := newFixture(t)
	o, err := New(f.options(t))
	require.NoError(t, err)
	_, err = o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	s, err := f.store.Read(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Index)
	assert.Equal(t, "k", s.Kernel)
	assert.Equal(t, "baseline", s.Variant)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, `set_directive_array_partition -type cyclic -factor 4 -dim 1 "k" buf`, s.Pragmas)
	assert.Equal(t, 5, s.NumNodes())
	assert.Equal(t, 10, s.NumEdges())
	assert.Equal(t, labels.Normalize(candidate("", 2000).Measurements, maxima), s.Y)
	assert.Equal(t, float32(labels.Sentinel), s.Y[2], "zero BRAM maximum maps to the sentinel")
	assert.Equal(t, maxima, s.MaxY)
	assert.Equal(t, []int64{0, 0, 1, 1, 1}, s.CFGSelect)
	require.NotNil(t, s.CFG)
	assert.Equal(t, 2, s.CFG.NumBlocks)
	if diff := cmp.Diff([2][]int64{{0, 1}, {1, 0}}, s.CFG.Edges); diff != "" {
		t.Errorf("block edges mismatch (-want +got):\n%s", diff)
	}

	last, err := f.store.Read(6)
	require.NoError(t, err)
	assert.Equal(t, "k2", last.Kernel)
}

func TestRun_WorkerCountDoesNotChangeIndices(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		f := newFixture(t)
		opts := f.options(t)
		opts.Workers = workers
		o, err := New(opts)
		require.NoError(t, err)
		_, err = o.Run(f.ctx, f.kernels)
		require.NoError(t, err)

		indices, err := f.store.Indices()
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 4, 5, 6}, indices, "workers=%d", workers)

		s, err := f.store.Read(5)
		require.NoError(t, err)
		assert.Equal(t, `set_directive_pipeline "k2/L2"`, s.Pragmas, "workers=%d", workers)
	}
}

func TestRun_StartIndex(t *testing.T) {
	f := newFixture(t)
	opts := f.options(t)
	opts.StartIndex = 100
	o, err := New(opts)
	require.NoError(t, err)

	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)
	assert.Equal(t, int64(107), sum.NextIndex)

	indices, err := f.store.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101, 104, 105, 106}, indices)
}

func TestRun_Resume(t *testing.T) {
	f := newFixture(t)
	opts := f.options(t)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"), "run-1")
	require.NoError(t, err)
	defer led.Close()
	opts.Ledger = led

	o, err := New(opts)
	require.NoError(t, err)
	_, err = o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	before := len(testutil.FakeToolCalls(t, f.tool))

	opts.Resume = true
	o, err = New(opts)
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, 0, sum.Generated)
	assert.Equal(t, 5, sum.Skipped)
	assert.Equal(t, 2, sum.Failed)
	// Two block-graph extractions plus the extraction-failing candidate.
	assert.Equal(t, before+3, len(testutil.FakeToolCalls(t, f.tool)))

	summary, err := led.Summary()
	require.NoError(t, err)
	assert.Equal(t, map[ledger.Outcome]int{ledger.OK: 5, ledger.Failed: 4, ledger.Skipped: 5}, summary)

	done, err := led.Completed("baseline", "k2")
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{5: true, 6: true}, done)
}

func TestRun_MalformedScriptIsFatal(t *testing.T) {
	f := newFixture(t)
	f.source.spaces[383] = append(f.source.spaces[383], candidate(`set_directive_unroll "k2/L1"`, 100))

	o, err := New(f.options(t))
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.Error(t, err)
	assert.True(t, pipelineerr.Is(err, pipelineerr.Configuration))
	assert.Contains(t, err.Error(), "kernel k2 candidate 2")
	assert.Len(t, sum.Kernels, 1, "the first kernel completed before the malformed one")
}

func TestRun_MaximaFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.source.maximaErr = errors.New("connection reset")

	o, err := New(f.options(t))
	require.NoError(t, err)
	_, err = o.Run(f.ctx, f.kernels)
	require.Error(t, err)
	assert.True(t, pipelineerr.Is(err, pipelineerr.Source))

	indices, err := f.store.Indices()
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestRun_KernelWithoutBlockGraph(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.kernels[0].Source))
	opts := f.options(t)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"), "run-1")
	require.NoError(t, err)
	defer led.Close()
	opts.Ledger = led

	o, err := New(opts)
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Kernels[0].Failed)
	assert.Equal(t, 2, sum.Kernels[1].Generated)
	assert.Equal(t, int64(5), sum.Kernels[1].Base, "the failed kernel still reserves its index range")

	failures := Failures(sum.Failures)
	require.Len(t, failures, 1)
	assert.Equal(t, -1, failures[0].Position)
	assert.Contains(t, failures[0].Error(), "variant baseline kernel k:")

	summary, err := led.Summary()
	require.NoError(t, err)
	assert.Equal(t, map[ledger.Outcome]int{ledger.OK: 2, ledger.Failed: 5}, summary)

	rows, err := led.Failures()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	var positions []int
	for _, r := range rows {
		assert.Equal(t, "k", r.Kernel)
		assert.Equal(t, int64(r.Position), r.Index)
		assert.Equal(t, "persistence", r.ErrKind)
		assert.Contains(t, r.Message, "build block graph")
		positions = append(positions, r.Position)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, positions)
}

func TestRun_BlockGraphSourceHasNoLabels(t *testing.T) {
	f := newFixture(t)
	// This tool rejects any source that still carries a loop label.
	f.tool = testutil.WriteFakeTool(t, "L1:")

	o, err := New(f.options(t))
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Generated)
	assert.Equal(t, 1, sum.Failed, "only the incomplete candidate fails")
	failures := Failures(sum.Failures)
	require.Len(t, failures, 1)
	assert.Equal(t, 3, failures[0].Position)

	stripped := filepath.Join(f.work, "baseline", "k", "k.cpp")
	raw, err := os.ReadFile(stripped)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "L1:")
	assert.NotContains(t, string(raw), "#pragma")

	var cfgCalls int
	for _, call := range testutil.FakeToolCalls(t, f.tool) {
		assert.NotContains(t, call, f.kernels[0].Source)
		if strings.HasSuffix(call, "--src "+stripped) {
			cfgCalls++
		}
	}
	assert.Equal(t, 1, cfgCalls)

	s, err := f.store.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CFG.NumBlocks)
}

func TestRun_ResumeRequiresLedgerRecord(t *testing.T) {
	f := newFixture(t)
	opts := f.options(t)

	o, err := New(opts)
	require.NoError(t, err)
	_, err = o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	// Samples exist, but this ledger has never seen them generated.
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.sqlite"), "run-2")
	require.NoError(t, err)
	defer led.Close()
	require.NoError(t, led.Record(ledger.Record{Variant: "baseline", Kernel: "k2", Position: 0, Index: 5, Outcome: ledger.OK}))

	opts.Resume = true
	opts.Ledger = led
	o, err = New(opts)
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 4, sum.Generated)
	assert.Equal(t, 2, sum.Failed)
}

func TestRun_EmptyKernel(t *testing.T) {
	f := newFixture(t)
	f.source.spaces[297] = nil

	o, err := New(f.options(t))
	require.NoError(t, err)
	sum, err := o.Run(f.ctx, f.kernels)
	require.NoError(t, err)

	assert.Equal(t, int64(0), sum.Kernels[1].Base)
	assert.Contains(t, f.logs.String(), "Kernel has no eligible candidates.")
}

func TestProbe(t *testing.T) {
	f := newFixture(t)
	f.tool = testutil.WriteFakeTool(t, "L1:")
	o, err := New(f.options(t))
	require.NoError(t, err)

	got, err := o.Probe(f.ctx, f.kernels)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "k", got[0].Kernel)
	assert.Len(t, got[0].Graph.Nodes, 5)
	assert.Len(t, got[0].Features.NodeFeatures, 5)
	assert.Equal(t, 2, got[0].CFG.NumBlocks)
	assert.Empty(t, got[0].Unmatched)

	indices, err := f.store.Indices()
	require.NoError(t, err)
	assert.Empty(t, indices, "probing persists nothing")
}

func TestInventory(t *testing.T) {
	f := newFixture(t)

	got, err := Inventory(f.ctx, f.source, f.kernels)
	require.NoError(t, err)
	assert.Equal(t, []KernelCount{
		{Kernel: "k", SpaceID: 297, Total: 9, Eligible: 5},
		{Kernel: "k2", SpaceID: 383, Total: 2, Eligible: 2},
	}, got)
}
