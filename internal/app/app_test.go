package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/qorgraph/internal/candidates"
	"github.com/vk/qorgraph/internal/labels"
	"github.com/vk/qorgraph/internal/ledger"
	"github.com/vk/qorgraph/internal/progress"
	"github.com/vk/qorgraph/internal/sample"
	"github.com/vk/qorgraph/internal/testutil"
)

const failMarker = "FAILCORE"

// newRunFile lays out a kernel, a seeded candidate database and a run file
// that uses the fake extraction tool. It returns the run file path and the
// output directory.
func newRunFile(t *testing.T) (string, string) {
	t.Helper()

	dir := testutil.WriteFiles(t, map[string]string{
		"kernels/k/k.cpp": testutil.KernelSource,
	})
	tool := testutil.WriteFakeTool(t, failMarker)

	ctx := context.Background()
	db := filepath.Join(dir, "db4hls.sqlite")
	src, err := candidates.Open(ctx, candidates.DriverSQLite, db, "")
	require.NoError(t, err)
	require.NoError(t, src.Init(ctx))
	scripts := []string{
		`set_directive_unroll -factor 2 "k/L1"`,
		`set_directive_resource -core ` + failMarker + ` "k" buf`,
		`set_directive_pipeline "k/L2"`,
	}
	for i, s := range scripts {
		m := labels.Measurements{LUT: float64(100 * (i + 1)), FF: 50, DSP: 2, Clock: 5, Latency: float64(1000 * (i + 1))}
		require.NoError(t, src.Add(ctx, 297, "k", s, &m))
	}
	require.NoError(t, src.Close())

	run := fmt.Sprintf(`
tool        = %q
kernels_dir = "kernels"
output_dir  = "out"
workers     = 2

store {
  driver = "sqlite"
  dsn    = "db4hls.sqlite"
}

kernel "k" {
  space_id = 297
}
`, tool)
	path := filepath.Join(dir, "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(run), 0o644))
	return path, filepath.Join(dir, "out")
}

func runApp(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer, error) {
	t.Helper()
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	c, err := NewConfig(cfg)
	require.NoError(t, err)

	out := &testutil.SafeBuffer{}
	a := NewApp(out, c)
	t.Cleanup(func() { a.Close() })
	return a, out, a.Run(context.Background())
}

func TestApp_Run(t *testing.T) {
	runPath, outDir := newRunFile(t)

	a, out, err := runApp(t, Config{RunPath: runPath})
	require.NoError(t, err)

	store, err := sample.OpenStore(filepath.Join(outDir, "baseline"), sample.Zstd)
	require.NoError(t, err)
	indices, err := store.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, indices)

	s, err := store.Read(2)
	require.NoError(t, err)
	assert.Equal(t, a.RunID(), s.RunID)
	assert.Equal(t, `set_directive_pipeline "k/L2"`, s.Pragmas)
	assert.Equal(t, float32(1), s.Y[0], "the largest LUT count maps to +1")

	assert.FileExists(t, filepath.Join(outDir, "configs", "baseline.txt"))

	logs := out.String()
	assert.Contains(t, logs, "Dataset generation finished.")
	assert.Contains(t, logs, "generated=2 failed=1 skipped=0")
	assert.Contains(t, logs, "tool crashed on k")

	snap := a.Tracker().Snapshot()
	assert.Equal(t, 2, snap.Generated)
	assert.Equal(t, 1, snap.Failed)
}

func TestApp_ResumeAndAppend(t *testing.T) {
	runPath, outDir := newRunFile(t)

	_, _, err := runApp(t, Config{RunPath: runPath})
	require.NoError(t, err)

	resumed, out, err := runApp(t, Config{RunPath: runPath, Resume: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "generated=0 failed=1 skipped=2")

	led, err := ledger.Open(filepath.Join(outDir, "ledger.sqlite"), resumed.RunID())
	require.NoError(t, err)
	summary, err := led.Summary()
	require.NoError(t, err)
	require.NoError(t, led.Close())
	assert.Equal(t, map[ledger.Outcome]int{ledger.Failed: 1, ledger.Skipped: 2}, summary)

	_, _, err = runApp(t, Config{RunPath: runPath, Append: true})
	require.NoError(t, err)

	store, err := sample.OpenStore(filepath.Join(outDir, "baseline"), sample.Zstd)
	require.NoError(t, err)
	indices, err := store.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2, 3, 5}, indices)
}

func TestApp_List(t *testing.T) {
	runPath, outDir := newRunFile(t)

	_, out, err := runApp(t, Config{RunPath: runPath, List: true, LogLevel: "error"})
	require.NoError(t, err)
	assert.Regexp(t, `KERNEL\s+SPACE\s+TOTAL\s+ELIGIBLE\nk\s+297\s+3\s+3\n`, out.String())
	assert.NoDirExists(t, filepath.Join(outDir, "baseline"))
}

func TestApp_Probe(t *testing.T) {
	runPath, outDir := newRunFile(t)

	_, out, err := runApp(t, Config{RunPath: runPath, Probe: true, LogLevel: "error"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "baseline\tk\tnodes=5 edges=5 blocks=2 unmatched=0")

	store, err := sample.OpenStore(filepath.Join(outDir, "baseline"), sample.Zstd)
	require.NoError(t, err)
	indices, err := store.Indices()
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestApp_WriteConfigsOnly(t *testing.T) {
	dir := t.TempDir()

	_, _, err := runApp(t, Config{WriteConfigs: dir})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 14)
	assert.FileExists(t, filepath.Join(dir, "M1.txt"))
}

func TestApp_ConfigurationErrors(t *testing.T) {
	runPath, _ := newRunFile(t)

	_, _, err := runApp(t, Config{RunPath: runPath, Variants: []string{"Z9"}})
	assert.ErrorContains(t, err, `unknown variant "Z9"`)

	_, _, err = runApp(t, Config{RunPath: filepath.Join(t.TempDir(), "missing.hcl")})
	assert.ErrorContains(t, err, "failed to load run file")
}

func TestApp_HealthCheck(t *testing.T) {
	runPath, _ := newRunFile(t)

	a, _, err := runApp(t, Config{RunPath: runPath, HealthcheckPort: -1})
	require.NoError(t, err)
	require.NotEmpty(t, a.HealthAddr())

	resp, err := http.Get("http://" + a.HealthAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + a.HealthAddr() + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap progress.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, a.RunID(), snap.RunID)
	assert.Equal(t, 2, snap.Generated)

	require.NoError(t, a.Close())
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "run file", cfg: Config{RunPath: "run.hcl"}},
		{name: "configs only", cfg: Config{WriteConfigs: "out"}},
		{name: "nothing to do", cfg: Config{}, expectErr: true},
		{name: "resume and append", cfg: Config{RunPath: "run.hcl", Resume: true, Append: true}, expectErr: true},
		{name: "list and probe", cfg: Config{RunPath: "run.hcl", List: true, Probe: true}, expectErr: true},
		{name: "negative workers", cfg: Config{RunPath: "run.hcl", Workers: -2}, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
