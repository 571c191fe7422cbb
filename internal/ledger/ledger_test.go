package ledger

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")

	first, err := Open(path, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", first.RunID())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(pos int) {
			defer wg.Done()
			r := Record{Variant: "baseline", Kernel: "gemm", Position: pos, Index: int64(100 + pos), Outcome: OK}
			if pos%4 == 3 {
				r.Outcome, r.ErrKind, r.Message = Failed, "extraction", "tool crashed"
			}
			assert.NoError(t, first.Record(r))
		}(i)
	}
	wg.Wait()
	require.NoError(t, first.Record(Record{Variant: "A1", Kernel: "gemm", Position: 0, Index: 100, Outcome: OK}))

	summary, err := first.Summary()
	require.NoError(t, err)
	assert.Equal(t, map[Outcome]int{OK: 7, Failed: 2}, summary)

	failures, err := first.Failures()
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "tool crashed", failures[0].Message)
	assert.Equal(t, "extraction", failures[0].ErrKind)
	require.NoError(t, first.Close())

	second, err := Open(path, "run-2")
	require.NoError(t, err)
	defer second.Close()

	done, err := second.Completed("baseline", "gemm")
	require.NoError(t, err)
	assert.Len(t, done, 6)
	assert.True(t, done[100])
	assert.False(t, done[103], "failed candidates are not completed")

	summary, err = second.Summary()
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "ledger.sqlite"), "run")
	assert.Error(t, err)
}
