package blockcfg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/extract"
	"github.com/vk/qorgraph/internal/testutil"
)

func TestBuild(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		want *CFG
	}{
		{
			name: "fixture kernel",
			doc:  testutil.KernelDOT,
			want: &CFG{
				Edges:      [2][]int64{{0, 1}, {1, 0}},
				NodeBlocks: []int64{0, 0, 1, 1, 1},
				NumBlocks:  2,
				Batch:      []int64{0, 0},
			},
		},
		{
			name: "dataflow, address and pragma edges are ignored",
			doc: `digraph {
				a [bbID=0, keyText=x]; b [bbID=1, keyText=y];
				a -> b [flowType=dataflow]; a -> b [flowType=address]; a -> b [flowType=pragma];
			}`,
			want: &CFG{
				Edges:      [2][]int64{{}, {}},
				NodeBlocks: []int64{0, 1},
				NumBlocks:  2,
				Batch:      []int64{0, 0},
			},
		},
		{
			name: "duplicates collapse and sparse ids size the block count",
			doc: `digraph {
				a [bbID=3, keyText=x]; b [bbID=0, keyText=y]; c [bbID=3, keyText=z];
				a -> b [flowType=control]; c -> b [flowType=call]; b -> a [flowType=control, style=dashed];
				a -> c [flowType=control];
			}`,
			want: &CFG{
				Edges:      [2][]int64{{3}, {0}},
				NodeBlocks: []int64{3, 0, 3},
				NumBlocks:  4,
				Batch:      []int64{0, 0, 0, 0},
			},
		},
		{
			name: "empty graph",
			doc:  `digraph {}`,
			want: &CFG{
				Edges:      [2][]int64{{}, {}},
				NodeBlocks: []int64{},
				Batch:      []int64{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := extract.ParseDOT(tc.doc)
			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, Build(g)); diff != "" {
				t.Errorf("CFG mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNodeBlocks(t *testing.T) {
	g := attrgraph.New()
	var a attrgraph.Attrs
	a.Set(attrgraph.KeyBBID, "7")
	g.AddNode("n", a)

	require.Equal(t, []int64{7}, NodeBlocks(g))
}
