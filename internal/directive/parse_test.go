package directive

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

func TestParseLine(t *testing.T) {
	testCases := []struct {
		name      string
		line      string
		want      Directive
		wantOK    bool
		expectErr bool
	}{
		{
			name:   "unroll with nested label",
			line:   `set_directive_unroll -factor 8 "gemm/outer/L1"`,
			want:   Unroll{Factor: 8, LoopLabel: "L1"},
			wantOK: true,
		},
		{
			name:   "cyclic partition",
			line:   `set_directive_array_partition -type cyclic -factor 4 -dim 2 "k" buf`,
			want:   ArrayPartition{Type: Cyclic, Factor: 4, Dim: 2, Variable: "buf"},
			wantOK: true,
		},
		{
			name:   "complete partition defaults",
			line:   `set_directive_array_partition -type complete "k" m1`,
			want:   ArrayPartition{Type: Complete, Factor: 1, Dim: 1, Variable: "m1"},
			wantOK: true,
		},
		{
			name:   "resource",
			line:   `set_directive_resource -core RAM_2P_BRAM "k" m2`,
			want:   Resource{Variable: "m2", Core: "RAM_2P_BRAM"},
			wantOK: true,
		},
		{
			name:   "pipeline",
			line:   `set_directive_pipeline "k/L2"`,
			want:   Pipeline{LoopLabel: "L2"},
			wantOK: true,
		},
		{
			name:   "unmodelled command",
			line:   `set_directive_inline "k"`,
			wantOK: false,
		},
		{
			name:      "unknown partition type",
			line:      `set_directive_array_partition -type diagonal -factor 2 "k" buf`,
			expectErr: true,
		},
		{
			name:      "block partition without factor",
			line:      `set_directive_array_partition -type block "k" buf`,
			expectErr: true,
		},
		{
			name:      "unroll without factor",
			line:      `set_directive_unroll "k/L1"`,
			expectErr: true,
		},
		{
			name:      "non numeric dim",
			line:      `set_directive_array_partition -type cyclic -factor 2 -dim x "k" buf`,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok, err := ParseLine(tc.line)
			if tc.expectErr {
				require.Error(t, err)
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			if diff := cmp.Diff(tc.want, d); diff != "" {
				t.Errorf("ParseLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseScript(t *testing.T) {
	script := "set_directive_unroll -factor 2 \"k/L1\"\n\nset_directive_interface -mode ap_fifo \"k\" in\nset_directive_pipeline \"k/L1\"\n"

	s, err := ParseScript(script)
	require.NoError(t, err)
	require.Len(t, s.Directives, 2)
	assert.Equal(t, KindUnroll, s.Directives[0].Kind())
	assert.Equal(t, KindPipeline, s.Directives[1].Kind())
	assert.Equal(t, []string{`set_directive_interface -mode ap_fifo "k" in`}, s.Ignored)

	t.Run("empty script", func(t *testing.T) {
		s, err := ParseScript("")
		require.NoError(t, err)
		assert.Empty(t, s.Directives)
	})

	t.Run("malformed line is a configuration error", func(t *testing.T) {
		_, err := ParseScript("set_directive_array_partition -type wavy \"k\" buf")
		require.Error(t, err)
		assert.True(t, pipelineerr.Is(err, pipelineerr.Configuration))
		assert.ErrorContains(t, err, "line 1")
	})
}

func TestPragma(t *testing.T) {
	assert.Equal(t, "#pragma HLS UNROLL factor=8", Unroll{Factor: 8, LoopLabel: "L1"}.Pragma())
	assert.Equal(t,
		"#pragma HLS ARRAY_PARTITION type=cyclic variable=buf factor=4 dim=2",
		ArrayPartition{Type: Cyclic, Factor: 4, Dim: 2, Variable: "buf"}.Pragma())
	assert.Equal(t, "#pragma HLS RESOURCE core=RAM_1P_BRAM variable=a", Resource{Variable: "a", Core: "RAM_1P_BRAM"}.Pragma())
	assert.Equal(t, "#pragma HLS PIPELINE", Pipeline{LoopLabel: "L"}.Pragma())
}
