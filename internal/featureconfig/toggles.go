package featureconfig

import "github.com/vk/qorgraph/internal/pipelineerr"

// Toggles are the boolean switches an experiment variant is made of. Each
// toggle adds extraction-tool flags, encoders or vocabulary entries.
type Toggles struct {
	// ProxyPrograml makes the tool emit its ProGraML-like representation.
	ProxyPrograml  bool
	EncodeNodeType bool
	EncodeBBID     bool
	EncodeFuncID   bool
	// EncodeEdgeOrder adds the operand position of each edge.
	EncodeEdgeOrder bool
	// AbsorbTypes folds type nodes into their users as attributes.
	AbsorbTypes bool
	// AbsorbPragmas folds pragma nodes into per-dimension attributes.
	AbsorbPragmas bool
	// ConvertAllocas turns stack-allocated scalars into memory elements.
	ConvertAllocas    bool
	IgnoreControlFlow bool
	// MemoryOnlyControlFlow keeps only control edges relevant to memory.
	MemoryOnlyControlFlow   bool
	AddNumCalls             bool
	ReduceIteratorBitwidths bool
	OneHotEncodeTypes       bool
	// IndexFlowType encodes the edge flow type as an index instead of a
	// one-hot feature.
	IndexFlowType      bool
	EncodeTripcount    bool
	HierarchicalUnroll bool
}

// DefaultToggles returns the baseline variant.
func DefaultToggles() Toggles {
	return Toggles{
		ProxyPrograml:     true,
		EncodeNodeType:    true,
		EncodeBBID:        true,
		EncodeFuncID:      true,
		EncodeEdgeOrder:   true,
		OneHotEncodeTypes: true,
	}
}

// Validate rejects toggle combinations the extraction tool cannot honor.
func (t Toggles) Validate() error {
	const op = "validate toggles"
	if !t.OneHotEncodeTypes && !t.AbsorbTypes {
		return pipelineerr.New(pipelineerr.Configuration, op, "disabling one-hot type encoding requires absorbed types")
	}
	return nil
}
