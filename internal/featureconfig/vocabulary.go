package featureconfig

import "strconv"

// Node key texts emitted by the extraction tool without alloca conversion.
var baselineNodes = []string{
	"[external]", "alloca", "store", "load", "icmp", "br", "getelementptr", "sub", "mul", "add",
	"fsub", "fmul", "fadd", "sext", "ret", "bitcast", "truncate", "call", "div", "sitofp",
	";undefinedfunction", "fcmp", "zext", "trunc", "ashr", "and", "or", "xor", "shl", "fdiv",
	"phi", "fneg",
}

// Node key texts emitted with --allocas_to_mem_elems and friends.
var convertedNodes = []string{
	"[external]", "ret", "externalArray", "externalScalar", "localScalar", "localArray",
	"globalArray", "arrayParameter", "store", "load", "cmp", "br", "sub", "mul", "getelementptr",
	"add", "specifyAddress", "div", "call", "sitofp", "cos", "sin", "ashr", "and", "or", "xor",
	"shl", "phi", "fneg", "exp", "sqrt",
}

// Separate pragma nodes, present unless pragmas are absorbed.
var pragmaNodes = []string{
	"resourceAllocation_bram2p", "resourceAllocation_bram1p",
	"cyclicArrayPartition1", "cyclicArrayPartition2",
	"blockArrayPartition1", "blockArrayPartition2",
	"completeArrayPartition1", "completeArrayPartition2",
	"unroll",
}

// Type node texts seen across the kernel catalogue.
var typeNodes = []string{
	"f32", "i64", "i32", "i1", "i8", "::prob_t[140][64]", "::prob_t[140]", "::int32_t[2048]",
	"::uint8_t[32]", "const::uint8_t[256]", "double[64]", "int[8]", "double[3]", "double[192]",
	"double[4096]", "double[832]", "void", "float[64][64]", "float[64]",
}

var (
	baselineEdges  = []string{"dataflow", "call", "control"}
	convertedEdges = []string{"dataflow", "control", "call", "address"}
)

const (
	bbIDCount        = 200
	funcIDCount      = 20
	edgeOrderCount   = 20
	unrollDepths     = 3
	unrollBound      = 256
	numericBound     = 256
	numCallsBound    = 256
	numCallSiteBound = 8
	bitwidthBound    = 64
	tripcountBound   = 18
)

// doubleTag is how the 64-bit float type is spelled in each representation.
func doubleTag(proxyPrograml bool) string {
	if proxyPrograml {
		return "double"
	}
	return "f64"
}

func typeEncoder(proxyPrograml, reduceIteratorBitwidths bool) EncoderSpec {
	tags := append(append([]string(nil), typeNodes...), "NA", doubleTag(proxyPrograml))
	if reduceIteratorBitwidths {
		for j := 0; j < 13; j++ {
			tags = append(tags, "i"+strconv.Itoa(j))
		}
	}
	return oneHot(ScopeNode, "datatype", tags...)
}

func partitionEncoder(dim int) EncoderSpec {
	return oneHot(ScopeNode, "partition"+strconv.Itoa(dim), "none", "cyclic", "block", "complete")
}
