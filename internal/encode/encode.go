// Package encode turns an attributed graph into the fixed-shape numeric
// tensors of a training sample.
package encode

import (
	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

// ReservedWidth is the all-zero block appended to every node row. It is the
// same for every variant so that downstream models keep their input shape.
const ReservedWidth = 240

// Features is the encoded form of one graph.
type Features struct {
	// NodeFeatures has one row per node.
	NodeFeatures [][]float32
	// EdgeIndex holds source positions in row 0 and target positions in
	// row 1, one column per edge row.
	EdgeIndex [2][]int64
	// EdgeFeatures is aligned with the EdgeIndex columns.
	EdgeFeatures [][]float32
	// EdgeIndexAttrs holds, per edge row, one value for each index-encoded
	// edge attribute. It is nil when no encoder uses the index method.
	EdgeIndexAttrs [][]int64
}

// Encoder encodes graphs for one Config. It is safe for concurrent use.
type Encoder struct {
	node          []field
	edge          []field
	edgeIndex     []*indexField
	nodeWidth     int
	edgeWidth     int
	bidirectional bool
}

// New compiles the encoders of cfg. With bidirectional set, every declared
// edge also contributes its reverse.
func New(cfg *featureconfig.Config, bidirectional bool) (*Encoder, error) {
	e := &Encoder{bidirectional: bidirectional, nodeWidth: ReservedWidth}
	for _, spec := range cfg.Encoders {
		if spec.Method == featureconfig.Index {
			e.edgeIndex = append(e.edgeIndex, newIndexField(spec))
			continue
		}
		f, err := newField(spec)
		if err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.Configuration, "compile encoders", err)
		}
		if spec.Scope == featureconfig.ScopeNode {
			e.node = append(e.node, f)
			e.nodeWidth += f.width()
		} else {
			e.edge = append(e.edge, f)
			e.edgeWidth += f.width()
		}
	}
	return e, nil
}

// NodeWidth is the length of every node row, padding included.
func (e *Encoder) NodeWidth() int { return e.nodeWidth }

// EdgeWidth is the length of every edge row.
func (e *Encoder) EdgeWidth() int { return e.edgeWidth }

// Encode encodes g. A value missing from its vocabulary, or an attribute the
// Config needs but the graph lacks, fails the whole graph with an encoding
// error.
func (e *Encoder) Encode(g *attrgraph.Graph) (*Features, error) {
	out := &Features{NodeFeatures: make([][]float32, len(g.Nodes))}

	for i, n := range g.Nodes {
		row := make([]float32, e.nodeWidth)
		if err := fill(e.node, n.Attrs, row); err != nil {
			return nil, pipelineerr.New(pipelineerr.Encoding, "encode node", "node %s: %w", n.ID, err)
		}
		out.NodeFeatures[i] = row
	}

	rows := len(g.Edges)
	if e.bidirectional {
		rows *= 2
	}
	out.EdgeIndex = [2][]int64{make([]int64, rows), make([]int64, rows)}
	out.EdgeFeatures = make([][]float32, rows)
	if len(e.edgeIndex) > 0 {
		out.EdgeIndexAttrs = make([][]int64, rows)
	}

	for i, edge := range g.Edges {
		src, ok := g.NodeIndex(edge.From)
		dst, ok2 := g.NodeIndex(edge.To)
		if !ok || !ok2 {
			return nil, pipelineerr.New(pipelineerr.Encoding, "encode edge", "edge %s -> %s references an undeclared node", edge.From, edge.To)
		}

		row := make([]float32, e.edgeWidth)
		if err := fill(e.edge, edge.Attrs, row); err != nil {
			return nil, pipelineerr.New(pipelineerr.Encoding, "encode edge", "edge %s -> %s: %w", edge.From, edge.To, err)
		}
		var idx []int64
		for _, f := range e.edgeIndex {
			v, err := f.index(edge.Attrs)
			if err != nil {
				return nil, pipelineerr.New(pipelineerr.Encoding, "encode edge", "edge %s -> %s: %w", edge.From, edge.To, err)
			}
			idx = append(idx, v)
		}

		out.EdgeIndex[0][i], out.EdgeIndex[1][i] = int64(src), int64(dst)
		out.EdgeFeatures[i] = row
		if idx != nil {
			out.EdgeIndexAttrs[i] = idx
		}
		if e.bidirectional {
			j := i + len(g.Edges)
			out.EdgeIndex[0][j], out.EdgeIndex[1][j] = int64(dst), int64(src)
			out.EdgeFeatures[j] = append([]float32(nil), row...)
			if idx != nil {
				out.EdgeIndexAttrs[j] = append([]int64(nil), idx...)
			}
		}
	}
	return out, nil
}

func fill(fields []field, attrs attrgraph.Attrs, row []float32) error {
	off := 0
	for _, f := range fields {
		w := f.width()
		if err := f.encode(attrs, row[off:off+w]); err != nil {
			return err
		}
		off += w
	}
	return nil
}
