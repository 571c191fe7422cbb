// Package blockcfg collapses a node-level program graph into the control-flow
// graph between its basic blocks.
package blockcfg

import (
	"sort"

	"github.com/vk/qorgraph/internal/attrgraph"
)

// CFG is the basic-block graph of one kernel.
type CFG struct {
	// Edges holds block sources in row 0 and block targets in row 1, sorted
	// by (source, target) and free of duplicates and self-loops.
	Edges [2][]int64 `msgpack:"edges"`
	// NodeBlocks maps each node position to its block id.
	NodeBlocks []int64 `msgpack:"node_blocks"`
	NumBlocks  int     `msgpack:"num_blocks"`
	// Batch is all zeros, one entry per block, until graphs are batched.
	Batch []int64 `msgpack:"batch"`
}

type blockEdge struct{ src, dst int64 }

// Build derives the CFG from control and call edges, following each edge's
// effective direction. The graph must have passed Validate.
func Build(g *attrgraph.Graph) *CFG {
	c := &CFG{NodeBlocks: NodeBlocks(g)}
	for _, b := range c.NodeBlocks {
		if int(b)+1 > c.NumBlocks {
			c.NumBlocks = int(b) + 1
		}
	}
	c.Batch = make([]int64, c.NumBlocks)

	seen := make(map[blockEdge]struct{})
	var edges []blockEdge
	for _, e := range g.Edges {
		if ft := e.FlowType(); ft != attrgraph.FlowControl && ft != attrgraph.FlowCall {
			continue
		}
		src, dst := g.Endpoints(e)
		be := blockEdge{src: c.NodeBlocks[src], dst: c.NodeBlocks[dst]}
		if be.src == be.dst {
			continue
		}
		if _, dup := seen[be]; dup {
			continue
		}
		seen[be] = struct{}{}
		edges = append(edges, be)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].src != edges[j].src {
			return edges[i].src < edges[j].src
		}
		return edges[i].dst < edges[j].dst
	})

	c.Edges = [2][]int64{make([]int64, len(edges)), make([]int64, len(edges))}
	for i, be := range edges {
		c.Edges[0][i], c.Edges[1][i] = be.src, be.dst
	}
	return c
}

// NodeBlocks returns the block id of every node, in node order.
func NodeBlocks(g *attrgraph.Graph) []int64 {
	out := make([]int64, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = int64(n.BBID())
	}
	return out
}
