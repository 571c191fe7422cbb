// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package attrgraph is the structured form of the program graph emitted by the
// extraction tool: ordered nodes and edges, each carrying an ordered map of
// string attributes.
package attrgraph

import (
	"fmt"
	"strconv"
)

// Attribute keys the pipeline relies on.
const (
	KeyBBID     = "bbID"
	KeyText     = "keyText"
	KeyFlowType = "flowType"
	KeyStyle    = "style"
)

// StyleReversed marks an edge whose semantic direction is the reverse of its
// declaration.
const StyleReversed = "dashed"

// Edge flow types.
const (
	FlowControl  = "control"
	FlowCall     = "call"
	FlowDataflow = "dataflow"
	FlowAddress  = "address"
	FlowPragma   = "pragma"
)

// Attrs is an insertion-ordered string map.
type Attrs struct {
	keys []string
	vals map[string]string
}

// Set stores v under k, keeping the position of an existing key.
func (a *Attrs) Set(k, v string) {
	if a.vals == nil {
		a.vals = make(map[string]string)
	}
	if _, ok := a.vals[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.vals[k] = v
}

func (a Attrs) Get(k string) (string, bool) {
	v, ok := a.vals[k]
	return v, ok
}

// Keys returns the attribute keys in insertion order.
func (a Attrs) Keys() []string { return append([]string(nil), a.keys...) }

func (a Attrs) Len() int { return len(a.keys) }

// Node is one program element. ID is the name used in the graph document.
type Node struct {
	ID    string
	Attrs Attrs
}

// BBID returns the node's basic-block id. It is valid after Graph.Validate.
func (n Node) BBID() int {
	v, _ := n.Attrs.Get(KeyBBID)
	id, _ := strconv.Atoi(v)
	return id
}

// Edge connects two nodes by ID.
type Edge struct {
	From, To string
	Attrs    Attrs
}

func (e Edge) FlowType() string {
	v, _ := e.Attrs.Get(KeyFlowType)
	return v
}

// Reversed reports whether the style hint flips the edge's direction.
func (e Edge) Reversed() bool {
	v, _ := e.Attrs.Get(KeyStyle)
	return v == StyleReversed
}

// Graph keeps nodes and edges in declaration order.
type Graph struct {
	Nodes []Node
	Edges []Edge
	index map[string]int
}

func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode declares a node, or merges attrs into an already declared one.
// It returns the node's position.
func (g *Graph) AddNode(id string, attrs Attrs) int {
	if g.index == nil {
		g.index = make(map[string]int)
	}
	if pos, ok := g.index[id]; ok {
		for _, k := range attrs.keys {
			g.Nodes[pos].Attrs.Set(k, attrs.vals[k])
		}
		return pos
	}
	g.Nodes = append(g.Nodes, Node{ID: id, Attrs: attrs})
	g.index[id] = len(g.Nodes) - 1
	return len(g.Nodes) - 1
}

func (g *Graph) AddEdge(from, to string, attrs Attrs) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Attrs: attrs})
}

// NodeIndex returns the position of the node called id.
func (g *Graph) NodeIndex(id string) (int, bool) {
	pos, ok := g.index[id]
	return pos, ok
}

// Endpoints returns the positions of an edge's nodes in their effective
// direction, honoring the reversed style hint.
func (g *Graph) Endpoints(e Edge) (src, dst int) {
	src, dst = g.index[e.From], g.index[e.To]
	if e.Reversed() {
		return dst, src
	}
	return src, dst
}

// Validate checks the keys every consumer depends on: a non-negative integer
// block id and a key text on every node, a flow type on every edge, and that
// each edge endpoint is a declared node.
func (g *Graph) Validate() error {
	for _, n := range g.Nodes {
		v, ok := n.Attrs.Get(KeyBBID)
		if !ok {
			return fmt.Errorf("node %s has no %s attribute", n.ID, KeyBBID)
		}
		if id, err := strconv.Atoi(v); err != nil || id < 0 {
			return fmt.Errorf("node %s has invalid %s %q", n.ID, KeyBBID, v)
		}
		if _, ok := n.Attrs.Get(KeyText); !ok {
			return fmt.Errorf("node %s has no %s attribute", n.ID, KeyText)
		}
	}
	for i, e := range g.Edges {
		if _, ok := g.index[e.From]; !ok {
			return fmt.Errorf("edge %d references undeclared node %s", i, e.From)
		}
		if _, ok := g.index[e.To]; !ok {
			return fmt.Errorf("edge %d references undeclared node %s", i, e.To)
		}
		if _, ok := e.Attrs.Get(KeyFlowType); !ok {
			return fmt.Errorf("edge %s -> %s has no %s attribute", e.From, e.To, KeyFlowType)
		}
	}
	return nil
}
