// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package sample defines the persisted training sample and the directory
// layout samples are stored in: one file per global index, named
// data_<index>.msgpack with an optional compression suffix.
package sample

import (
	"github.com/vk/qorgraph/internal/blockcfg"
	"github.com/vk/qorgraph/internal/labels"
)

// Sample is the record for one (kernel, directive script) pair. It is written
// once and never modified.
type Sample struct {
	Index   int64  `msgpack:"index"`
	Kernel  string `msgpack:"kernel"`
	Variant string `msgpack:"variant"`
	// Pragmas is the raw directive script the sample was generated from.
	Pragmas string `msgpack:"pragmas"`
	RunID   string `msgpack:"run_id"`

	X             [][]float32 `msgpack:"x"`
	EdgeIndex     [2][]int64  `msgpack:"edge_index"`
	EdgeAttr      [][]float32 `msgpack:"edge_attr"`
	EdgeIndexAttr [][]int64   `msgpack:"edge_index_attr,omitempty"`

	Y    labels.Vector `msgpack:"y"`
	MaxY labels.Maxima `msgpack:"max_y"`

	// CFG is the kernel's block graph, shared by all samples of the kernel.
	CFG *blockcfg.CFG `msgpack:"cfg"`
	// CFGSelect maps each node of this sample's graph to its block.
	CFGSelect []int64 `msgpack:"cfg_select"`
}

// NumNodes is the number of rows of X.
func (s *Sample) NumNodes() int { return len(s.X) }

// NumEdges is the number of edge-index columns, reverse edges included.
func (s *Sample) NumEdges() int { return len(s.EdgeIndex[0]) }
