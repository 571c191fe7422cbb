// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package directive models the HLS optimization directives found in a
// configuration script. A script is a newline-separated list of Tcl-style
// commands such as
//
//	set_directive_unroll -factor 8 "gemm/L1"
//	set_directive_array_partition -type cyclic -factor 4 -dim 2 "gemm" buf
//	set_directive_resource -core RAM_2P_BRAM "gemm" buf
//	set_directive_pipeline "gemm/L2"
//
// Each recognized command becomes one of four immutable variants: Unroll,
// ArrayPartition, Resource or Pipeline. Directives carry no application state;
// a single parsed script may be shared by any number of concurrent annotation
// passes.
package directive

import "fmt"

// Kind names a directive variant.
type Kind string

const (
	KindUnroll         Kind = "unroll"
	KindArrayPartition Kind = "array_partition"
	KindResource       Kind = "resource"
	KindPipeline       Kind = "pipeline"
)

// Directive is the closed set of directive variants. The unexported method
// keeps the set closed to this package.
type Directive interface {
	Kind() Kind
	// Pragma returns the source line, without indentation, that the directive
	// contributes to an annotated kernel.
	Pragma() string
	String() string
	isDirective()
}

// PartitionType is the array_partition -type argument.
type PartitionType string

const (
	Cyclic   PartitionType = "cyclic"
	Block    PartitionType = "block"
	Complete PartitionType = "complete"
)

// Unroll unrolls the loop carrying LoopLabel by Factor.
type Unroll struct {
	Factor    int
	LoopLabel string
}

func (Unroll) Kind() Kind       { return KindUnroll }
func (Unroll) isDirective()     {}
func (d Unroll) Pragma() string { return fmt.Sprintf("#pragma HLS UNROLL factor=%d", d.Factor) }
func (d Unroll) String() string {
	return fmt.Sprintf("unroll(label=%s, factor=%d)", d.LoopLabel, d.Factor)
}

// ArrayPartition splits Variable along dimension Dim. Factor is 1 for
// complete partitions.
type ArrayPartition struct {
	Type     PartitionType
	Factor   int
	Dim      int
	Variable string
}

func (ArrayPartition) Kind() Kind   { return KindArrayPartition }
func (ArrayPartition) isDirective() {}
func (d ArrayPartition) Pragma() string {
	return fmt.Sprintf("#pragma HLS ARRAY_PARTITION type=%s variable=%s factor=%d dim=%d", d.Type, d.Variable, d.Factor, d.Dim)
}
func (d ArrayPartition) String() string {
	return fmt.Sprintf("array_partition(variable=%s, type=%s, factor=%d, dim=%d)", d.Variable, d.Type, d.Factor, d.Dim)
}

// Resource binds Variable to the resource class Core.
type Resource struct {
	Variable string
	Core     string
}

func (Resource) Kind() Kind   { return KindResource }
func (Resource) isDirective() {}
func (d Resource) Pragma() string {
	return fmt.Sprintf("#pragma HLS RESOURCE core=%s variable=%s", d.Core, d.Variable)
}
func (d Resource) String() string {
	return fmt.Sprintf("resource(variable=%s, core=%s)", d.Variable, d.Core)
}

// Pipeline pipelines the loop carrying LoopLabel.
type Pipeline struct {
	LoopLabel string
}

func (Pipeline) Kind() Kind       { return KindPipeline }
func (Pipeline) isDirective()     {}
func (Pipeline) Pragma() string   { return "#pragma HLS PIPELINE" }
func (d Pipeline) String() string { return fmt.Sprintf("pipeline(label=%s)", d.LoopLabel) }
