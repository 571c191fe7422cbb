// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package featureconfig builds the declarative feature-encoding configuration
// of an experiment variant: the extraction tool invocation, the ordered list
// of encoders, and the categorical vocabularies for node key texts and edge
// flow types.
package featureconfig

import (
	"strconv"
	"strings"
)

// DefaultInvocation is the extraction tool command line before any toggle
// has added flags.
const DefaultInvocation = "AIR --hide_values"

const conversionFlags = " --allocas_to_mem_elems --remove_sexts --remove_single_target_branches --drop_func_call_proc"

// Config is the built, read-only encoding configuration of one variant.
type Config struct {
	Name string
	// Invocation is the tool command line. The adapter appends --top and
	// --src to it.
	Invocation  string
	Encoders    []EncoderSpec
	KeyTextTags []string
	FlowTags    []string
	// Toggles is the zero value for configs read back from a document.
	Toggles Toggles
}

// Build turns toggles into a Config. base is the tool command line to start
// from; an empty base means DefaultInvocation. Flags are appended in a fixed
// order, so the same toggles always produce the same invocation.
func Build(name, base string, t Toggles) (*Config, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(base) == "" {
		base = DefaultInvocation
	}

	var inv strings.Builder
	inv.WriteString(strings.TrimSpace(base))
	c := &Config{Name: name, Toggles: t}

	if t.ProxyPrograml {
		inv.WriteString(" --proxy_programl")
	}
	if t.EncodeNodeType {
		inv.WriteString(" --add_node_type")
		c.Encoders = append(c.Encoders, oneHot(ScopeNode, "nodeType", "instruction", "pragma", "variable", "constant"))
	}

	// Block ids are always requested; the control-flow graph needs them.
	inv.WriteString(" --add_bb_id")
	if t.EncodeBBID {
		c.Encoders = append(c.Encoders, oneHot(ScopeNode, "bbID", counting(bbIDCount)...))
	}
	if t.EncodeFuncID {
		c.Encoders = append(c.Encoders, oneHot(ScopeNode, "funcID", counting(funcIDCount)...))
		inv.WriteString(" --add_func_id")
	}
	if t.EncodeEdgeOrder {
		inv.WriteString(" --add_edge_order")
		c.Encoders = append(c.Encoders, oneHot(ScopeEdge, "edgeOrder", counting(edgeOrderCount)...))
	}

	if t.ConvertAllocas {
		inv.WriteString(conversionFlags)
		c.KeyTextTags = append([]string(nil), convertedNodes...)
		c.FlowTags = append([]string(nil), convertedEdges...)
	} else {
		c.KeyTextTags = append([]string(nil), baselineNodes...)
		c.FlowTags = append([]string(nil), baselineEdges...)
	}

	switch {
	case t.OneHotEncodeTypes && t.AbsorbTypes:
		c.Encoders = append(c.Encoders, typeEncoder(t.ProxyPrograml, t.ReduceIteratorBitwidths))
		inv.WriteString(" --absorb_types --one_hot_types")
	case t.OneHotEncodeTypes:
		c.KeyTextTags = append(c.KeyTextTags, typeNodes...)
		c.KeyTextTags = append(c.KeyTextTags, doubleTag(t.ProxyPrograml))
		inv.WriteString(" --one_hot_types")
	default:
		inv.WriteString(" --absorb_types")
		c.Encoders = append(c.Encoders,
			oneHot(ScopeNode, "datatype", "int", "float", "NA", "void"),
			normalized("bitwidth", bitwidthBound))
	}

	if t.AbsorbPragmas {
		inv.WriteString(" --absorb_pragmas")
		c.Encoders = append(c.Encoders,
			partitionEncoder(1),
			partitionEncoder(2),
			oneHot(ScopeNode, "inlined", "not_inlined", "inlined"),
			normalized("fullUnrollFactor", unrollBound),
			normalized("partitionFactor1", unrollBound),
			normalized("partitionFactor2", unrollBound))
	} else {
		c.Encoders = append(c.Encoders, normalized("numeric", numericBound))
		c.KeyTextTags = append(c.KeyTextTags, pragmaNodes...)
		c.FlowTags = append(c.FlowTags, "pragma")
	}

	if t.IgnoreControlFlow {
		inv.WriteString(" --ignore_control_flow --ignore_call_edges")
	} else {
		method := OneHot
		if t.IndexFlowType {
			method = Index
		}
		c.Encoders = append(c.Encoders, EncoderSpec{
			Scope:        ScopeEdge,
			AttributeKey: "flowType",
			Method:       method,
			Vocabulary:   append([]string(nil), c.FlowTags...),
		})
	}

	if t.MemoryOnlyControlFlow {
		inv.WriteString(" --only_memory_control_flow")
	}
	if t.AddNumCalls {
		inv.WriteString(" --add_num_calls")
		c.Encoders = append(c.Encoders, normalized("numCalls", numCallsBound), normalized("numCallSites", numCallSiteBound))
	}
	if t.ReduceIteratorBitwidths {
		inv.WriteString(" --reduce_iterator_bitwidth")
	}
	if t.EncodeTripcount {
		c.Encoders = append(c.Encoders, EncoderSpec{
			Scope:        ScopeNode,
			AttributeKey: "tripcount",
			Method:       Log2Normalized,
			Vocabulary:   []string{strconv.Itoa(tripcountBound)},
		})
	}
	if t.HierarchicalUnroll {
		for i := 1; i <= unrollDepths; i++ {
			c.Encoders = append(c.Encoders, normalized("unrollFactor"+strconv.Itoa(i), unrollBound))
		}
	}

	c.Encoders = append(c.Encoders, oneHot(ScopeNode, "keyText", append([]string(nil), c.KeyTextTags...)...))
	c.Invocation = inv.String()
	return c, nil
}

// NodeEncoders returns the node-scoped encoders in configured order.
func (c *Config) NodeEncoders() []EncoderSpec { return c.scoped(ScopeNode) }

// EdgeEncoders returns the edge-scoped encoders in configured order.
func (c *Config) EdgeEncoders() []EncoderSpec { return c.scoped(ScopeEdge) }

func (c *Config) scoped(s Scope) []EncoderSpec {
	var out []EncoderSpec
	for _, e := range c.Encoders {
		if e.Scope == s {
			out = append(out, e)
		}
	}
	return out
}
