// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package featureconfig

import (
	"fmt"
	"strconv"

	"github.com/vk/qorgraph/internal/pipelineerr"
)

// Scope says which graph elements an encoder reads.
type Scope string

const (
	ScopeNode Scope = "node"
	ScopeEdge Scope = "edge"
)

// Method is the numeric encoding applied to one attribute.
type Method string

const (
	// OneHot expands a categorical value into one column per vocabulary tag.
	OneHot Method = "one_hot"
	// NormalizedFloat maps [0, max] linearly onto [-1, 1].
	NormalizedFloat Method = "normalized"
	// Log2Normalized maps log2(value) over [0, max] onto [-1, 1].
	Log2Normalized Method = "log_normalized"
	// Index yields the vocabulary position of a categorical value.
	Index Method = "index"
)

func parseMethod(s string) (Method, bool) {
	switch m := Method(s); m {
	case OneHot, NormalizedFloat, Log2Normalized, Index:
		return m, true
	}
	return "", false
}

// EncoderSpec maps one graph attribute to an encoding method. For the two
// normalizing methods the vocabulary holds exactly one tag, the divisor.
type EncoderSpec struct {
	Scope        Scope
	AttributeKey string
	Method       Method
	Vocabulary   []string
}

// Numeric reports whether the encoder produces a single scaled column.
func (e EncoderSpec) Numeric() bool {
	return e.Method == NormalizedFloat || e.Method == Log2Normalized
}

// Bound returns the normalization divisor of a numeric encoder.
func (e EncoderSpec) Bound() (float64, error) {
	if !e.Numeric() {
		return 0, fmt.Errorf("encoder %s uses %s and has no numeric bound", e.AttributeKey, e.Method)
	}
	if len(e.Vocabulary) != 1 {
		return 0, fmt.Errorf("encoder %s needs exactly one bound, got %d", e.AttributeKey, len(e.Vocabulary))
	}
	v, err := strconv.ParseFloat(e.Vocabulary[0], 64)
	if err != nil {
		return 0, fmt.Errorf("encoder %s has a non-numeric bound %q: %w", e.AttributeKey, e.Vocabulary[0], err)
	}
	if v == 0 {
		return 0, fmt.Errorf("encoder %s has a zero bound", e.AttributeKey)
	}
	return v, nil
}

func (e EncoderSpec) validate() error {
	const op = "validate encoder"
	switch {
	case e.Scope != ScopeNode && e.Scope != ScopeEdge:
		return pipelineerr.New(pipelineerr.Configuration, op, "encoder %s: unknown scope %q", e.AttributeKey, e.Scope)
	case e.AttributeKey == "":
		return pipelineerr.New(pipelineerr.Configuration, op, "encoder without an attribute key")
	case len(e.Vocabulary) == 0:
		return pipelineerr.New(pipelineerr.Configuration, op, "encoder %s has an empty vocabulary", e.AttributeKey)
	case e.Method == Index && e.Scope != ScopeEdge:
		return pipelineerr.New(pipelineerr.Configuration, op, "encoder %s: index encoding is only supported for edges", e.AttributeKey)
	}
	if e.Numeric() {
		if _, err := e.Bound(); err != nil {
			return pipelineerr.Wrap(pipelineerr.Configuration, op, err)
		}
	}
	return nil
}

func oneHot(scope Scope, key string, tags ...string) EncoderSpec {
	return EncoderSpec{Scope: scope, AttributeKey: key, Method: OneHot, Vocabulary: tags}
}

func normalized(key string, bound int) EncoderSpec {
	return EncoderSpec{Scope: ScopeNode, AttributeKey: key, Method: NormalizedFloat, Vocabulary: []string{strconv.Itoa(bound)}}
}

func counting(n int) []string {
	tags := make([]string, n)
	for i := range tags {
		tags[i] = strconv.Itoa(i)
	}
	return tags
}
