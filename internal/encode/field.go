package encode

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/featureconfig"
)

// field writes the dense columns of one encoder.
type field interface {
	width() int
	encode(attrs attrgraph.Attrs, dst []float32) error
}

func newField(spec featureconfig.EncoderSpec) (field, error) {
	switch spec.Method {
	case featureconfig.OneHot:
		return newOneHotField(spec), nil
	case featureconfig.NormalizedFloat, featureconfig.Log2Normalized:
		bound, err := spec.Bound()
		if err != nil {
			return nil, err
		}
		return &numericField{key: spec.AttributeKey, bound: bound, log: spec.Method == featureconfig.Log2Normalized}, nil
	default:
		return nil, fmt.Errorf("encoder %s: method %s has no dense encoding", spec.AttributeKey, spec.Method)
	}
}

func lookup(attrs attrgraph.Attrs, key string) (string, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return "", fmt.Errorf("missing attribute %s", key)
	}
	return v, nil
}

// oneHotField orders its columns like a fitted categorical encoder: the
// distinct vocabulary tags, sorted.
type oneHotField struct {
	key         string
	columns     map[string]int
	stripSpaces bool
}

func newOneHotField(spec featureconfig.EncoderSpec) *oneHotField {
	tags := append([]string(nil), spec.Vocabulary...)
	sort.Strings(tags)
	f := &oneHotField{
		key:         spec.AttributeKey,
		columns:     make(map[string]int, len(tags)),
		stripSpaces: spec.Scope == featureconfig.ScopeNode,
	}
	for _, tag := range tags {
		if _, dup := f.columns[tag]; !dup {
			f.columns[tag] = len(f.columns)
		}
	}
	return f
}

func (f *oneHotField) width() int { return len(f.columns) }

func (f *oneHotField) encode(attrs attrgraph.Attrs, dst []float32) error {
	v, err := lookup(attrs, f.key)
	if err != nil {
		return err
	}
	if f.stripSpaces {
		v = strings.ReplaceAll(v, " ", "")
	}
	col, ok := f.columns[v]
	if !ok {
		return fmt.Errorf("%s value %q is not in the vocabulary", f.key, v)
	}
	dst[col] = 1
	return nil
}

// numericField scales a value over [0, bound] onto [-1, 1], optionally
// after taking its base-2 logarithm.
type numericField struct {
	key   string
	bound float64
	log   bool
}

func (f *numericField) width() int { return 1 }

func (f *numericField) encode(attrs attrgraph.Attrs, dst []float32) error {
	raw, err := lookup(attrs, f.key)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("%s value %q is not a number", f.key, raw)
	}
	if f.log {
		if v <= 0 {
			return fmt.Errorf("%s value %v must be positive for log2 scaling", f.key, v)
		}
		v = math.Log2(v)
	}
	dst[0] = float32(v/f.bound*2 - 1)
	return nil
}

// indexField yields the declared vocabulary position of a value.
type indexField struct {
	key       string
	positions map[string]int64
}

func newIndexField(spec featureconfig.EncoderSpec) *indexField {
	f := &indexField{key: spec.AttributeKey, positions: make(map[string]int64, len(spec.Vocabulary))}
	for i, tag := range spec.Vocabulary {
		if _, dup := f.positions[tag]; !dup {
			f.positions[tag] = int64(i)
		}
	}
	return f
}

func (f *indexField) index(attrs attrgraph.Attrs) (int64, error) {
	v, err := lookup(attrs, f.key)
	if err != nil {
		return 0, err
	}
	pos, ok := f.positions[v]
	if !ok {
		return 0, fmt.Errorf("%s value %q is not in the vocabulary", f.key, v)
	}
	return pos, nil
}
