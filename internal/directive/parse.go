package directive

import (
	"strconv"
	"strings"

	"github.com/vk/qorgraph/internal/pipelineerr"
)

const (
	cmdUnroll         = "set_directive_unroll"
	cmdArrayPartition = "set_directive_array_partition"
	cmdResource       = "set_directive_resource"
	cmdPipeline       = "set_directive_pipeline"
)

// Script is the parsed form of one configuration script.
type Script struct {
	// Directives holds the recognized directives in declaration order.
	Directives []Directive
	// Ignored holds non-blank lines naming commands this package does not
	// model (inline, interface, ...).
	Ignored []string
}

// ParseScript parses a newline-separated directive script. Blank lines are
// skipped. Any malformed recognized command is a configuration error.
func ParseScript(script string) (*Script, error) {
	s := &Script{}
	for i, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d, ok, err := ParseLine(line)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.Configuration, "parse directive script", "line %d: %w", i+1, err)
		}
		if !ok {
			s.Ignored = append(s.Ignored, line)
			continue
		}
		s.Directives = append(s.Directives, d)
	}
	return s, nil
}

// ParseLine parses a single directive command. The boolean result is false
// when the line does not name a modelled command.
func ParseLine(line string) (Directive, bool, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil, false, nil
	}

	switch {
	case strings.Contains(line, cmdUnroll):
		d, err := parseUnroll(words)
		return d, err == nil, err
	case strings.Contains(line, cmdArrayPartition):
		d, err := parseArrayPartition(words)
		return d, err == nil, err
	case strings.Contains(line, cmdResource):
		d, err := parseResource(words)
		return d, err == nil, err
	case strings.Contains(line, cmdPipeline):
		d, err := parsePipeline(words)
		return d, err == nil, err
	}
	return nil, false, nil
}

func parseUnroll(words []string) (Directive, error) {
	factor, err := intFlag(words, "-factor")
	if err != nil {
		return nil, err
	}
	if factor < 1 {
		return nil, errorf("unroll factor must be positive, got %d", factor)
	}
	label, err := loopLabel(words)
	if err != nil {
		return nil, err
	}
	return Unroll{Factor: factor, LoopLabel: label}, nil
}

func parseArrayPartition(words []string) (Directive, error) {
	raw, ok := flagValue(words, "-type")
	if !ok {
		return nil, errorf("array_partition requires -type")
	}

	d := ArrayPartition{Type: PartitionType(raw), Factor: 1, Dim: 1}
	switch d.Type {
	case Cyclic, Block:
		factor, err := intFlag(words, "-factor")
		if err != nil {
			return nil, err
		}
		d.Factor = factor
	case Complete:
	default:
		return nil, errorf("unrecognized array_partition type %q", raw)
	}

	if _, ok := flagValue(words, "-dim"); ok {
		dim, err := intFlag(words, "-dim")
		if err != nil {
			return nil, err
		}
		d.Dim = dim
	}

	d.Variable = unquote(words[len(words)-1])
	if d.Variable == "" || strings.HasPrefix(d.Variable, "-") {
		return nil, errorf("array_partition is missing its variable")
	}
	return d, nil
}

func parseResource(words []string) (Directive, error) {
	core, ok := flagValue(words, "-core")
	if !ok {
		return nil, errorf("resource requires -core")
	}
	variable := unquote(words[len(words)-1])
	if variable == "" || variable == core {
		return nil, errorf("resource is missing its variable")
	}
	return Resource{Variable: variable, Core: core}, nil
}

func parsePipeline(words []string) (Directive, error) {
	label, err := loopLabel(words)
	if err != nil {
		return nil, err
	}
	return Pipeline{LoopLabel: label}, nil
}

// loopLabel takes the last path segment of the final, slash-delimited token.
func loopLabel(words []string) (string, error) {
	if len(words) < 2 {
		return "", errorf("%s is missing its loop label", words[0])
	}
	path := unquote(words[len(words)-1])
	segments := strings.Split(path, "/")
	label := segments[len(segments)-1]
	if label == "" {
		return "", errorf("empty loop label in %q", path)
	}
	return label, nil
}

// flagValue returns the token following flag.
func flagValue(words []string, flag string) (string, bool) {
	for i, w := range words {
		if w == flag && i+1 < len(words) {
			return words[i+1], true
		}
	}
	return "", false
}

func intFlag(words []string, flag string) (int, error) {
	raw, ok := flagValue(words, flag)
	if !ok {
		return 0, errorf("%s requires %s", words[0], flag)
	}
	v, err := strconv.Atoi(unquote(raw))
	if err != nil {
		return 0, errorf("%s %s: %q is not an integer", words[0], flag, raw)
	}
	return v, nil
}

func unquote(s string) string {
	return strings.Trim(s, `"'{}`)
}
