package annotate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/qorgraph/internal/directive"
)

// matcher reports whether a directive targets a source line. A nil matcher
// never matches.
type matcher func(line string) bool

func newMatcher(d directive.Directive) matcher {
	switch d := d.(type) {
	case directive.Unroll:
		if d.Factor <= 1 {
			return nil
		}
		return labelMatcher(d.LoopLabel)
	case directive.Pipeline:
		return labelMatcher(d.LoopLabel)
	case directive.ArrayPartition:
		return occurrenceMatcher(d.Variable)
	case directive.Resource:
		return occurrenceMatcher(d.Variable)
	default:
		panic(fmt.Sprintf("annotate: unhandled directive type %T", d))
	}
}

// labelMatcher matches a `label:` marker.
func labelMatcher(label string) matcher {
	re := regexp.MustCompile(`(?:^|[^\w:])` + regexp.QuoteMeta(label) + `:(?:[^:]|$)`)
	return re.MatchString
}

// occurrenceMatcher matches a syntactic occurrence of variable, ignoring
// pointer markers: last parameter `v)`, parameter `v,`, assignment `v=` or
// `v =`, declaration `v;` and indexing `v[`.
func occurrenceMatcher(variable string) matcher {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(variable) + `(?:\)|,|=| =|;|\[)`)
	return func(line string) bool {
		return re.MatchString(strings.ReplaceAll(line, "*", ""))
	}
}
