// Package annotate applies parsed HLS directives to a kernel's source text,
// producing the pragma-annotated variant that is fed to the graph-extraction
// tool.
//
// Application state lives in the Result of a single pass, so one parsed
// directive list can annotate many files concurrently.
package annotate

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/directive"
)

var (
	loopKeywordRegex = regexp.MustCompile(`\b(for|while)\b`)
	labelMarkerRegex = regexp.MustCompile(`\w+:(:?)`)
	indentRegex      = regexp.MustCompile(`^[ \t]*`)
)

// Application records what one directive did during a pass.
type Application struct {
	Directive directive.Directive
	// Applied is set once the directive matched a line.
	Applied bool
	// Line is the 1-based source line the directive matched, or 0.
	Line int
	// AlreadyPresent is set when the matching line was already followed by
	// the directive's pragma, in which case nothing was inserted.
	AlreadyPresent bool
	// Inert is set for directives that can never insert anything, such as
	// an unroll by a factor of 1.
	Inert bool
}

// Result is the outcome of one annotation pass over one source file.
type Result struct {
	Source       string
	Inserted     int
	Applications []Application
}

// Unmatched returns the directives that never matched a source line. These
// are usually misconfigured experiments: a loop label or variable name that
// does not exist in the kernel.
func (r *Result) Unmatched() []directive.Directive {
	var out []directive.Directive
	for _, a := range r.Applications {
		if !a.Applied && !a.Inert {
			out = append(out, a.Directive)
		}
	}
	return out
}

// Annotate applies dirs, in order, to source. Lines are only considered once
// the kernel name has been seen. Every directive contributes at most one
// pragma line, placed directly after the first line it matches and indented
// like that line. Label markers are removed from loop lines.
func Annotate(kernel string, dirs []directive.Directive, source string) *Result {
	lines, trailingNewline := splitLines(source)

	res := &Result{Applications: make([]Application, len(dirs))}
	matchers := make([]matcher, len(dirs))
	for i, d := range dirs {
		res.Applications[i].Directive = d
		matchers[i] = newMatcher(d)
		res.Applications[i].Inert = matchers[i] == nil
	}

	kernelRegex := regexp.MustCompile(`\b` + regexp.QuoteMeta(kernel) + `\b`)
	out := make([]string, 0, len(lines)+len(dirs))
	reachedKernel := false

	for i, line := range lines {
		if !reachedKernel && kernelRegex.MatchString(line) {
			reachedKernel = true
		}
		if !reachedKernel {
			out = append(out, line)
			continue
		}

		indent := indentRegex.FindString(line)
		next := i + 1
		var pragmas []string
		for j, match := range matchers {
			app := &res.Applications[j]
			if match == nil || app.Applied || !match(line) {
				continue
			}
			app.Applied = true
			app.Line = i + 1

			pragma := dirs[j].Pragma()
			if next < len(lines) && strings.TrimSpace(lines[next]) == pragma {
				app.AlreadyPresent = true
				next++
				continue
			}
			pragmas = append(pragmas, indent+pragma)
		}

		if loopKeywordRegex.MatchString(line) {
			line = stripLabels(line)
		}
		out = append(out, line)
		out = append(out, pragmas...)
		res.Inserted += len(pragmas)
	}

	res.Source = strings.Join(out, "\n")
	if trailingNewline {
		res.Source += "\n"
	}
	return res
}

// AnnotateFile reads srcPath, annotates it and writes the result to dstPath.
// Directives that matched nothing are logged as warnings.
func AnnotateFile(ctx context.Context, kernel string, dirs []directive.Directive, srcPath, dstPath string) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel source %s: %w", srcPath, err)
	}

	res := Annotate(kernel, dirs, string(raw))
	for _, d := range res.Unmatched() {
		logger.Warn("Directive did not match any source line.", "kernel", kernel, "directive", d.String())
	}

	if err := os.WriteFile(dstPath, []byte(res.Source), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write annotated source %s: %w", dstPath, err)
	}
	logger.Debug("Kernel annotated.", "kernel", kernel, "inserted", res.Inserted, "dst", dstPath)
	return res, nil
}

func splitLines(source string) ([]string, bool) {
	if source == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(source, "\n")
	return strings.Split(strings.TrimSuffix(source, "\n"), "\n"), trailing
}

// stripLabels removes `label:` markers, leaving `::` scope operators alone.
func stripLabels(line string) string {
	return labelMarkerRegex.ReplaceAllStringFunc(line, func(m string) string {
		if strings.HasSuffix(m, "::") {
			return m
		}
		return ""
	})
}
