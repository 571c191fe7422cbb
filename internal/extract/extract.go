// Package extract runs the external graph-extraction tool on an annotated
// kernel and turns its DOT output into an attributed graph.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

// DefaultTimeout bounds a single tool run.
const DefaultTimeout = 2 * time.Minute

// waitDelay bounds how long a killed tool may hold its output pipes open.
const waitDelay = 5 * time.Second

// maxStderr caps how much of the tool's stderr ends up in an error.
const maxStderr = 2048

// Extractor invokes the graph-extraction tool.
type Extractor struct {
	argv    []string
	timeout time.Duration
}

// New prepares an Extractor for an invocation line such as
// "~/bin/AIR --hide_values --add_bb_id". A leading ~ in the executable path
// is expanded to the home directory. A zero timeout means DefaultTimeout.
func New(invocation string, timeout time.Duration) (*Extractor, error) {
	argv := strings.Fields(invocation)
	if len(argv) == 0 {
		return nil, pipelineerr.New(pipelineerr.Configuration, "new extractor", "empty tool invocation")
	}
	tool, err := ExpandHome(argv[0])
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, "new extractor", err)
	}
	argv[0] = tool
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{argv: argv, timeout: timeout}, nil
}

// Command returns the full argument vector for one kernel and source file.
func (x *Extractor) Command(kernel, srcPath string) []string {
	args := append([]string(nil), x.argv...)
	return append(args, "--top", kernel, "--src", srcPath)
}

// Extract runs the tool on srcPath and parses its standard output. A
// non-zero exit, a timeout and an unparseable document are all reported as
// extraction errors.
func (x *Extractor) Extract(ctx context.Context, kernel, srcPath string) (*attrgraph.Graph, error) {
	const op = "extract graph"
	logger := ctxlog.FromContext(ctx)

	runCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	argv := x.Command(kernel, srcPath)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	logger.Debug("Extraction tool finished.", "kernel", kernel, "src", srcPath, "duration", time.Since(start))
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, pipelineerr.New(pipelineerr.Extraction, op, "%s timed out after %s", filepath.Base(argv[0]), x.timeout)
		}
		return nil, pipelineerr.Wrap(pipelineerr.Extraction, op, fmt.Errorf("%s: %w: %s", filepath.Base(argv[0]), err, tail(stderr.String())))
	}

	g, err := ParseDOT(stdout.String())
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", kernel, err)
	}
	return g, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
