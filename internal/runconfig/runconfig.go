// Package runconfig loads the HCL run file that describes a dataset
// generation run: the extraction tool, the candidate store, the kernel
// catalogue, the feature variants and an optional progress sink.
package runconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/extract"
	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/pipelineerr"
	"github.com/vk/qorgraph/internal/sample"
)

const (
	DefaultToolFlags   = "--hide_values"
	DefaultWorkers     = 12
	DefaultToolTimeout = 2 * time.Minute
	DefaultVariant     = "baseline"
	defaultEvent       = "progress"
)

// fileRoot is the decoded shape of a run file.
type fileRoot struct {
	Tool               string         `hcl:"tool"`
	ToolFlags          *string        `hcl:"tool_flags,optional"`
	KernelsDir         string         `hcl:"kernels_dir,optional"`
	OutputDir          string         `hcl:"output_dir"`
	WorkDir            string         `hcl:"work_dir,optional"`
	Ledger             string         `hcl:"ledger,optional"`
	Workers            *int           `hcl:"workers,optional"`
	BidirectionalEdges *bool          `hcl:"bidirectional_edges,optional"`
	Compression        string         `hcl:"compression,optional"`
	ToolTimeout        string         `hcl:"tool_timeout,optional"`
	Variants           []string       `hcl:"variants,optional"`
	DocumentsDir       string         `hcl:"documents_dir,optional"`
	Store              storeBlock     `hcl:"store,block"`
	Kernels            []kernelBlock  `hcl:"kernel,block"`
	VariantDefs        []variantBlock `hcl:"variant,block"`
	Progress           *progressBlock `hcl:"progress,block"`
}

type storeBlock struct {
	Driver string `hcl:"driver"`
	DSN    string `hcl:"dsn"`
	Schema string `hcl:"schema,optional"`
}

type kernelBlock struct {
	Name    string `hcl:"name,label"`
	SpaceID int64  `hcl:"space_id"`
	Source  string `hcl:"source,optional"`
}

type variantBlock struct {
	Name    string   `hcl:"name,label"`
	Base    string   `hcl:"base,optional"`
	Toggles hcl.Body `hcl:",remain"`
}

type progressBlock struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

// Store locates the candidate database.
type Store struct {
	Driver string
	DSN    string
	Schema string
}

// Kernel is one catalogue entry with its source path resolved.
type Kernel struct {
	Name    string
	SpaceID int64
	Source  string
}

// VariantDef is a custom variant: a preset with some toggles overridden.
type VariantDef struct {
	Name    string
	Base    string
	Toggles featureconfig.Toggles
}

// Progress configures the socket.io progress sink.
type Progress struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// Config is a loaded run file. Relative paths are resolved against the
// directory of the file.
type Config struct {
	Path          string
	Tool          string
	ToolFlags     string
	OutputDir     string
	WorkDir       string
	LedgerPath    string
	Workers       int
	Bidirectional bool
	Compression   sample.Compression
	ToolTimeout   time.Duration
	Variants      []string
	DocumentsDir  string
	Store         Store
	// Kernels keeps file order; it is the order kernels are processed in.
	Kernels     []Kernel
	VariantDefs []VariantDef
	Progress    *Progress
}

// Load reads and decodes the run file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, "read run file", err)
	}
	return Parse(ctx, path, src)
}

// Parse decodes run file content. filename is used for diagnostics and to
// resolve relative paths.
func Parse(ctx context.Context, filename string, src []byte) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	const op = "load run file"

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, fmt.Errorf("failed to parse %s: %w", filename, diags))
	}

	evalCtx := newEvalContext()
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &root); diags.HasErrors() {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, fmt.Errorf("failed to decode %s: %w", filename, diags))
	}

	cfg, err := resolve(filename, &root, evalCtx)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, err)
	}
	logger.Debug("Run file loaded.", "path", filename, "kernels", len(cfg.Kernels),
		"variants", cfg.Variants, "custom_variants", len(cfg.VariantDefs))
	return cfg, nil
}

// newEvalContext exposes the process environment as env.<NAME>.
func newEvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(name) {
			continue
		}
		env[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func resolve(filename string, root *fileRoot, evalCtx *hcl.EvalContext) (*Config, error) {
	dir := filepath.Dir(filename)
	abs := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		p, err := extract.ExpandHome(p)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p), nil
		}
		return filepath.Join(dir, p), nil
	}

	cfg := &Config{
		Path:          filename,
		ToolFlags:     DefaultToolFlags,
		Workers:       DefaultWorkers,
		Bidirectional: true,
		ToolTimeout:   DefaultToolTimeout,
		Variants:      root.Variants,
		Store:         Store(root.Store),
	}

	var err error
	if strings.TrimSpace(root.Tool) == "" {
		return nil, fmt.Errorf("tool must not be empty")
	}
	if cfg.Tool, err = extract.ExpandHome(root.Tool); err != nil {
		return nil, err
	}
	if root.ToolFlags != nil {
		cfg.ToolFlags = strings.TrimSpace(*root.ToolFlags)
	}
	if root.Workers != nil {
		if *root.Workers < 1 {
			return nil, fmt.Errorf("workers must be positive, got %d", *root.Workers)
		}
		cfg.Workers = *root.Workers
	}
	if root.BidirectionalEdges != nil {
		cfg.Bidirectional = *root.BidirectionalEdges
	}
	if cfg.Compression, err = sample.ParseCompression(root.Compression); err != nil {
		return nil, err
	}
	if root.ToolTimeout != "" {
		if cfg.ToolTimeout, err = time.ParseDuration(root.ToolTimeout); err != nil {
			return nil, fmt.Errorf("invalid tool_timeout: %w", err)
		}
	}

	if cfg.OutputDir, err = abs(root.OutputDir); err != nil {
		return nil, err
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output_dir must not be empty")
	}
	if cfg.WorkDir, err = abs(root.WorkDir); err != nil {
		return nil, err
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.OutputDir, ".work")
	}
	if cfg.LedgerPath, err = abs(root.Ledger); err != nil {
		return nil, err
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(cfg.OutputDir, "ledger.sqlite")
	}
	if cfg.DocumentsDir, err = abs(root.DocumentsDir); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("store driver must be sqlite or mysql, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "sqlite" {
		if cfg.Store.DSN, err = abs(cfg.Store.DSN); err != nil {
			return nil, err
		}
	}

	kernelsDir, err := abs(root.KernelsDir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, kb := range root.Kernels {
		if seen[kb.Name] {
			return nil, fmt.Errorf("kernel %q is declared twice", kb.Name)
		}
		seen[kb.Name] = true

		src := kb.Source
		if src == "" {
			src = filepath.Join(kb.Name, kb.Name+".cpp")
		}
		if !filepath.IsAbs(src) && kernelsDir != "" {
			src = filepath.Join(kernelsDir, src)
		} else if src, err = abs(src); err != nil {
			return nil, err
		}
		cfg.Kernels = append(cfg.Kernels, Kernel{Name: kb.Name, SpaceID: kb.SpaceID, Source: src})
	}
	if len(cfg.Kernels) == 0 {
		return nil, fmt.Errorf("no kernel blocks")
	}

	for _, vb := range root.VariantDefs {
		def, err := resolveVariant(vb, evalCtx)
		if err != nil {
			return nil, err
		}
		cfg.VariantDefs = append(cfg.VariantDefs, *def)
	}

	if root.Progress != nil {
		p := &Progress{
			URL:       root.Progress.URL,
			Namespace: root.Progress.Namespace,
			Event:     root.Progress.Event,
		}
		if p.Namespace == "" {
			p.Namespace = "/"
		}
		if p.Event == "" {
			p.Event = defaultEvent
		}
		if root.Progress.Timeout != "" {
			if p.Timeout, err = time.ParseDuration(root.Progress.Timeout); err != nil {
				return nil, fmt.Errorf("invalid progress timeout: %w", err)
			}
		}
		cfg.Progress = p
	}
	return cfg, nil
}

// BaseInvocation is the tool command line variants add their flags to.
func (c *Config) BaseInvocation() string {
	return strings.TrimSpace(c.Tool + " " + c.ToolFlags)
}

// Kernel returns the catalogue entry called name.
func (c *Config) Kernel(name string) (Kernel, bool) {
	for _, k := range c.Kernels {
		if k.Name == name {
			return k, true
		}
	}
	return Kernel{}, false
}
