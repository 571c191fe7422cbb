package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/vk/qorgraph/internal/candidates"
	"github.com/vk/qorgraph/internal/ctxlog"
	"github.com/vk/qorgraph/internal/extract"
	"github.com/vk/qorgraph/internal/featureconfig"
	"github.com/vk/qorgraph/internal/ledger"
	"github.com/vk/qorgraph/internal/orchestrator"
	"github.com/vk/qorgraph/internal/progress"
	"github.com/vk/qorgraph/internal/runconfig"
	"github.com/vk/qorgraph/internal/sample"
)

// Run executes the main application logic based on the provided configuration.
func (app *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, app.logger)
	app.ctx = ctx
	logger := app.logger
	logger.Debug("App.Run method started.")
	started := time.Now()

	addr, err := app.healthCheckServer()
	if err != nil {
		return err
	}
	app.healthAddr = addr

	var rc *runconfig.Config
	if app.config.RunPath != "" {
		if rc, err = runconfig.Load(ctx, app.config.RunPath); err != nil {
			return fmt.Errorf("failed to load run file: %w", err)
		}
		if app.config.Workers > 0 {
			rc.Workers = app.config.Workers
		}
	}

	if app.config.WriteConfigs != "" {
		if err := app.writeConfigs(ctx, rc); err != nil {
			return err
		}
		if rc == nil {
			return nil
		}
	}

	variants, err := rc.VariantConfigs(app.config.Variants)
	if err != nil {
		return fmt.Errorf("failed to resolve variants: %w", err)
	}

	src, err := candidates.Open(ctx, rc.Store.Driver, rc.Store.DSN, rc.Store.Schema)
	if err != nil {
		return err
	}
	defer src.Close()

	kernels := make([]orchestrator.Kernel, len(rc.Kernels))
	for i, k := range rc.Kernels {
		kernels[i] = orchestrator.Kernel{Name: k.Name, SpaceID: k.SpaceID, Source: k.Source}
	}

	if app.config.List {
		return app.list(ctx, src, kernels)
	}

	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	led, err := ledger.Open(rc.LedgerPath, app.runID)
	if err != nil {
		return err
	}
	defer led.Close()

	reporter := progress.Multi{progress.Log{}, app.tracker}
	if rc.Progress != nil {
		sio, err := progress.DialSocketIO(ctx, progress.SocketIOConfig{
			URL:       rc.Progress.URL,
			Namespace: rc.Progress.Namespace,
			Event:     rc.Progress.Event,
			Timeout:   rc.Progress.Timeout,
		})
		if err != nil {
			logger.Warn("Progress server unavailable, continuing without it.", "error", err)
		} else {
			defer sio.Close()
			reporter = append(reporter, sio)
		}
	}

	logger.Info("🚀 Starting dataset generation.", "variants", len(variants), "kernels", len(kernels), "workers", rc.Workers)
	for _, cfg := range variants {
		if err := app.runVariant(ctx, rc, cfg, src, led, reporter, kernels); err != nil {
			return err
		}
	}

	outcomes, err := led.Summary()
	if err != nil {
		return err
	}
	logger.Info("🏁 Dataset generation finished.",
		"generated", outcomes[ledger.OK], "failed", outcomes[ledger.Failed], "skipped", outcomes[ledger.Skipped],
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func (app *App) runVariant(
	ctx context.Context,
	rc *runconfig.Config,
	cfg *featureconfig.Config,
	src candidates.Source,
	led *ledger.Ledger,
	reporter progress.Reporter,
	kernels []orchestrator.Kernel,
) error {
	ctx = ctxlog.With(ctx, "variant", cfg.Name)
	logger := ctxlog.FromContext(ctx)

	x, err := extract.New(cfg.Invocation, rc.ToolTimeout)
	if err != nil {
		return err
	}
	store, err := sample.OpenStore(filepath.Join(rc.OutputDir, cfg.Name), rc.Compression)
	if err != nil {
		return err
	}
	if _, err := cfg.SaveDocument(filepath.Join(rc.OutputDir, "configs")); err != nil {
		return err
	}

	var start int64
	if app.config.Append {
		if start, err = store.NextIndex(); err != nil {
			return err
		}
		logger.Info("Appending to existing dataset.", "start_index", start)
	}

	o, err := orchestrator.New(orchestrator.Options{
		Variant:       cfg.Name,
		Config:        cfg,
		Extractor:     x,
		Source:        src,
		Store:         store,
		WorkDir:       rc.WorkDir,
		Workers:       rc.Workers,
		Bidirectional: rc.Bidirectional,
		StartIndex:    start,
		Resume:        app.config.Resume,
		RunID:         app.runID,
		Ledger:        led,
		Reporter:      reporter,
	})
	if err != nil {
		return err
	}

	if app.config.Probe {
		results, err := o.Probe(ctx, kernels)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintf(app.outW, "%s\t%s\tnodes=%d edges=%d blocks=%d unmatched=%d\n",
				cfg.Name, r.Kernel, len(r.Graph.Nodes), len(r.Graph.Edges), r.CFG.NumBlocks, len(r.Unmatched))
		}
		return nil
	}

	sum, err := o.Run(ctx, kernels)
	if err != nil {
		return fmt.Errorf("variant %s: %w", cfg.Name, err)
	}
	for _, f := range orchestrator.Failures(sum.Failures) {
		logger.Debug("Failure detail.", "kernel", f.Kernel, "candidate", f.Position, "index", f.Index, "error", f.Err)
	}
	return nil
}

func (app *App) list(ctx context.Context, src candidates.Source, kernels []orchestrator.Kernel) error {
	counts, err := orchestrator.Inventory(ctx, src, kernels)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KERNEL\tSPACE\tTOTAL\tELIGIBLE")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Kernel, c.SpaceID, c.Total, c.Eligible)
	}
	return tw.Flush()
}

// writeConfigs writes the document of every preset, and of the run file's
// custom variants when one is loaded.
func (app *App) writeConfigs(ctx context.Context, rc *runconfig.Config) error {
	logger := ctxlog.FromContext(ctx)
	dir := app.config.WriteConfigs

	base := featureconfig.DefaultInvocation
	var configs []*featureconfig.Config
	if rc != nil {
		base = rc.BaseInvocation()
	}
	for _, p := range featureconfig.Presets() {
		cfg, err := p.Build(base)
		if err != nil {
			return err
		}
		configs = append(configs, cfg)
	}
	if rc != nil {
		for _, def := range rc.VariantDefs {
			cfg, err := featureconfig.Build(def.Name, base, def.Toggles)
			if err != nil {
				return err
			}
			configs = append(configs, cfg)
		}
	}

	for _, cfg := range configs {
		path, err := cfg.SaveDocument(dir)
		if err != nil {
			return err
		}
		logger.Debug("Config document written.", "variant", cfg.Name, "path", path)
	}
	logger.Info("Config documents written.", "count", len(configs), "dir", dir)
	return nil
}
