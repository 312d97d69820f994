// Package app wires the generator together: it loads the grid and the
// sample sheet, assembles the RNA-seq stages for every sample into one
// composer, and writes the master submission script.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/seqgrid/internal/ctxlog"
	"github.com/vk/seqgrid/internal/grid"
	"github.com/vk/seqgrid/internal/pipeline"
	"github.com/vk/seqgrid/internal/rnaseq"
	"github.com/vk/seqgrid/internal/samplesheet"
)

// App generates scripts for one run.
type App struct {
	out io.Writer
	cfg *Config
}

// NewApp returns an App writing human-facing output to out.
func NewApp(out io.Writer, cfg *Config) *App {
	return &App{out: out, cfg: cfg}
}

// Run performs the whole generation pass. Stage failures are logged and
// poison only their branch; Run returns the first error so the CLI can
// exit non-zero.
func (a *App) Run(ctx context.Context) error {
	logger := newLogger(a.cfg.LogLevel, a.cfg.LogFormat, os.Stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	g, err := grid.Load(a.cfg.GridPath)
	if err != nil {
		return fmt.Errorf("loading grid: %w", err)
	}
	logger.Info("grid loaded", "path", a.cfg.GridPath, "queue", g.Options.Queue)

	sheet, err := samplesheet.Load(a.cfg.SamplesPath)
	if err != nil {
		return fmt.Errorf("loading sample sheet: %w", err)
	}
	logger.Info("sample sheet loaded", "path", a.cfg.SamplesPath, "samples", len(sheet.Samples))

	if err := os.MkdirAll(a.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	composer := pipeline.New(pipeline.Settings{
		OutDir:     a.cfg.OutDir,
		LinkDir:    g.Options.LinkDir,
		TempRoot:   g.Options.TempDir,
		Queue:      g.Options.Queue,
		CondaEnv:   g.Options.CondaEnv,
		Modules:    g.Options.Modules,
		CopyInputs: g.Options.CopyInputs,
	})

	var firstErr error
	for _, s := range sheet.Samples {
		if err := rnaseq.Assemble(ctx, composer, g, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.cfg.DryRun {
		for _, line := range composer.Submits() {
			fmt.Fprintln(a.out, line)
		}
		return firstErr
	}

	master := filepath.Join(a.cfg.OutDir, "submit_all.sh")
	if err := composer.WriteMasterScript(master); err != nil {
		return err
	}
	logger.Info("master submission script written", "path", master, "jobs", len(composer.Submits()))
	fmt.Fprintln(a.out, master)
	return firstErr
}
