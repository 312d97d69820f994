// Package pipeline composes a sequence of jobs into a
// dependency-respecting execution plan and writes the master submission
// script.
//
// Stages are added in construction order; each stage receives typed
// handles to the stages it depends on, so a dependency can only name a
// stage that already exists. The composer never executes anything: it
// records one qsub line per finalized stage and leaves ordering to the
// scheduler's -hold_jid mechanism.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/seqgrid/internal/ctxlog"
	"github.com/vk/seqgrid/internal/dag"
	"github.com/vk/seqgrid/internal/job"
)

// Handle identifies a composed stage. Downstream stages receive the
// handles of their dependencies and read recorded output paths from
// them.
type Handle struct {
	name    string
	outputs []string
	failed  bool
}

// Name returns the scheduler job name of the stage.
func (h *Handle) Name() string { return h.name }

// Outputs returns the durable output paths the stage declared.
func (h *Handle) Outputs() []string { return h.outputs }

// Failed reports whether the stage's build failed or was skipped
// because a dependency failed.
func (h *Handle) Failed() bool { return h.failed }

// Output returns the first declared output whose base name has the
// given suffix. A miss is a DependencyError: the caller asked for an
// output its dependency never declared.
func (h *Handle) Output(suffix string) (string, error) {
	for _, o := range h.outputs {
		if strings.HasSuffix(filepath.Base(o), suffix) {
			return o, nil
		}
	}
	return "", &job.DependencyError{Stage: h.name, Missing: suffix}
}

// Settings are the run-wide options applied to every composed job.
type Settings struct {
	OutDir     string
	LinkDir    string
	TempRoot   string
	Queue      string
	CondaEnv   string
	Modules    []string
	CopyInputs bool
}

// StageSpec describes one stage to compose.
type StageSpec struct {
	Sample   string
	Suffix   string
	Threads  int
	MemoryGB int

	// OutSubdir is the stage output directory under the run's OutDir;
	// defaults to Suffix.
	OutSubdir string

	// Build appends the stage's commands to the job and returns the
	// durable output paths it declared. deps holds the handles passed
	// to AddStage, in order.
	Build func(j *job.Job, deps []*Handle) ([]string, error)
}

type record struct {
	handle *Handle
	submit string
}

// Composer accumulates finalized stages for one run.
type Composer struct {
	settings Settings
	graph    *dag.Graph
	records  []*record
	names    map[string]bool
}

// New returns a Composer for one run.
func New(settings Settings) *Composer {
	return &Composer{
		settings: settings,
		graph:    dag.New(),
		names:    make(map[string]bool),
	}
}

// AddStage constructs the stage's job, runs its Build callback,
// finalizes the job and records its submission line. The returned
// handle carries the stage's declared outputs for downstream stages.
//
// A failed dependency poisons the branch: the stage is skipped without
// a submission line and its handle is marked failed, while stages on
// independent branches are unaffected. A Build error likewise marks the
// handle failed and discards the partially written script; the error is
// returned so the caller can log it.
func (c *Composer) AddStage(ctx context.Context, spec StageSpec, deps ...*Handle) (*Handle, error) {
	log := ctxlog.FromContext(ctx)

	name := spec.Sample + "_" + spec.Suffix
	h := &Handle{name: name}
	if c.names[name] {
		h.failed = true
		return h, &job.ConfigError{Msg: fmt.Sprintf("duplicate stage name %q", name)}
	}
	c.names[name] = true
	c.graph.AddNode(name)

	var waitFor []string
	for _, dep := range deps {
		if err := c.graph.AddEdge(dep.name, name); err != nil {
			h.failed = true
			return h, &job.DependencyError{Stage: name, Missing: dep.name}
		}
		waitFor = append(waitFor, dep.name)
	}

	for _, dep := range deps {
		if dep.failed {
			log.Warn("skipping stage, dependency failed", "stage", name, "dependency", dep.name)
			h.failed = true
			return h, nil
		}
	}

	// Stage output directories are sample-scoped so that tools with
	// fixed output names never collide across samples in one run.
	subdir := spec.OutSubdir
	if subdir == "" {
		subdir = spec.Suffix
	}

	j, err := job.New(job.Config{
		Sample:     spec.Sample,
		Suffix:     spec.Suffix,
		OutDir:     filepath.Join(c.settings.OutDir, spec.Sample, subdir),
		Threads:    spec.Threads,
		MemoryGB:   spec.MemoryGB,
		TempRoot:   c.settings.TempRoot,
		Queue:      c.settings.Queue,
		CondaEnv:   c.settings.CondaEnv,
		Modules:    c.settings.Modules,
		LinkDir:    c.settings.LinkDir,
		WaitFor:    waitFor,
		CopyInputs: c.settings.CopyInputs,
	})
	if err != nil {
		h.failed = true
		return h, fmt.Errorf("stage %s: %w", name, err)
	}

	outputs, err := spec.Build(j, deps)
	if err != nil {
		h.failed = true
		if derr := j.Discard(); derr != nil {
			log.Warn("discarding failed stage script", "stage", name, "error", derr)
		}
		return h, fmt.Errorf("stage %s: %w", name, err)
	}

	if err := j.Close(); err != nil {
		h.failed = true
		return h, fmt.Errorf("stage %s: %w", name, err)
	}

	h.outputs = outputs
	if !j.Scratch() {
		c.records = append(c.records, &record{handle: h, submit: j.SubmitCommand()})
	}
	log.Debug("stage composed", "stage", name, "script", j.ScriptPath(), "outputs", len(outputs))
	return h, nil
}

// Submits returns the recorded submission lines in construction order.
func (c *Composer) Submits() []string {
	lines := make([]string, 0, len(c.records))
	for _, r := range c.records {
		lines = append(lines, r.submit)
	}
	return lines
}

// WriteMasterScript writes the submission script: one qsub line per
// finalized stage, in construction order, so every -hold_jid name is
// textually defined before it is referenced.
func (c *Composer) WriteMasterScript(path string) error {
	if err := c.graph.DetectCycles(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n\n")
	for _, line := range c.Submits() {
		b.WriteString(line + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return fmt.Errorf("writing master script: %w", err)
	}
	return nil
}
