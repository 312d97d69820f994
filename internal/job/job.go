// Package job models one scheduler-submittable unit of work: an SGE
// shell script with a resource header, a working (temp) directory, a
// durable output directory, and declared input/output/temporary file
// roles that drive the script's staging and cleanup blocks.
//
// A Job is created (directories made, header written), mutated by
// appending command fragments and declaring file roles, then closed
// exactly once. Close writes the fixed finalize sequence: publish
// outputs, delete discardable temporaries, remove the temp directory
// when it is distinct from the output directory, and materialize
// deferred softlinks. The delete blocks and the temp directory removal
// are chained on the publish block with && so nothing is removed unless
// the publish rsync exited zero.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vk/seqgrid/internal/layout"
)

// Queues accepted by the scheduler header. An empty queue falls through
// to the scheduler's default.
var queues = map[string]bool{
	"short": true,
	"long":  true,
}

// Config describes one job. Sample and Suffix together form the job
// name; OutDir is the durable output directory for the stage.
type Config struct {
	Sample   string
	Suffix   string
	OutDir   string
	Threads  int
	MemoryGB int

	// TempRoot, when set, places the working directory at
	// TempRoot/<jobname>. When empty the job works directly in OutDir
	// and the temp/output file roles collapse.
	TempRoot string

	Queue    string
	CondaEnv string
	Modules  []string

	// LinkDir is where deferred softlinks are created.
	LinkDir string

	// WaitFor lists job names this job's submission must hold on.
	WaitFor []string

	// CopyInputs makes InheritDefault inputs staged into the temp
	// directory.
	CopyInputs bool
}

// Job accumulates a shell script for one scheduler submission.
type Job struct {
	name    string
	sample  string
	outDir  string
	tempDir string

	threads  int
	memoryGB int
	waitFor  []string
	linkDir  string

	script     *os.File
	scriptPath string
	scratch    bool

	copyInputs   bool
	stagedInputs []string
	tempFiles    []string
	outputs      []string
	links        []softlink

	closed bool
	err    error
}

// New validates the configuration, creates the output, logs/ and sh/
// directories, opens the script file and writes the scheduler header.
//
// If a script with the same name already exists on disk, the job
// transparently redirects to a disposable scratch script and removes it
// at Close. This lets callers rebuild a pipeline purely to recover
// output paths without clobbering previously submitted scripts.
func New(cfg Config) (*Job, error) {
	if cfg.Threads <= 0 {
		return nil, configErrorf("threads must be a positive integer, got %d", cfg.Threads)
	}
	if cfg.MemoryGB <= 0 {
		return nil, configErrorf("memory must be a positive integer number of GB, got %d", cfg.MemoryGB)
	}
	if cfg.Queue != "" && !queues[cfg.Queue] {
		return nil, configErrorf("unknown queue %q", cfg.Queue)
	}
	if cfg.Sample == "" || cfg.Suffix == "" {
		return nil, configErrorf("sample and suffix are required")
	}

	j := &Job{
		name:       cfg.Sample + "_" + cfg.Suffix,
		sample:     cfg.Sample,
		outDir:     cfg.OutDir,
		threads:    cfg.Threads,
		memoryGB:   cfg.MemoryGB,
		waitFor:    append([]string(nil), cfg.WaitFor...),
		linkDir:    cfg.LinkDir,
		copyInputs: cfg.CopyInputs,
	}

	j.tempDir = cfg.OutDir
	if cfg.TempRoot != "" {
		root, err := filepath.Abs(cfg.TempRoot)
		if err != nil {
			return nil, fmt.Errorf("resolving temp root: %w", err)
		}
		j.tempDir = filepath.Join(root, j.name)
	}

	for _, dir := range []string{cfg.OutDir, layout.LogDir(cfg.OutDir), layout.ScriptDir(cfg.OutDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if cfg.LinkDir != "" {
		if err := os.MkdirAll(cfg.LinkDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", cfg.LinkDir, err)
		}
	}

	j.scriptPath = layout.ScriptPath(cfg.OutDir, j.name)
	if _, err := os.Stat(j.scriptPath); err == nil {
		// An existing script means a prior run already submitted this
		// stage; write to a throwaway scratch file instead.
		j.scriptPath = filepath.Join(os.TempDir(), fmt.Sprintf("seqgrid-%s-%s.sh", j.name, uuid.NewString()))
		j.scratch = true
	}

	f, err := os.Create(j.scriptPath)
	if err != nil {
		return nil, fmt.Errorf("creating script %s: %w", j.scriptPath, err)
	}
	j.script = f

	j.writeHeader(cfg)
	return j, nil
}

// writeHeader emits the shebang, SGE directives, module loads, conda
// activation and the cd into the working directory.
func (j *Job) writeHeader(cfg Config) {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n\n")
	if cfg.Queue != "" {
		fmt.Fprintf(&b, "#$ -q %s\n", cfg.Queue)
	}
	fmt.Fprintf(&b, "#$ -N %s\n", j.name)
	fmt.Fprintf(&b, "#$ -l h_vmem=%s\n", memPerThread(j.memoryGB, j.threads))
	fmt.Fprintf(&b, "#$ -pe smp %d\n", j.threads)
	b.WriteString("#$ -S /bin/bash\n")
	fmt.Fprintf(&b, "#$ -o %s\n", layout.StdoutPath(j.outDir, j.name))
	fmt.Fprintf(&b, "#$ -e %s\n\n", layout.StderrPath(j.outDir, j.name))
	for _, m := range cfg.Modules {
		fmt.Fprintf(&b, "module load %s\n\n", m)
	}
	if cfg.CondaEnv != "" {
		fmt.Fprintf(&b, "source activate %s\n\n", cfg.CondaEnv)
	}
	fmt.Fprintf(&b, "mkdir -p %s\n", j.tempDir)
	fmt.Fprintf(&b, "cd %s\n\n", j.tempDir)
	j.write(b.String())
}

// memPerThread formats the per-thread memory request, e.g. 8 GB over 4
// threads yields "2".
func memPerThread(memoryGB, threads int) string {
	return strconv.FormatFloat(float64(memoryGB)/float64(threads), 'g', -1, 64)
}

// Name returns the scheduler job name (sample + "_" + suffix).
func (j *Job) Name() string { return j.name }

// Sample returns the sample identifier the job was created for.
func (j *Job) Sample() string { return j.sample }

// OutDir returns the durable output directory.
func (j *Job) OutDir() string { return j.outDir }

// TempDir returns the working directory the script executes in.
func (j *Job) TempDir() string { return j.tempDir }

// Threads returns the requested thread count, for tool wrappers that
// pass it through to multi-threaded programs.
func (j *Job) Threads() int { return j.threads }

// ScriptPath returns the path of the script being written. For a
// redirected job this is the scratch path.
func (j *Job) ScriptPath() string { return j.scriptPath }

// Scratch reports whether the job was redirected to a scratch script
// because the real script path already existed.
func (j *Job) Scratch() bool { return j.scratch }

// TempPath returns the in-working-directory path for a file.
func (j *Job) TempPath(path string) string {
	return filepath.Join(j.tempDir, filepath.Base(path))
}

// OutPath returns the durable path for a file published from the
// working directory.
func (j *Job) OutPath(path string) string {
	return filepath.Join(j.outDir, filepath.Base(path))
}

// Input declares an input file and returns the path the job's commands
// should read it from. Staged inputs resolve to their future temp
// directory path; referenced inputs resolve to their absolute original
// path. Copying is not written here: StageInputs batches one rsync for
// all staged inputs.
func (j *Job) Input(path string, mode StageMode) string {
	if mode.resolve(j.copyInputs) == CopyToTemp {
		j.stagedInputs = append(j.stagedInputs, path)
		return j.TempPath(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		j.setErr(fmt.Errorf("resolving input %s: %w", path, err))
		return path
	}
	return abs
}

// StageInputs writes one batched rsync copying every staged input into
// the working directory, and registers each staged copy as a temporary
// so it is cleaned up at Close unless re-published. Copies that would
// land on themselves (working directory == source directory) are
// skipped.
func (j *Job) StageInputs() {
	var srcs []string
	for _, p := range j.stagedInputs {
		abs, err := filepath.Abs(p)
		if err != nil {
			j.setErr(fmt.Errorf("resolving input %s: %w", p, err))
			continue
		}
		if abs == j.TempPath(p) {
			continue
		}
		srcs = append(srcs, abs)
	}
	if len(srcs) == 0 {
		return
	}
	j.write(rsyncBlock(srcs, j.tempDir) + "\n\n")
	for _, p := range srcs {
		j.tempFiles = append(j.tempFiles, j.TempPath(p))
	}
}

// Temp registers a discardable temporary file and returns the path
// unchanged.
func (j *Job) Temp(path string) string {
	j.tempFiles = append(j.tempFiles, path)
	return path
}

// TempAndPublish registers a file that lives in the working directory
// but must also be published; it is copied to the output directory at
// Close and never deleted. Returns the durable output path.
func (j *Job) TempAndPublish(path string) string {
	j.tempFiles = append(j.tempFiles, path)
	return j.Output(path)
}

// Output registers a file for publication to the output directory at
// Close and returns its durable path.
func (j *Job) Output(path string) string {
	j.outputs = append(j.outputs, path)
	return j.OutPath(path)
}

// Run appends one command fragment to the script body.
func (j *Job) Run(fragment string) {
	j.write(fragment + "\n\n")
}

// RunBackground appends a command fragment that runs concurrently with
// subsequently appended background fragments. The caller must append a
// WaitBarrier before any step consuming this fragment's output.
func (j *Job) RunBackground(fragment string) {
	j.write(fragment + " &\n\n")
}

// WaitBarrier blocks the script until all backgrounded fragments have
// finished.
func (j *Job) WaitBarrier() {
	j.write("wait\n\n")
}

// SubmitCommand returns the qsub line for this job, holding on the
// job's dependency names when there are any.
func (j *Job) SubmitCommand() string {
	if len(j.waitFor) > 0 {
		return fmt.Sprintf("qsub -hold_jid %s %s", strings.Join(j.waitFor, ","), j.scriptPath)
	}
	return "qsub " + j.scriptPath
}

// WaitFor returns the job names this job's submission holds on.
func (j *Job) WaitFor() []string {
	return append([]string(nil), j.waitFor...)
}

// Close finalizes the script in the fixed order: publish outputs,
// delete discardable temporaries, remove the working directory when
// distinct from the output directory, materialize softlinks. The whole
// destructive tail is one && chain on the publish block, so a failed
// publish leaves the working directory and everything in it intact. A
// redirected scratch script is removed afterwards. Close is a no-op on
// a job that was already closed.
func (j *Job) Close() error {
	if j.closed {
		return j.err
	}
	j.closed = true

	var blocks []string
	if len(j.outputs) > 0 && j.tempDir != j.outDir {
		blocks = append(blocks, rsyncBlock(j.outputs, j.outDir))
	}
	if temps := j.deletableTemps(); len(temps) > 0 {
		blocks = append(blocks, "rm -r \\\n\t"+strings.Join(temps, " \\\n\t"))
	}
	if j.tempDir != j.outDir {
		blocks = append(blocks, "rm -r "+j.tempDir)
	}
	if len(blocks) > 0 {
		j.write(strings.Join(blocks, " \\\n&& ") + "\n\n")
	}

	j.writeSoftlinks()

	if cerr := j.script.Close(); cerr != nil {
		j.setErr(fmt.Errorf("closing script: %w", cerr))
	}
	if j.scratch {
		if rerr := os.Remove(j.scriptPath); rerr != nil {
			j.setErr(fmt.Errorf("removing scratch script: %w", rerr))
		}
	}
	return j.err
}

// Discard abandons a partially written job: the script file is closed
// and removed, and nothing is submitted. Used when a stage build fails
// after the job was constructed.
func (j *Job) Discard() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.script.Close(); err != nil {
		return fmt.Errorf("closing script: %w", err)
	}
	return os.Remove(j.scriptPath)
}

// deletableTemps returns the temporaries to delete at Close. When the
// working directory is the output directory, any temporary that is also
// a published output is excluded: deleting it would destroy the only
// copy of the durable result.
func (j *Job) deletableTemps() []string {
	if j.tempDir != j.outDir {
		return j.tempFiles
	}
	published := make(map[string]bool, len(j.outputs))
	for _, o := range j.outputs {
		published[o] = true
	}
	var keep []string
	for _, t := range j.tempFiles {
		if !published[t] {
			keep = append(keep, t)
		}
	}
	return keep
}

// rsyncBlock formats one batched copy of srcs into dst, one path per
// continuation line.
func rsyncBlock(srcs []string, dst string) string {
	return "rsync -avz \\\n\t" + strings.Join(srcs, " \\\n\t") + " \\\n\t" + dst
}

// write appends to the script, remembering the first error. The sticky
// error is surfaced by Close.
func (j *Job) write(s string) {
	if j.err != nil {
		return
	}
	if _, err := j.script.WriteString(s); err != nil {
		j.err = fmt.Errorf("writing script %s: %w", j.scriptPath, err)
	}
}

func (j *Job) setErr(err error) {
	if j.err == nil {
		j.err = err
	}
}
