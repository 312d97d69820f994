// Package grid loads pipeline definition files written in HCL.
//
// A grid is one .hcl file or a directory of them. It names the run-wide
// scheduler options (queue, conda env, modules, temp and link
// directories), the third-party tool executables, the genome reference
// files, and optional per-stage resource overrides. A `variables` block
// defines values the rest of the file can reference as var.<name>, so
// reference paths can share a common root:
//
//	variables {
//	  refdir = "/data/refs/hg38"
//	}
//
//	reference "star_index" {
//	  path = "${var.refdir}/star"
//	}
package grid

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/seqgrid/internal/fsutil"
)

// Options are the run-wide settings from the `pipeline` block.
type Options struct {
	Queue          string
	CondaEnv       string
	Modules        []string
	LinkDir        string
	TempDir        string
	CopyInputs     bool
	StrandSpecific bool

	// Webpath is the first line of the configured webpath_file, the
	// base URL under which linked files are reachable. Empty when no
	// webpath_file was configured.
	Webpath string
}

// stageOverride carries resource overrides from a `stage` block.
type stageOverride struct {
	threads  int
	memoryGB int
	enabled  *bool
}

// Grid is a loaded pipeline definition.
type Grid struct {
	Options Options

	tools  map[string]string
	refs   map[string]string
	stages map[string]stageOverride
}

// Load reads a grid from path, which may be a single .hcl file or a
// directory searched recursively for .hcl files.
func Load(path string) (*Grid, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("grid path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scanning grid directory: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .hcl files under %s", path)
		}
	}

	parser := hclparse.NewParser()
	var bodies []hcl.Body
	for _, f := range files {
		hclFile, diags := parser.ParseHCLFile(f)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", f, diags)
		}
		bodies = append(bodies, hclFile.Body)
	}

	evalCtx, err := buildEvalContext(bodies)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		tools:  make(map[string]string),
		refs:   make(map[string]string),
		stages: make(map[string]stageOverride),
	}

	seenPipeline := false
	for i, body := range bodies {
		var fs fileSchema
		if diags := gohcl.DecodeBody(body, evalCtx, &fs); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", files[i], diags)
		}

		if fs.Pipeline != nil {
			if seenPipeline {
				return nil, fmt.Errorf("%s: duplicate pipeline block", files[i])
			}
			seenPipeline = true
			g.Options = Options{
				Queue:          fs.Pipeline.Queue,
				CondaEnv:       fs.Pipeline.CondaEnv,
				Modules:        fs.Pipeline.Modules,
				LinkDir:        fs.Pipeline.LinkDir,
				TempDir:        fs.Pipeline.TempDir,
				CopyInputs:     fs.Pipeline.CopyInputs,
				StrandSpecific: fs.Pipeline.StrandSpecific,
			}
			if fs.Pipeline.WebpathFile != "" {
				webpath, err := readFirstLine(fs.Pipeline.WebpathFile)
				if err != nil {
					return nil, fmt.Errorf("webpath_file: %w", err)
				}
				g.Options.Webpath = webpath
			}
		}

		for _, t := range fs.Tools {
			if _, ok := g.tools[t.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate tool %q", files[i], t.Name)
			}
			g.tools[t.Name] = t.Path
		}
		for _, r := range fs.References {
			if _, ok := g.refs[r.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate reference %q", files[i], r.Name)
			}
			g.refs[r.Name] = r.Path
		}
		for _, s := range fs.Stages {
			if _, ok := g.stages[s.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate stage %q", files[i], s.Name)
			}
			g.stages[s.Name] = stageOverride{
				threads:  s.Threads,
				memoryGB: s.MemoryGB,
				enabled:  s.Enabled,
			}
		}
	}

	return g, nil
}

// buildEvalContext collects the attributes of all `variables` blocks
// into a var.<name> evaluation context for the main decode pass.
func buildEvalContext(bodies []hcl.Body) (*hcl.EvalContext, error) {
	varSchema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "variables"}},
	}

	vars := make(map[string]cty.Value)
	for _, body := range bodies {
		content, _, diags := body.PartialContent(varSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("reading variables: %w", diags)
		}
		for _, block := range content.Blocks {
			attrs, diags := block.Body.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("reading variables: %w", diags)
			}
			for name, attr := range attrs {
				val, diags := attr.Expr.Value(nil)
				if diags.HasErrors() {
					return nil, fmt.Errorf("evaluating variable %q: %w", name, diags)
				}
				vars[name] = val
			}
		}
	}

	if len(vars) == 0 {
		return nil, nil
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)},
	}, nil
}

// Tool returns the configured executable path for a tool, or the tool
// name itself so unconfigured tools resolve on $PATH.
func (g *Grid) Tool(name string) string {
	if p, ok := g.tools[name]; ok {
		return p
	}
	return name
}

// Reference returns the configured path for a reference file. Every
// reference a pipeline uses must be configured.
func (g *Grid) Reference(name string) (string, error) {
	p, ok := g.refs[name]
	if !ok {
		return "", fmt.Errorf("reference %q not configured in grid", name)
	}
	return p, nil
}

// StageResources returns the thread and memory requests for a stage,
// falling back to the pipeline's defaults where no override is set.
func (g *Grid) StageResources(name string, defThreads, defMemoryGB int) (threads, memoryGB int) {
	threads, memoryGB = defThreads, defMemoryGB
	if o, ok := g.stages[name]; ok {
		if o.threads > 0 {
			threads = o.threads
		}
		if o.memoryGB > 0 {
			memoryGB = o.memoryGB
		}
	}
	return threads, memoryGB
}

// StageEnabled reports whether a stage should be generated. Stages are
// enabled unless explicitly disabled.
func (g *Grid) StageEnabled(name string) bool {
	if o, ok := g.stages[name]; ok && o.enabled != nil {
		return *o.enabled
	}
	return true
}

// readFirstLine returns the first line of a file, trimmed.
func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s is empty", path)
}
