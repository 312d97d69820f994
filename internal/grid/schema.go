package grid

import "github.com/hashicorp/hcl/v2"

// pipelineBlock is the run-wide `pipeline` block of a grid file.
type pipelineBlock struct {
	Queue       string   `hcl:"queue,optional"`
	CondaEnv    string   `hcl:"conda_env,optional"`
	Modules     []string `hcl:"modules,optional"`
	LinkDir     string   `hcl:"linkdir,optional"`
	WebpathFile string   `hcl:"webpath_file,optional"`
	TempDir     string   `hcl:"tempdir,optional"`
	CopyInputs  bool     `hcl:"copy_inputs,optional"`

	// StrandSpecific says whether the library prep preserved strand;
	// it steers metrics and counting flags.
	StrandSpecific bool `hcl:"strand_specific,optional"`
}

// toolBlock maps a tool name to the executable path substituted into
// command fragments. Tools are opaque strings to the generator.
type toolBlock struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// referenceBlock maps a reference name (star_index, gene_gtf, ...) to
// its on-disk path.
type referenceBlock struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// stageBlock overrides per-stage resource requests and can disable an
// optional stage.
type stageBlock struct {
	Name     string `hcl:"name,label"`
	Threads  int    `hcl:"threads,optional"`
	MemoryGB int    `hcl:"memory_gb,optional"`
	Enabled  *bool  `hcl:"enabled,optional"`
}

// variablesBlock holds user-defined values referenced elsewhere in the
// file as var.<name>. Its attributes are extracted in a first pass to
// build the evaluation context for the second.
type variablesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// fileSchema is the top-level structure of one grid file.
type fileSchema struct {
	Variables  []*variablesBlock `hcl:"variables,block"`
	Pipeline   *pipelineBlock    `hcl:"pipeline,block"`
	Tools      []*toolBlock      `hcl:"tool,block"`
	References []*referenceBlock `hcl:"reference,block"`
	Stages     []*stageBlock     `hcl:"stage,block"`
}
