package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T) (gridPath, samplesPath string) {
	t.Helper()
	dir := t.TempDir()

	gridPath = filepath.Join(dir, "rnaseq.hcl")
	require.NoError(t, os.WriteFile(gridPath, []byte(`
variables {
  refdir = "/data/refs/hg38"
}

pipeline {
  queue = "long"
}

reference "star_index" {
  path = "${var.refdir}/star"
}

reference "ref_flat" {
  path = "${var.refdir}/refFlat.txt.gz"
}

reference "rrna_intervals" {
  path = "${var.refdir}/rrna.interval_list"
}

reference "gene_gtf" {
  path = "${var.refdir}/genes.gtf"
}

reference "dexseq_annotation" {
  path = "${var.refdir}/dexseq.gff"
}

reference "rsem_reference" {
  path = "${var.refdir}/rsem/hg38"
}

reference "chrom_sizes" {
  path = "${var.refdir}/hg38.chrom.sizes"
}

reference "genome_fasta" {
  path = "${var.refdir}/hg38.fa"
}
`), 0o644))

	samplesPath = filepath.Join(dir, "samples.yaml")
	require.NoError(t, os.WriteFile(samplesPath, []byte(`
samples:
  - name: s1
    r1_fastqs: [/data/fastq/s1_R1.fastq.gz]
    r2_fastqs: [/data/fastq/s1_R2.fastq.gz]
`), 0o644))

	return gridPath, samplesPath
}

func TestRunDryRun(t *testing.T) {
	gridPath, samplesPath := writeFixtures(t)
	outDir := filepath.Join(t.TempDir(), "run")

	var out bytes.Buffer
	err := run(&out, []string{
		"-grid", gridPath,
		"-samples", samplesPath,
		"-outdir", outDir,
		"-dry-run",
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "qsub"), l)
	}
	assert.Contains(t, out.String(), "s1_alignment.sh")

	// Dry run still writes the per-stage scripts, but no master script.
	_, err = os.Stat(filepath.Join(outDir, "submit_all.sh"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunWritesMasterScript(t *testing.T) {
	gridPath, samplesPath := writeFixtures(t)
	outDir := filepath.Join(t.TempDir(), "run")

	var out bytes.Buffer
	err := run(&out, []string{
		"-grid", gridPath,
		"-samples", samplesPath,
		"-outdir", outDir,
	})
	require.NoError(t, err)

	master := filepath.Join(outDir, "submit_all.sh")
	raw, rerr := os.ReadFile(master)
	require.NoError(t, rerr)
	assert.True(t, strings.HasPrefix(string(raw), "#!/bin/bash\n"))
	assert.Contains(t, string(raw), "qsub ")
	assert.Contains(t, out.String(), master)
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, nil))
	assert.Contains(t, out.String(), "Usage:")
}
