// Package rnaseq assembles the RNA-seq pipeline for one sample:
// alignment, QC, duplicate marking, expression counting, coverage
// tracks, and an optional allele-specific expression branch when the
// sample has a VCF. Each stage is a thin Build callback wiring tool
// command builders to the composer.
package rnaseq

import (
	"context"
	"path/filepath"

	"github.com/vk/seqgrid/internal/ctxlog"
	"github.com/vk/seqgrid/internal/grid"
	"github.com/vk/seqgrid/internal/job"
	"github.com/vk/seqgrid/internal/pipeline"
	"github.com/vk/seqgrid/internal/samplesheet"
	"github.com/vk/seqgrid/internal/tools"
)

// picardMemGB is the java heap handed to each Picard invocation,
// independent of the stage's scheduler request.
const picardMemGB = 4

// Assemble composes all RNA-seq stages for one sample. A stage build
// failure stops its branch (dependents are skipped without submission
// lines) while independent branches keep generating; the first error is
// returned after the whole sample has been walked.
func Assemble(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample) error {
	log := ctxlog.FromContext(ctx)
	strand := g.Options.StrandSpecific

	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		log.Error("stage generation failed", "sample", s.Name, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	alignH := addAlignment(ctx, c, g, s, fail)

	if g.StageEnabled("fastqc") {
		addFastqc(ctx, c, g, s, alignH, fail)
	}

	sortH := addSortMdupIndex(ctx, c, g, s, alignH, fail)

	if g.StageEnabled("rna_metrics") {
		addRNAMetrics(ctx, c, g, s, strand, sortH, fail)
	}
	if g.StageEnabled("counts") {
		addCounts(ctx, c, g, s, strand, sortH, fail)
	}
	if g.StageEnabled("rsem") {
		addRSEM(ctx, c, g, s, strand, alignH, fail)
	}
	if g.StageEnabled("bigwig") {
		addBigwig(ctx, c, g, s, sortH, fail)
	}

	if s.VCF != "" {
		addASEBranch(ctx, c, g, s, sortH, fail)
	}

	return firstErr
}

func addAlignment(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, fail func(error)) *pipeline.Handle {
	threads, mem := g.StageResources("alignment", 8, 32)
	h, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:   s.Name,
		Suffix:   "alignment",
		Threads:  threads,
		MemoryGB: mem,
		Build: func(j *job.Job, _ []*pipeline.Handle) ([]string, error) {
			starIndex, err := g.Reference("star_index")
			if err != nil {
				return nil, err
			}

			var r1, r2 []string
			for _, fq := range s.R1Fastqs {
				r1 = append(r1, j.Input(fq, job.InheritDefault))
			}
			for _, fq := range s.R2Fastqs {
				r2 = append(r2, j.Input(fq, job.InheritDefault))
			}
			j.StageInputs()

			combinedR1 := tools.CombineFastqs(j, r1, s.Name+"_R1.fastq.gz")
			combinedR2 := tools.CombineFastqs(j, r2, s.Name+"_R2.fastq.gz")
			j.WaitBarrier()

			star := tools.STARAlign(j, g.Tool("STAR"), starIndex, combinedR1, combinedR2,
				"ILLUMINA", "", "LoadAndRemove")

			// The combined fastqs are kept for the fastqc stage.
			return []string{
				j.TempAndPublish(combinedR1),
				j.TempAndPublish(combinedR2),
				j.TempAndPublish(star.Bam),
				j.TempAndPublish(star.TranscriptomeBam),
				j.Output(star.LogFinalOut),
				j.Output(star.LogOut),
				j.Output(star.LogProgressOut),
				j.Output(star.SJOut),
			}, nil
		},
	})
	fail(err)
	return h
}

func addFastqc(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, alignH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("fastqc", 1, 4)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "fastqc",
		OutSubdir: "qc",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			r1, err := deps[0].Output("_R1.fastq.gz")
			if err != nil {
				return nil, err
			}
			r2, err := deps[0].Output("_R2.fastq.gz")
			if err != nil {
				return nil, err
			}
			tools.Fastqc(j, g.Tool("fastqc"), []string{
				j.Input(r1, job.ReferenceInPlace),
				j.Input(r2, job.ReferenceInPlace),
			})
			// FastQC writes its reports straight into the output
			// directory; nothing to publish.
			return nil, nil
		},
	}, alignH)
	fail(err)
}

func addSortMdupIndex(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, alignH *pipeline.Handle, fail func(error)) *pipeline.Handle {
	threads, mem := g.StageResources("sort_mdup_index", 4, 8)
	h, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:   s.Name,
		Suffix:   "sort_mdup_index",
		Threads:  threads,
		MemoryGB: mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			bam, err := deps[0].Output("Aligned.out.bam")
			if err != nil {
				return nil, err
			}
			in := j.Input(bam, job.InheritDefault)
			j.StageInputs()

			picard := g.Tool("picard")
			sorted := j.Temp(tools.PicardCoordSort(j, picard, in, picardMemGB))
			mdup, metrics := tools.PicardMarkDuplicates(j, picard, sorted, picardMemGB)
			bai := tools.SamtoolsIndex(j, g.Tool("samtools"), mdup)
			flagstat := tools.Flagstat(j, g.Tool("samtools"), mdup)
			md5 := tools.MD5Sum(j, mdup)

			return []string{
				j.TempAndPublish(mdup),
				j.TempAndPublish(bai),
				j.Output(metrics),
				j.Output(flagstat),
				j.Output(md5),
			}, nil
		},
	}, alignH)
	fail(err)
	return h
}

func addRNAMetrics(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, strand bool, sortH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("rna_metrics", 1, 8)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "rna_metrics",
		OutSubdir: "qc",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			refFlat, err := g.Reference("ref_flat")
			if err != nil {
				return nil, err
			}
			rrna, err := g.Reference("rrna_intervals")
			if err != nil {
				return nil, err
			}
			bam, err := deps[0].Output("_sorted_mdup.bam")
			if err != nil {
				return nil, err
			}
			metrics := tools.PicardCollectRNASeqMetrics(j, g.Tool("picard"),
				j.Input(bam, job.ReferenceInPlace), refFlat, rrna, strand, picardMemGB)
			return []string{j.TempAndPublish(metrics)}, nil
		},
	}, sortH)
	fail(err)
}

func addCounts(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, strand bool, sortH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("counts", 2, 8)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:   s.Name,
		Suffix:   "counts",
		Threads:  threads,
		MemoryGB: mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			geneGTF, err := g.Reference("gene_gtf")
			if err != nil {
				return nil, err
			}
			dexseqAnn, err := g.Reference("dexseq_annotation")
			if err != nil {
				return nil, err
			}
			bam, err := deps[0].Output("_sorted_mdup.bam")
			if err != nil {
				return nil, err
			}
			in := j.Input(bam, job.ReferenceInPlace)

			// Gene and exonic-bin counting are independent passes over
			// the same BAM, so they run concurrently.
			gene := tools.HTSeqCount(j, g.Tool("htseq-count"), geneGTF, in, strand)
			dexseq := tools.DEXSeqCount(j, g.Tool("python"), dexseqAnn, in, strand)
			j.WaitBarrier()

			return []string{
				j.TempAndPublish(gene),
				j.TempAndPublish(dexseq),
			}, nil
		},
	}, sortH)
	fail(err)
}

func addRSEM(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, strand bool, alignH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("rsem", 4, 8)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:   s.Name,
		Suffix:   "rsem",
		Threads:  threads,
		MemoryGB: mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			reference, err := g.Reference("rsem_reference")
			if err != nil {
				return nil, err
			}
			bam, err := deps[0].Output("Aligned.toTranscriptome.out.bam")
			if err != nil {
				return nil, err
			}
			in := j.Input(bam, job.InheritDefault)
			j.StageInputs()

			genes, isoforms := tools.RSEMCalculateExpression(j,
				g.Tool("rsem-calculate-expression"), reference, in, strand)
			return []string{
				j.TempAndPublish(genes),
				j.TempAndPublish(isoforms),
			}, nil
		},
	}, alignH)
	fail(err)
}

func addBigwig(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, sortH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("bigwig", 1, 8)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:   s.Name,
		Suffix:   "bigwig",
		Threads:  threads,
		MemoryGB: mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			chromSizes, err := g.Reference("chrom_sizes")
			if err != nil {
				return nil, err
			}
			bam, err := deps[0].Output("_sorted_mdup.bam")
			if err != nil {
				return nil, err
			}
			bg := j.Temp(tools.BedgraphFromBam(j, g.Tool("bedtools"), j.Input(bam, job.ReferenceInPlace)))
			bw := tools.BigwigFromBedgraph(j, g.Tool("bedGraphToBigWig"), chromSizes, bg)
			out := j.TempAndPublish(bw)
			if g.Options.LinkDir != "" {
				link := j.Softlink(out)
				if g.Options.Webpath != "" {
					ctxlog.FromContext(ctx).Info("coverage track",
						"sample", s.Name, "url", g.Options.Webpath+"/"+filepath.Base(link))
				}
			}
			return []string{out}, nil
		},
	}, sortH)
	fail(err)
}

// addASEBranch adds the WASP mapping-bias correction chain and MBASED
// allele-specific expression analysis: allele swap, re-mapping,
// alignment compare with allele counting, then MBASED.
func addASEBranch(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, sortH *pipeline.Handle, fail func(error)) {
	swapH := addWASPAlleleSwap(ctx, c, g, s, sortH, fail)
	remapH := addWASPRemap(ctx, c, g, s, swapH, fail)
	compareH := addWASPAlignmentCompare(ctx, c, g, s, swapH, remapH, fail)
	addMBASED(ctx, c, g, s, compareH, fail)
}

func addWASPAlleleSwap(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, sortH *pipeline.Handle, fail func(error)) *pipeline.Handle {
	threads, mem := g.StageResources("wasp_allele_swap", 1, 8)
	h, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "wasp_allele_swap",
		OutSubdir: "ase",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			bam, err := deps[0].Output("_sorted_mdup.bam")
			if err != nil {
				return nil, err
			}
			in := j.Input(bam, job.InheritDefault)
			j.StageInputs()

			// find_intersecting_snps.py walks mate pairs, so the BAM is
			// query-name sorted first.
			qsorted := j.Temp(tools.PicardQuerySort(j, g.Tool("picard"), in, picardMemGB))
			snpDir := tools.WASPSNPDirectory(j, g.Tool("bcftools"), s.VCF, s.VCFSampleName)
			fq1, fq2, toRemap, keep := tools.WASPAlleleSwap(j, g.Tool("python"),
				g.Tool("find_intersecting_snps"), snpDir, qsorted)
			return []string{
				j.TempAndPublish(fq1),
				j.TempAndPublish(fq2),
				j.TempAndPublish(toRemap),
				j.TempAndPublish(keep),
			}, nil
		},
	}, sortH)
	fail(err)
	return h
}

func addWASPRemap(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, swapH *pipeline.Handle, fail func(error)) *pipeline.Handle {
	threads, mem := g.StageResources("wasp_remap", 8, 32)
	h, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "wasp_remap",
		OutSubdir: "ase",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			starIndex, err := g.Reference("star_index")
			if err != nil {
				return nil, err
			}
			fq1, err := deps[0].Output(".remap.fq1.gz")
			if err != nil {
				return nil, err
			}
			fq2, err := deps[0].Output(".remap.fq2.gz")
			if err != nil {
				return nil, err
			}
			star := tools.STARAlign(j, g.Tool("STAR"), starIndex,
				j.Input(fq1, job.ReferenceInPlace), j.Input(fq2, job.ReferenceInPlace),
				"ILLUMINA", "", "LoadAndRemove")
			return []string{j.TempAndPublish(star.Bam)}, nil
		},
	}, swapH)
	fail(err)
	return h
}

func addWASPAlignmentCompare(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, swapH, remapH *pipeline.Handle, fail func(error)) *pipeline.Handle {
	threads, mem := g.StageResources("wasp_alignment_compare", 4, 8)
	h, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "wasp_alignment_compare",
		OutSubdir: "ase",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			genomeFasta, err := g.Reference("genome_fasta")
			if err != nil {
				return nil, err
			}
			toRemap, err := deps[0].Output(".to.remap.bam")
			if err != nil {
				return nil, err
			}
			remapped, err := deps[1].Output("Aligned.out.bam")
			if err != nil {
				return nil, err
			}

			filtered := j.Temp(tools.WASPAlignmentCompare(j, g.Tool("python"),
				g.Tool("filter_remapped_reads"),
				j.Input(toRemap, job.ReferenceInPlace),
				j.Input(remapped, job.ReferenceInPlace)))
			sorted := tools.PicardCoordSort(j, g.Tool("picard"), filtered, picardMemGB)
			bai := tools.PicardIndex(j, g.Tool("picard"), sorted, picardMemGB)
			counts := tools.CountAlleleCoverage(j, g.Tool("gatk"), genomeFasta,
				s.VCF, sorted, picardMemGB)

			return []string{
				j.TempAndPublish(sorted),
				j.TempAndPublish(bai),
				j.TempAndPublish(counts),
			}, nil
		},
	}, swapH, remapH)
	fail(err)
	return h
}

func addMBASED(ctx context.Context, c *pipeline.Composer, g *grid.Grid, s samplesheet.Sample, compareH *pipeline.Handle, fail func(error)) {
	threads, mem := g.StageResources("mbased", 8, 16)
	_, err := c.AddStage(ctx, pipeline.StageSpec{
		Sample:    s.Name,
		Suffix:    "mbased",
		OutSubdir: "ase",
		Threads:   threads,
		MemoryGB:  mem,
		Build: func(j *job.Job, deps []*pipeline.Handle) ([]string, error) {
			counts, err := deps[0].Output("_allele_counts.tsv")
			if err != nil {
				return nil, err
			}
			res := tools.MBASED(j, g.Tool("Rscript"), g.Tool("mbased_script"),
				j.Input(counts, job.ReferenceInPlace), false)
			return []string{j.TempAndPublish(res)}, nil
		},
	}, compareH)
	fail(err)
}

// stageOrder is the construction order of the stage suffixes Assemble
// can generate.
var stageOrder = []string{
	"alignment", "fastqc", "sort_mdup_index", "rna_metrics", "counts",
	"rsem", "bigwig", "wasp_allele_swap", "wasp_remap",
	"wasp_alignment_compare", "mbased",
}

// StageSuffixes returns the stage suffixes Assemble can generate, in
// construction order.
func StageSuffixes() []string {
	return append([]string(nil), stageOrder...)
}
