package tools

import (
	"fmt"

	"github.com/vk/seqgrid/internal/job"
)

// HTSeqCount counts reads per gene from a coordinate-sorted BAM. The
// fragment is backgrounded so gene and exonic-bin counting run
// concurrently; callers must barrier before consuming the output.
func HTSeqCount(j *job.Job, htseqPath, geneGTF, bam string, strandSpecific bool) string {
	out := j.TempPath(j.Sample() + "_gene_counts.txt")
	strand := "no"
	if strandSpecific {
		strand = "reverse"
	}
	j.RunBackground(fmt.Sprintf(
		"%s \\\n"+
			"\t--format bam \\\n"+
			"\t--order pos \\\n"+
			"\t--stranded %s \\\n"+
			"\t%s \\\n"+
			"\t%s \\\n"+
			"\t> %s",
		htseqPath, strand, bam, geneGTF, out))
	return out
}

// DEXSeqCount counts reads per exonic bin for differential exon usage.
// Backgrounded like HTSeqCount.
func DEXSeqCount(j *job.Job, pythonPath, dexseqAnnotation, bam string, strandSpecific bool) string {
	out := j.TempPath(j.Sample() + "_dexseq_counts.txt")
	strand := "no"
	if strandSpecific {
		strand = "reverse"
	}
	j.RunBackground(fmt.Sprintf(
		"%s dexseq_count.py \\\n"+
			"\t--paired yes \\\n"+
			"\t--format bam \\\n"+
			"\t--order pos \\\n"+
			"\t--stranded %s \\\n"+
			"\t%s \\\n"+
			"\t%s \\\n"+
			"\t%s",
		pythonPath, strand, dexseqAnnotation, bam, out))
	return out
}
