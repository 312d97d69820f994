package tools

import (
	"fmt"

	"github.com/vk/seqgrid/internal/job"
)

// picardCmd formats the shared java invocation for Picard tools. The
// single GC thread and explicit tmpdir keep Picard inside the job's
// resource request.
func picardCmd(j *job.Job, picardPath, tool string, memGB int) string {
	return fmt.Sprintf("java -Xmx%dg -jar -XX:ParallelGCThreads=1 -Djava.io.tmpdir=%s \\\n\t%s %s",
		memGB, j.TempDir(), picardPath, tool)
}

// PicardCoordSort coordinate-sorts a BAM and returns the sorted path.
func PicardCoordSort(j *job.Job, picardPath, inBam string, memGB int) string {
	out := j.TempPath(j.Sample() + "_sorted.bam")
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\tI=%s \\\n"+
			"\tO=%s \\\n"+
			"\tSO=coordinate",
		picardCmd(j, picardPath, "SortSam", memGB), inBam, out))
	return out
}

// PicardQuerySort query-name-sorts a BAM, as required by the WASP
// remapping filter. Returns the sorted path.
func PicardQuerySort(j *job.Job, picardPath, inBam string, memGB int) string {
	out := j.TempPath(j.Sample() + "_qsorted.bam")
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\tI=%s \\\n"+
			"\tO=%s \\\n"+
			"\tSO=queryname",
		picardCmd(j, picardPath, "SortSam", memGB), inBam, out))
	return out
}

// PicardMarkDuplicates marks duplicate reads and returns the marked
// BAM and the duplication metrics file.
func PicardMarkDuplicates(j *job.Job, picardPath, inBam string, memGB int) (bam, metrics string) {
	bam = j.TempPath(j.Sample() + "_sorted_mdup.bam")
	metrics = j.TempPath(j.Sample() + "_duplicate_metrics.txt")
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\tI=%s \\\n"+
			"\tO=%s \\\n"+
			"\tM=%s \\\n"+
			"\tASSUME_SORT_ORDER=coordinate",
		picardCmd(j, picardPath, "MarkDuplicates", memGB), inBam, bam, metrics))
	return bam, metrics
}

// PicardIndex indexes a coordinate-sorted BAM and returns the index
// path.
func PicardIndex(j *job.Job, picardPath, bam string, memGB int) string {
	index := bam + ".bai"
	j.Run(fmt.Sprintf("%s \\\n\tI=%s \\\n\tO=%s",
		picardCmd(j, picardPath, "BuildBamIndex", memGB), bam, index))
	return index
}

// PicardCollectRNASeqMetrics collects RNA-seq alignment metrics against
// the refFlat annotation and rRNA interval list. Returns the metrics
// file path.
func PicardCollectRNASeqMetrics(j *job.Job, picardPath, inBam, refFlat, rrnaIntervals string, strandSpecific bool, memGB int) string {
	out := j.TempPath(j.Sample() + "_rna_seq_metrics.txt")
	strand := "NONE"
	if strandSpecific {
		strand = "SECOND_READ_TRANSCRIPTION_STRAND"
	}
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\tI=%s \\\n"+
			"\tO=%s \\\n"+
			"\tREF_FLAT=%s \\\n"+
			"\tRIBOSOMAL_INTERVALS=%s \\\n"+
			"\tSTRAND_SPECIFICITY=%s",
		picardCmd(j, picardPath, "CollectRnaSeqMetrics", memGB), inBam, out, refFlat, rrnaIntervals, strand))
	return out
}
