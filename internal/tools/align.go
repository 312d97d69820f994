package tools

import (
	"fmt"
	"path/filepath"

	"github.com/vk/seqgrid/internal/job"
)

// STAROutputs names the files STAR leaves in the working directory.
type STAROutputs struct {
	Bam              string
	TranscriptomeBam string
	LogOut           string
	LogFinalOut      string
	LogProgressOut   string
	SJOut            string
}

// STARAlign writes the STAR alignment command for a pair of combined
// fastqs. Read group platform and unit are passed through to the BAM
// header for downstream Picard and GATK steps.
func STARAlign(j *job.Job, starPath, starIndex, r1, r2, rgpl, rgpu, genomeLoad string) STAROutputs {
	sample := j.Sample()
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\t--runThreadN %d \\\n"+
			"\t--genomeDir %s \\\n"+
			"\t--genomeLoad %s \\\n"+
			"\t--readFilesCommand zcat \\\n"+
			"\t--readFilesIn %s %s \\\n"+
			"\t--outSAMtype BAM Unsorted \\\n"+
			"\t--quantMode TranscriptomeSAM \\\n"+
			"\t--outSAMattributes All \\\n"+
			"\t--outSAMattrRGline ID:1 PL:%s PU:%s LB:%s SM:%s",
		starPath, j.Threads(), starIndex, genomeLoad, r1, r2, rgpl, rgpu, sample, sample))

	td := j.TempDir()
	return STAROutputs{
		Bam:              filepath.Join(td, "Aligned.out.bam"),
		TranscriptomeBam: filepath.Join(td, "Aligned.toTranscriptome.out.bam"),
		LogOut:           filepath.Join(td, "Log.out"),
		LogFinalOut:      filepath.Join(td, "Log.final.out"),
		LogProgressOut:   filepath.Join(td, "Log.progress.out"),
		SJOut:            filepath.Join(td, "SJ.out.tab"),
	}
}

// RSEMCalculateExpression quantifies expression from the STAR
// transcriptome BAM. Returns the genes and isoforms results files.
func RSEMCalculateExpression(j *job.Job, rsemPath, reference, transcriptomeBam string, strandSpecific bool) (genes, isoforms string) {
	prefix := j.TempPath(j.Sample() + "_rsem")
	strand := ""
	if strandSpecific {
		strand = " \\\n\t--forward-prob 0"
	}
	j.Run(fmt.Sprintf(
		"%s \\\n"+
			"\t--bam \\\n"+
			"\t--paired-end \\\n"+
			"\t--num-threads %d \\\n"+
			"\t--no-bam-output \\\n"+
			"\t--seed 3272015%s \\\n"+
			"\t%s \\\n"+
			"\t%s \\\n"+
			"\t%s",
		rsemPath, j.Threads(), strand, transcriptomeBam, reference, prefix))
	return prefix + ".genes.results", prefix + ".isoforms.results"
}
