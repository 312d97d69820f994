package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/seqgrid/internal/job"
)

// WASPSNPDirectory extracts this sample's biallelic SNPs from the VCF
// into per-chromosome files in the layout find_intersecting_snps.py
// expects, and returns the directory.
func WASPSNPDirectory(j *job.Job, bcftoolsPath, vcf, vcfSampleName string) string {
	dir := j.TempPath("wasp_snps")
	j.Run(fmt.Sprintf("mkdir -p %s", dir))
	j.Run(fmt.Sprintf(
		"%s query -s %s -f '%%CHROM\\t%%POS\\t%%REF\\t%%ALT\\n' -i 'TYPE=\"snp\"' %s \\\n"+
			"\t| awk -v d=%s '{print $2, $3, $4 | \"gzip > \" d \"/\" $1 \".snps.txt.gz\"}'",
		bcftoolsPath, vcfSampleName, vcf, dir))
	return dir
}

// WASPAlleleSwap runs find_intersecting_snps.py, producing the fastqs
// whose reads have their alleles swapped for re-mapping plus the BAMs
// split by whether they overlap a variant.
func WASPAlleleSwap(j *job.Job, pythonPath, findIntersectingSNPsPath, snpDir, bam string) (remapFq1, remapFq2, toRemapBam, keepBam string) {
	j.Run(fmt.Sprintf(
		"%s %s \\\n"+
			"\t--is_paired_end \\\n"+
			"\t--output_dir %s \\\n"+
			"\t--snp_dir %s \\\n"+
			"\t%s",
		pythonPath, findIntersectingSNPsPath, j.TempDir(), snpDir, bam))

	// find_intersecting_snps.py writes next to --output_dir using the
	// input BAM's base name.
	prefix := j.TempPath(strings.TrimSuffix(filepath.Base(bam), ".bam"))
	return prefix + ".remap.fq1.gz",
		prefix + ".remap.fq2.gz",
		prefix + ".to.remap.bam",
		prefix + ".keep.bam"
}

// WASPAlignmentCompare runs filter_remapped_reads.py, keeping reads
// that re-mapped to the same location after allele swapping. Returns
// the filtered BAM.
func WASPAlignmentCompare(j *job.Job, pythonPath, filterRemappedReadsPath, toRemapBam, remappedBam string) string {
	out := j.TempPath(j.Sample() + "_filtered.bam")
	j.Run(fmt.Sprintf(
		"%s %s \\\n"+
			"\t%s \\\n"+
			"\t%s \\\n"+
			"\t%s",
		pythonPath, filterRemappedReadsPath, toRemapBam, remappedBam, out))
	return out
}

// MBASED writes the Rscript invocation for MBASED allele-specific
// expression analysis and returns the results file.
func MBASED(j *job.Job, rscriptPath, mbasedScript, alleleCounts string, isPhased bool) string {
	out := j.TempPath(j.Sample() + "_mbased.tsv")
	phased := "FALSE"
	if isPhased {
		phased = "TRUE"
	}
	j.Run(fmt.Sprintf(
		"%s %s \\\n"+
			"\t--allele-counts %s \\\n"+
			"\t--phased %s \\\n"+
			"\t--threads %d \\\n"+
			"\t--out %s",
		rscriptPath, mbasedScript, alleleCounts, phased, j.Threads(), out))
	return out
}

// CountAlleleCoverage runs GATK ASEReadCounter over the filtered BAM
// and returns the per-allele counts table.
func CountAlleleCoverage(j *job.Job, gatkPath, genomeFasta, vcf, bam string, memGB int) string {
	out := j.TempPath(j.Sample() + "_allele_counts.tsv")
	j.Run(fmt.Sprintf(
		"java -Xmx%dg -jar %s \\\n"+
			"\t-T ASEReadCounter \\\n"+
			"\t-R %s \\\n"+
			"\t-sites %s \\\n"+
			"\t-I %s \\\n"+
			"\t-U ALLOW_N_CIGAR_READS \\\n"+
			"\t-o %s",
		memGB, gatkPath, genomeFasta, vcf, bam, out))
	return out
}
