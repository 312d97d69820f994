package tools

import (
	"fmt"

	"github.com/vk/seqgrid/internal/job"
)

// SamtoolsIndex indexes a coordinate-sorted BAM and returns the .bai
// path.
func SamtoolsIndex(j *job.Job, samtoolsPath, bam string) string {
	j.Run(fmt.Sprintf("%s index %s", samtoolsPath, bam))
	return bam + ".bai"
}

// Flagstat writes samtools flagstat output for a BAM and returns the
// stats file path.
func Flagstat(j *job.Job, samtoolsPath, bam string) string {
	out := bam + ".flagstat"
	j.Run(fmt.Sprintf("%s flagstat %s > %s", samtoolsPath, bam, out))
	return out
}
