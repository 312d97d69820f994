package tools

import (
	"fmt"
	"strings"

	"github.com/vk/seqgrid/internal/job"
)

// CombineFastqs concatenates gzipped fastqs into one file in the
// working directory. The fragment is backgrounded so R1 and R2 can be
// combined concurrently; callers must place a WaitBarrier before the
// first consumer.
func CombineFastqs(j *job.Job, fastqs []string, combined string) string {
	out := j.TempPath(combined)
	j.RunBackground(fmt.Sprintf("cat \\\n\t%s \\\n\t> %s", strings.Join(fastqs, " \\\n\t"), out))
	return out
}

// Fastqc runs FastQC on the given files, writing reports into the
// job's output directory.
func Fastqc(j *job.Job, fastqcPath string, files []string) {
	j.Run(fmt.Sprintf("%s --threads %d --outdir %s \\\n\t%s",
		fastqcPath, j.Threads(), j.OutDir(), strings.Join(files, " \\\n\t")))
}

// MD5Sum writes an md5 checksum for fn next to it and returns the
// checksum path.
func MD5Sum(j *job.Job, fn string) string {
	j.Run(fmt.Sprintf("md5sum %s > %s.md5", fn, fn))
	return fn + ".md5"
}
