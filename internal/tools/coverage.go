package tools

import (
	"fmt"

	"github.com/vk/seqgrid/internal/job"
)

// BedgraphFromBam writes genome coverage as a bedgraph and returns its
// path.
func BedgraphFromBam(j *job.Job, bedtoolsPath, bam string) string {
	out := j.TempPath(j.Sample() + ".bg")
	j.Run(fmt.Sprintf(
		"%s genomecov -ibam %s -split -bg \\\n\t> %s",
		bedtoolsPath, bam, out))
	return out
}

// BigwigFromBedgraph converts a sorted bedgraph to bigwig for browser
// display and returns the bigwig path.
func BigwigFromBedgraph(j *job.Job, bedGraphToBigWigPath, chromSizes, bedgraph string) string {
	out := j.TempPath(j.Sample() + ".bw")
	sorted := bedgraph + ".sorted"
	j.Run(fmt.Sprintf("sort -k1,1 -k2,2n %s > %s", bedgraph, sorted))
	j.Temp(sorted)
	j.Run(fmt.Sprintf("%s %s %s %s", bedGraphToBigWigPath, sorted, chromSizes, out))
	return out
}
