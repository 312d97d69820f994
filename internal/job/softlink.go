package job

import (
	"fmt"
	"path/filepath"
	"strings"
)

// softlink is one deferred (target, link) pair. Links are written at the
// very end of the script, once every published file sits in its final
// durable location.
type softlink struct {
	target string
	link   string
}

// Softlink registers a deferred symbolic link for target in the job's
// link directory and returns the link path. The link name is the
// target's base name, prefixed with the sample name when the base name
// does not already contain it.
func (j *Job) Softlink(target string) string {
	base := filepath.Base(target)
	if !strings.Contains(base, j.sample) {
		base = j.sample + "_" + base
	}
	return j.SoftlinkAs(target, filepath.Join(j.linkDir, base))
}

// SoftlinkAs registers a deferred symbolic link from target to the
// explicit link path and returns the link path.
func (j *Job) SoftlinkAs(target, link string) string {
	j.links = append(j.links, softlink{target: target, link: link})
	return link
}

// writeSoftlinks materializes the deferred links. Called by Close after
// outputs have been published.
func (j *Job) writeSoftlinks() {
	if len(j.links) == 0 {
		return
	}
	var b strings.Builder
	for _, l := range j.links {
		fmt.Fprintf(&b, "ln -s %s %s\n", l.target, l.link)
	}
	b.WriteString("\n")
	j.write(b.String())
}
