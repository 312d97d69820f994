package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout(t *testing.T) {
	out := "/run/s1/alignment"

	assert.Equal(t, "/run/s1/sh", ScriptDir(out))
	assert.Equal(t, "/run/s1/logs", LogDir(out))
	assert.Equal(t, "/run/s1/sh/s1_alignment.sh", ScriptPath(out, "s1_alignment"))
	assert.Equal(t, "/run/s1/logs/s1_alignment.out", StdoutPath(out, "s1_alignment"))
	assert.Equal(t, "/run/s1/logs/s1_alignment.err", StderrPath(out, "s1_alignment"))
}
