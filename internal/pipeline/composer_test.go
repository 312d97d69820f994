package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/seqgrid/internal/job"
)

func testComposer(t *testing.T) *Composer {
	t.Helper()
	return New(Settings{OutDir: t.TempDir()})
}

func echoStage(sample, suffix string) StageSpec {
	return StageSpec{
		Sample:   sample,
		Suffix:   suffix,
		Threads:  1,
		MemoryGB: 1,
		Build: func(j *job.Job, deps []*Handle) ([]string, error) {
			j.Run("echo " + suffix)
			return []string{j.Output(j.TempPath(suffix + ".txt"))}, nil
		},
	}
}

func TestLinearChain(t *testing.T) {
	ctx := context.Background()
	c := testComposer(t)

	align, err := c.AddStage(ctx, echoStage("s1", "align"))
	require.NoError(t, err)
	sorted, err := c.AddStage(ctx, echoStage("s1", "sort"), align)
	require.NoError(t, err)
	_, err = c.AddStage(ctx, echoStage("s1", "count"), sorted)
	require.NoError(t, err)

	master := filepath.Join(t.TempDir(), "submit_all.sh")
	require.NoError(t, c.WriteMasterScript(master))

	raw, err := os.ReadFile(master)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	assert.Equal(t, "#!/bin/bash", lines[0])

	var submits []string
	for _, l := range lines {
		if strings.HasPrefix(l, "qsub") {
			submits = append(submits, l)
		}
	}
	require.Len(t, submits, 3)
	assert.Contains(t, submits[0], "s1_align.sh")
	assert.NotContains(t, submits[0], "-hold_jid")
	assert.Contains(t, submits[1], "-hold_jid s1_align ")
	assert.Contains(t, submits[1], "s1_sort.sh")
	assert.Contains(t, submits[2], "-hold_jid s1_sort ")
	assert.Contains(t, submits[2], "s1_count.sh")
}

func TestStageOutputsThreadThrough(t *testing.T) {
	ctx := context.Background()
	c := testComposer(t)

	producer, err := c.AddStage(ctx, echoStage("s1", "align"))
	require.NoError(t, err)

	var seen string
	_, err = c.AddStage(ctx, StageSpec{
		Sample:   "s1",
		Suffix:   "sort",
		Threads:  1,
		MemoryGB: 1,
		Build: func(j *job.Job, deps []*Handle) ([]string, error) {
			out, err := deps[0].Output("align.txt")
			if err != nil {
				return nil, err
			}
			seen = out
			return nil, nil
		},
	}, producer)
	require.NoError(t, err)
	assert.Equal(t, producer.Outputs()[0], seen)
}

func TestHandleOutputMiss(t *testing.T) {
	h := &Handle{name: "s1_align", outputs: []string{"/out/a.bam"}}
	_, err := h.Output("missing.bam")
	var derr *job.DependencyError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "s1_align", derr.Stage)
}

func TestFailedBuildPoisonsBranch(t *testing.T) {
	ctx := context.Background()
	c := testComposer(t)

	boom := errors.New("no reference configured")
	bad, err := c.AddStage(ctx, StageSpec{
		Sample:   "s1",
		Suffix:   "broken",
		Threads:  1,
		MemoryGB: 1,
		Build: func(j *job.Job, deps []*Handle) ([]string, error) {
			j.Run("echo never submitted")
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, bad.Failed())

	// Dependent stage is skipped quietly.
	child, err := c.AddStage(ctx, echoStage("s1", "dependent"), bad)
	require.NoError(t, err)
	assert.True(t, child.Failed())

	// An independent stage still generates.
	ok, err := c.AddStage(ctx, echoStage("s1", "independent"))
	require.NoError(t, err)
	assert.False(t, ok.Failed())

	submits := c.Submits()
	require.Len(t, submits, 1)
	assert.Contains(t, submits[0], "s1_independent.sh")
}

func TestFailedBuildDiscardsScript(t *testing.T) {
	ctx := context.Background()
	outRoot := t.TempDir()
	c := New(Settings{OutDir: outRoot})

	_, err := c.AddStage(ctx, StageSpec{
		Sample:   "s1",
		Suffix:   "broken",
		Threads:  1,
		MemoryGB: 1,
		Build: func(j *job.Job, deps []*Handle) ([]string, error) {
			return nil, errors.New("boom")
		},
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(outRoot, "s1", "sh", "s1_broken.sh"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDuplicateStageName(t *testing.T) {
	ctx := context.Background()
	c := testComposer(t)

	_, err := c.AddStage(ctx, echoStage("s1", "align"))
	require.NoError(t, err)

	_, err = c.AddStage(ctx, echoStage("s1", "align"))
	var cerr *job.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Msg, "duplicate")
}

func TestScratchStagesAreNotSubmitted(t *testing.T) {
	ctx := context.Background()
	outRoot := t.TempDir()

	c1 := New(Settings{OutDir: outRoot})
	_, err := c1.AddStage(ctx, echoStage("s1", "align"))
	require.NoError(t, err)
	require.Len(t, c1.Submits(), 1)

	// Re-composing against existing scripts (path introspection) must
	// not produce submit lines for redirected scratch scripts.
	c2 := New(Settings{OutDir: outRoot})
	h, err := c2.AddStage(ctx, echoStage("s1", "align"))
	require.NoError(t, err)
	assert.False(t, h.Failed())
	assert.NotEmpty(t, h.Outputs())
	assert.Empty(t, c2.Submits())
}
