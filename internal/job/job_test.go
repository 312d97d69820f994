package job

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Sample:   "s1",
		Suffix:   "alignment",
		OutDir:   filepath.Join(t.TempDir(), "alignment"),
		Threads:  4,
		MemoryGB: 8,
	}
}

func readScript(t *testing.T, j *Job) string {
	t.Helper()
	raw, err := os.ReadFile(j.ScriptPath())
	require.NoError(t, err)
	return string(raw)
}

func TestNew(t *testing.T) {
	t.Run("creates output, logs and sh directories", func(t *testing.T) {
		cfg := testConfig(t)
		j, err := New(cfg)
		require.NoError(t, err)

		parent := filepath.Dir(cfg.OutDir)
		for _, dir := range []string{cfg.OutDir, filepath.Join(parent, "logs"), filepath.Join(parent, "sh")} {
			info, err := os.Stat(dir)
			require.NoError(t, err, dir)
			assert.True(t, info.IsDir())
		}
		require.NoError(t, j.Close())
	})

	t.Run("rejects non-positive resources", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Threads = 0
		_, err := New(cfg)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)

		cfg = testConfig(t)
		cfg.MemoryGB = -1
		_, err = New(cfg)
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("rejects unknown queue", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Queue = "midnight"
		_, err := New(cfg)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Msg, "queue")
	})

	t.Run("accepts short and long queues", func(t *testing.T) {
		for _, q := range []string{"short", "long"} {
			cfg := testConfig(t)
			cfg.Queue = q
			j, err := New(cfg)
			require.NoError(t, err)
			require.NoError(t, j.Close())
		}
	})
}

func TestHeader(t *testing.T) {
	t.Run("memory per thread", func(t *testing.T) {
		cfg := testConfig(t) // 8 GB over 4 threads
		j, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.Contains(t, script, "#$ -l h_vmem=2\n")
		assert.Contains(t, script, "#$ -pe smp 4\n")
		assert.Contains(t, script, "#$ -N s1_alignment\n")
	})

	t.Run("queue directive only when configured", func(t *testing.T) {
		cfg := testConfig(t)
		j, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, j.Close())
		assert.NotContains(t, readScript(t, j), "#$ -q")

		cfg2 := testConfig(t)
		cfg2.Queue = "long"
		j2, err := New(cfg2)
		require.NoError(t, err)
		require.NoError(t, j2.Close())
		assert.Contains(t, readScript(t, j2), "#$ -q long\n")
	})

	t.Run("stdout and stderr paths", func(t *testing.T) {
		cfg := testConfig(t)
		j, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, j.Close())

		parent := filepath.Dir(cfg.OutDir)
		script := readScript(t, j)
		assert.Contains(t, script, "#$ -o "+filepath.Join(parent, "logs", "s1_alignment.out"))
		assert.Contains(t, script, "#$ -e "+filepath.Join(parent, "logs", "s1_alignment.err"))
	})

	t.Run("modules and conda env", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Modules = []string{"samtools", "bedtools"}
		cfg.CondaEnv = "rnaseq"
		j, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.Contains(t, script, "module load samtools\n")
		assert.Contains(t, script, "module load bedtools\n")
		assert.Contains(t, script, "source activate rnaseq\n")
	})

	t.Run("cd into working directory", func(t *testing.T) {
		cfg := testConfig(t)
		j, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.Contains(t, script, "mkdir -p "+cfg.OutDir+"\n")
		assert.Contains(t, script, "cd "+cfg.OutDir+"\n")
	})
}

func TestScratchRedirect(t *testing.T) {
	cfg := testConfig(t)

	j1, err := New(cfg)
	require.NoError(t, err)
	j1.Run("echo first")
	require.NoError(t, j1.Close())
	original := readScript(t, j1)

	// Second construction of the same job must not clobber the script.
	j2, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, j2.Scratch())
	assert.NotEqual(t, j1.ScriptPath(), j2.ScriptPath())

	scratchPath := j2.ScriptPath()
	require.NoError(t, j2.Close())

	assert.Equal(t, original, readScript(t, j1))
	_, err = os.Stat(scratchPath)
	assert.True(t, os.IsNotExist(err), "scratch script should be removed at Close")
}

func TestSubmitCommand(t *testing.T) {
	t.Run("no dependencies omits hold clause", func(t *testing.T) {
		j, err := New(testConfig(t))
		require.NoError(t, err)
		defer j.Close()

		cmd := j.SubmitCommand()
		assert.Equal(t, "qsub "+j.ScriptPath(), cmd)
		assert.NotContains(t, cmd, "-hold_jid")
	})

	t.Run("dependencies joined by commas", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WaitFor = []string{"s1_alignment", "s1_sort_mdup_index"}
		j, err := New(cfg)
		require.NoError(t, err)
		defer j.Close()

		assert.Equal(t, "qsub -hold_jid s1_alignment,s1_sort_mdup_index "+j.ScriptPath(), j.SubmitCommand())
		assert.Equal(t, []string{"s1_alignment", "s1_sort_mdup_index"}, j.WaitFor())
	})
}

func TestInputStaging(t *testing.T) {
	t.Run("copy returns working-directory path", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)
		defer j.Close()

		got := j.Input("/data/fastq/s1_R1.fastq.gz", CopyToTemp)
		assert.Equal(t, filepath.Join(j.TempDir(), "s1_R1.fastq.gz"), got)
	})

	t.Run("reference returns absolute original path", func(t *testing.T) {
		j, err := New(testConfig(t))
		require.NoError(t, err)
		defer j.Close()

		got := j.Input("/data/fastq/s1_R1.fastq.gz", ReferenceInPlace)
		assert.Equal(t, "/data/fastq/s1_R1.fastq.gz", got)
	})

	t.Run("inherit default honors job-wide copy option", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		cfg.CopyInputs = true
		j, err := New(cfg)
		require.NoError(t, err)
		defer j.Close()

		got := j.Input("/data/a.bam", InheritDefault)
		assert.Equal(t, j.TempPath("/data/a.bam"), got)
	})

	t.Run("staged inputs appear in one batched copy", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)

		staged := []string{
			j.Input("/data/a.fastq.gz", CopyToTemp),
			j.Input("/data/b.fastq.gz", CopyToTemp),
		}
		j.StageInputs()
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.Contains(t, script, "rsync -avz")
		assert.Contains(t, script, "/data/a.fastq.gz")
		assert.Contains(t, script, "/data/b.fastq.gz")
		// Each staged copy is a temporary, so the cleanup block names
		// the in-tempdir paths.
		for _, p := range staged {
			assert.Contains(t, script, p)
		}
	})
}

func TestFinalize(t *testing.T) {
	t.Run("publish then delete then remove tempdir", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)

		temp := j.Temp(j.TempPath("intermediate.bam"))
		j.Output(j.TempPath("result.bam"))
		require.NoError(t, j.Close())

		script := readScript(t, j)
		pubIdx := strings.Index(script, "rsync -avz")
		delIdx := strings.Index(script, "rm -r \\")
		rmTempIdx := strings.Index(script, "rm -r "+j.TempDir())

		require.GreaterOrEqual(t, pubIdx, 0)
		require.GreaterOrEqual(t, delIdx, 0)
		require.GreaterOrEqual(t, rmTempIdx, 0)
		assert.Less(t, pubIdx, delIdx, "outputs published before temp deletion")
		assert.Less(t, delIdx, rmTempIdx, "temp files deleted before tempdir removal")
		assert.Contains(t, script, temp)
	})

	t.Run("temp deletion waits on successful publish", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)

		j.Temp(j.TempPath("x.tmp"))
		j.Output(j.TempPath("x.bam"))
		require.NoError(t, j.Close())

		assert.Contains(t, readScript(t, j), "&& rm -r")
	})

	t.Run("tempdir removal waits on successful publish", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)

		j.Output(j.TempPath("result.bam"))
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.Contains(t, script, "&& rm -r "+j.TempDir())
		assert.NotContains(t, script, "\n\nrm -r "+j.TempDir(),
			"tempdir removal must not run unconditionally")
	})

	t.Run("failed publish preserves the working directory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.TempRoot = t.TempDir()
		j, err := New(cfg)
		require.NoError(t, err)

		out := j.TempPath("result.bam")
		j.Run("echo data > " + out)
		j.Output(out)
		require.NoError(t, j.Close())

		// An rsync that always fails stands in for a partial publish.
		binDir := t.TempDir()
		stub := filepath.Join(binDir, "rsync")
		require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\nexit 1\n"), 0o755))

		cmd := exec.Command("/bin/bash", j.ScriptPath())
		cmd.Env = append(os.Environ(), "PATH="+binDir+":"+os.Getenv("PATH"))
		// The script exits non-zero because the finalize chain failed.
		_ = cmd.Run()

		_, statErr := os.Stat(out)
		assert.NoError(t, statErr, "the only copy of the output must survive a failed publish")
		_, statErr = os.Stat(j.OutPath(out))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("no publish or tempdir removal when tempdir is outdir", func(t *testing.T) {
		j, err := New(testConfig(t))
		require.NoError(t, err)

		j.Output(j.TempPath("result.bam"))
		require.NoError(t, j.Close())

		script := readScript(t, j)
		assert.NotContains(t, script, "rsync")
		assert.NotContains(t, script, "rm -r "+j.TempDir())
	})

	t.Run("published output excluded from deletion when tempdir is outdir", func(t *testing.T) {
		j, err := New(testConfig(t))
		require.NoError(t, err)

		keep := j.TempPath("result.bam")
		j.Temp(keep)
		j.Output(keep)
		discard := j.Temp(j.TempPath("scrap.txt"))
		require.NoError(t, j.Close())

		script := readScript(t, j)
		delIdx := strings.Index(script, "rm -r")
		require.GreaterOrEqual(t, delIdx, 0)
		deleteBlock := script[delIdx:]
		assert.Contains(t, deleteBlock, discard)
		assert.NotContains(t, deleteBlock, keep)
	})

	t.Run("close is a no-op the second time", func(t *testing.T) {
		j, err := New(testConfig(t))
		require.NoError(t, err)
		require.NoError(t, j.Close())
		before := readScript(t, j)
		require.NoError(t, j.Close())
		assert.Equal(t, before, readScript(t, j))
	})
}

func TestBackgroundFragments(t *testing.T) {
	j, err := New(testConfig(t))
	require.NoError(t, err)

	j.RunBackground("cat a.fastq.gz b.fastq.gz > combined.fastq.gz")
	j.WaitBarrier()
	j.Run("STAR --readFilesIn combined.fastq.gz")
	require.NoError(t, j.Close())

	script := readScript(t, j)
	bgIdx := strings.Index(script, "combined.fastq.gz &\n")
	waitIdx := strings.Index(script, "\nwait\n")
	starIdx := strings.Index(script, "STAR --readFilesIn")

	require.GreaterOrEqual(t, bgIdx, 0)
	require.GreaterOrEqual(t, waitIdx, 0)
	require.GreaterOrEqual(t, starIdx, 0)
	assert.Less(t, bgIdx, waitIdx)
	assert.Less(t, waitIdx, starIdx, "barrier precedes the consumer")
}

func TestDiscard(t *testing.T) {
	j, err := New(testConfig(t))
	require.NoError(t, err)
	path := j.ScriptPath()
	j.Run("echo partial")

	require.NoError(t, j.Discard())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMemPerThread(t *testing.T) {
	assert.Equal(t, "2", memPerThread(8, 4))
	assert.Equal(t, "32", memPerThread(32, 1))
	assert.Equal(t, "2.5", memPerThread(10, 4))
}
