package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("full invocation", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{
			"-grid", "rnaseq.hcl",
			"-samples", "samples.yaml",
			"-outdir", "/data/run42",
			"-dry-run",
			"-log-format", "json",
			"-log-level", "debug",
		}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, "rnaseq.hcl", cfg.GridPath)
		assert.Equal(t, "samples.yaml", cfg.SamplesPath)
		assert.Equal(t, "/data/run42", cfg.OutDir)
		assert.True(t, cfg.DryRun)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("no arguments prints usage and exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("missing required flag", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-grid", "rnaseq.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("invalid log format", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{
			"-grid", "g.hcl", "-samples", "s.yaml", "-outdir", "/o",
			"-log-format", "xml",
		}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{
			"-grid", "g.hcl", "-samples", "s.yaml", "-outdir", "/o",
			"-log-level", "loud",
		}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-level")
	})
}
