// Package layout derives the fixed on-disk layout for a stage: where its
// shell script lives, where the scheduler writes stdout/stderr, and how
// those file names are built from the job name.
//
// For a stage output directory D, scripts live in sibling(D)/sh and logs
// in sibling(D)/logs, so that all stages of one run share a single sh/
// and logs/ directory next to their per-stage output directories.
package layout

import "path/filepath"

// ScriptDir returns the directory holding shell scripts for jobs whose
// output directory is outDir.
func ScriptDir(outDir string) string {
	return filepath.Join(filepath.Dir(outDir), "sh")
}

// LogDir returns the directory holding scheduler stdout/stderr files for
// jobs whose output directory is outDir.
func LogDir(outDir string) string {
	return filepath.Join(filepath.Dir(outDir), "logs")
}

// ScriptPath returns the shell script path for the named job.
func ScriptPath(outDir, jobName string) string {
	return filepath.Join(ScriptDir(outDir), jobName+".sh")
}

// StdoutPath returns the scheduler stdout file for the named job.
func StdoutPath(outDir, jobName string) string {
	return filepath.Join(LogDir(outDir), jobName+".out")
}

// StderrPath returns the scheduler stderr file for the named job.
func StderrPath(outDir, jobName string) string {
	return filepath.Join(LogDir(outDir), jobName+".err")
}
