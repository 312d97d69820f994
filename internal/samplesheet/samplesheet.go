// Package samplesheet loads the YAML sample sheet naming the samples a
// run generates scripts for and their input files.
package samplesheet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/seqgrid/internal/job"
)

// Sample is one sequenced sample.
type Sample struct {
	Name     string   `yaml:"name"`
	R1Fastqs []string `yaml:"r1_fastqs"`
	R2Fastqs []string `yaml:"r2_fastqs"`

	// VCF enables the allele-specific expression branch. When set,
	// VCFSampleName must name this sample in the VCF (sample names in
	// a WGS VCF often differ from RNA-seq sample names).
	VCF           string `yaml:"vcf,omitempty"`
	VCFSampleName string `yaml:"vcf_sample_name,omitempty"`
}

// Sheet is a loaded sample sheet.
type Sheet struct {
	Samples []Sample `yaml:"samples"`
}

// Load reads and validates a sample sheet.
func Load(path string) (*Sheet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample sheet: %w", err)
	}

	var sheet Sheet
	if err := yaml.Unmarshal(raw, &sheet); err != nil {
		return nil, fmt.Errorf("parsing sample sheet %s: %w", path, err)
	}

	if len(sheet.Samples) == 0 {
		return nil, &job.ConfigError{Msg: fmt.Sprintf("sample sheet %s lists no samples", path)}
	}

	seen := make(map[string]bool, len(sheet.Samples))
	for i, s := range sheet.Samples {
		if s.Name == "" {
			return nil, &job.ConfigError{Msg: fmt.Sprintf("sample %d has no name", i)}
		}
		if seen[s.Name] {
			return nil, &job.ConfigError{Msg: fmt.Sprintf("duplicate sample %q", s.Name)}
		}
		seen[s.Name] = true
		if len(s.R1Fastqs) == 0 {
			return nil, &job.ConfigError{Msg: fmt.Sprintf("sample %q has no r1_fastqs", s.Name)}
		}
		if len(s.R2Fastqs) == 0 {
			return nil, &job.ConfigError{Msg: fmt.Sprintf("sample %q has no r2_fastqs (paired-end reads required)", s.Name)}
		}
		if s.VCF != "" && s.VCFSampleName == "" {
			return nil, &job.ConfigError{Msg: fmt.Sprintf("sample %q has a vcf but no vcf_sample_name", s.Name)}
		}
	}

	return &sheet, nil
}
