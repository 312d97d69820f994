package job

// StageMode says how a job treats an input file: copied into the working
// directory before the commands run, or referenced at its original
// location. InheritDefault defers to the job-wide CopyInputs option.
type StageMode int

const (
	// InheritDefault resolves to CopyToTemp when the job was created
	// with CopyInputs, ReferenceInPlace otherwise.
	InheritDefault StageMode = iota
	// CopyToTemp stages the file into the job's temp directory.
	CopyToTemp
	// ReferenceInPlace uses the file where it is, no copy.
	ReferenceInPlace
)

// resolve collapses InheritDefault against the job-wide default.
func (m StageMode) resolve(copyInputs bool) StageMode {
	if m != InheritDefault {
		return m
	}
	if copyInputs {
		return CopyToTemp
	}
	return ReferenceInPlace
}
