package changes

// Failure is one file that could not be processed and why.
type Failure struct {
	Path   string
	Reason string
}

// ApplyReport counts what happened to every change and entry of a run.
type ApplyReport struct {
	Applied   int
	Skipped   int
	Failed    int
	Previewed int

	Unreadable int
	Conflicts  int
	Duplicates int
	TagsFixed  int
	Renamed    int
	Trashed    int
	Converted  int

	Failures   []Failure
	Unresolved []Failure

	// Stopped is set when the user quit or the run was interrupted.
	Stopped bool
}

// ExitCode is 1 when any change failed and 0 otherwise.
func (r *ApplyReport) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Add folds the counters of o into r.
func (r *ApplyReport) Add(o *ApplyReport) {
	r.Applied += o.Applied
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Previewed += o.Previewed
	r.TagsFixed += o.TagsFixed
	r.Renamed += o.Renamed
	r.Trashed += o.Trashed
	r.Converted += o.Converted
	r.Failures = append(r.Failures, o.Failures...)
	r.Stopped = r.Stopped || o.Stopped
}

// Total is the number of changes the report covers.
func (r *ApplyReport) Total() int {
	return r.Applied + r.Skipped + r.Failed + r.Previewed
}
