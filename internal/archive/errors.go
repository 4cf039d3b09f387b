package archive

import "fmt"

// CorruptArchiveError reports a zip or CSV that could not be read.
type CorruptArchiveError struct {
	Name string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive %s: %v", e.Name, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }
