package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoCandidates means the pool was empty after filtering. It is a skip,
// not a failure.
var ErrNoCandidates = errors.New("no candidates available")

// ErrAborted marks a run cut short by process shutdown.
var ErrAborted = errors.New("aborted by shutdown")

// ContentValidationError reports synthesized text outside the configured
// length bounds after the corrective retry.
type ContentValidationError struct {
	Length   int
	MinChars int
	MaxChars int
}

func (e *ContentValidationError) Error() string {
	return fmt.Sprintf("content length %d outside bounds [%d,%d]", e.Length, e.MinChars, e.MaxChars)
}
