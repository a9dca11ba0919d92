package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput means no usable address survived normalization. Fatal to a run.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFetchFailure marks a transport error or non-success status before any content was seen.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrBlocked marks an attempt that hit an anti-bot challenge.
	ErrBlocked = errors.New("blocked")
)

// FetchError carries the address and status of a failed fetch or navigation.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.URL)
	}
}

// Is lets errors.Is match ErrFetchFailure.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailure
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BlockedError wraps the verdict that blocked an attempt.
type BlockedError struct {
	URL     string
	Verdict BlockVerdict
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked at %s: %s", e.URL, e.Verdict.Reason)
}

// Is lets errors.Is match ErrBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}
