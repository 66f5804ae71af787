package preload

import (
	"errors"
	"fmt"
	"time"
)

// fetchFailureError wraps a network or decode failure for a single source.
type fetchFailureError struct {
	source  string
	elapsed time.Duration
	err     error
}

func (e fetchFailureError) Error() string {
	return fmt.Sprintf("fetch %s failed after %s: %v", e.source, e.elapsed.Round(time.Millisecond), e.err)
}

func (e fetchFailureError) Unwrap() error { return e.err }

// ErrFetchFailure constructs a fetchFailureError.
func ErrFetchFailure(source string, elapsed time.Duration, err error) error {
	return fetchFailureError{source: source, elapsed: elapsed, err: err}
}

// IsFetchFailure reports whether err came from the underlying image fetch
// (maps to 502 at the HTTP layer).
func IsFetchFailure(err error) bool {
	var fe fetchFailureError
	return errors.As(err, &fe)
}

// constructionError signals a failure assembling the request itself, e.g. a
// malformed source URL. Never retried.
type constructionError struct {
	source string
	err    error
}

func (e constructionError) Error() string {
	return fmt.Sprintf("construct request for %q: %v", e.source, e.err)
}

func (e constructionError) Unwrap() error { return e.err }

// ErrConstruction constructs a constructionError.
func ErrConstruction(source string, err error) error {
	return constructionError{source: source, err: err}
}

// IsConstruction reports whether err arose before any fetch began (maps to
// 400 at the HTTP layer).
func IsConstruction(err error) bool {
	var ce constructionError
	return errors.As(err, &ce)
}

// tooManyInflightError signals the in-flight fetch limit rejected the
// preload (maps to 429 at the HTTP layer).
type tooManyInflightError struct{ source string }

func (e tooManyInflightError) Error() string { return "too many in-flight fetches: " + e.source }

// IsTooManyInflight reports whether err indicates fetch backpressure.
func IsTooManyInflight(err error) bool {
	var te tooManyInflightError
	return errors.As(err, &te)
}
