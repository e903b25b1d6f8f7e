package gitdescribe

import (
	"errors"
	"fmt"
)

// ErrNoCommit is returned when the configured revision does not resolve to
// a commit, e.g. in a repository without any commits.
var ErrNoCommit = errors.New("revision does not resolve to a commit")

// AccessError reports that the repository could not be read. It is never
// used for the normal "no tag found" outcome.
type AccessError struct {
	Op  string
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// InvalidPatternError reports a tag pattern that is not a valid glob.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid match pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

func accessError(op string, err error) error {
	var access *AccessError
	if errors.As(err, &access) {
		return err
	}
	return &AccessError{Op: op, Err: err}
}
