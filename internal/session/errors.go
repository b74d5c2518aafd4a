package session

import "errors"

var (
	// ErrInvalidInput reports a bad root or option. No scan was started.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFatal reports a failure that aborted the whole scan, such as an
	// unreadable root. The returned Summary holds whatever was gathered.
	ErrFatal = errors.New("fatal scan error")
)

// Exit codes of the command-line tool.
const (
	ExitOK      = 0
	ExitInvalid = 2
	ExitPartial = 3
	ExitFailure = 4
)

// ExitCode maps the outcome of Start to a process exit code.
func ExitCode(s *Summary, err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalid
	case err != nil:
		return ExitFailure
	case s == nil:
		return ExitFailure
	case s.Status == Aborted || len(s.Errors) > 0:
		return ExitPartial
	default:
		return ExitOK
	}
}
