package model

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// ErrorCode classifies a ScanError. Codes are strings so they serialize
// naturally into snapshots and JSON output.
type ErrorCode string

const (
	// CodeNotFound indicates an entry vanished between listing and stat.
	CodeNotFound ErrorCode = "ENOENT"

	// CodePermission indicates the entry could not be accessed.
	CodePermission ErrorCode = "EACCES"

	// CodeIO indicates any other I/O failure on a single entry.
	CodeIO ErrorCode = "IO"

	// CodeDirUnreadable indicates a directory could not be opened or listed.
	// Its subtree is reported empty.
	CodeDirUnreadable ErrorCode = "DIR_UNREADABLE"

	// CodeCycle indicates a directory identity reappeared on the expansion stack.
	CodeCycle ErrorCode = "CYCLE"

	// CodeProbeFailed indicates filesystem detection failed and the legacy
	// strategy was used instead.
	CodeProbeFailed ErrorCode = "PROBE_FAILED"

	// CodeStrategyUnsupported indicates the requested strategy cannot run on
	// this platform and the legacy strategy was used instead.
	CodeStrategyUnsupported ErrorCode = "STRATEGY_UNSUPPORTED"

	// CodeParityMismatch indicates optimized and legacy totals diverged beyond
	// tolerance.
	CodeParityMismatch ErrorCode = "PARITY_MISMATCH"
)

// Severity ranks a ScanError.
type Severity int

const (
	// Warning errors skip a single entry or annotate the session.
	Warning Severity = iota
	// Critical errors lose a whole subtree.
	Critical
)

// String returns the severity label.
func (s Severity) String() string {
	if s == Critical {
		return "critical"
	}
	return "warning"
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "warning":
		return Warning, true
	case "critical":
		return Critical, true
	default:
		return Warning, false
	}
}

// MarshalText encodes the severity as its label.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity label.
func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("unknown severity %q", b)
	}
	*s = v
	return nil
}

// ScanError records one non-fatal failure observed during a scan.
type ScanError struct {
	Path     string    `json:"path"`
	Code     ErrorCode `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// NewScanError builds a ScanError for path, deriving the code from err.
func NewScanError(path string, err error, sev Severity) ScanError {
	return ScanError{
		Path:     path,
		Code:     CodeFor(err),
		Severity: sev,
		Message:  err.Error(),
		Time:     time.Now(),
	}
}

// CodeFor maps an I/O error to its ErrorCode.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodePermission
	default:
		return CodeIO
	}
}

// CountWarnings returns the number of warning-severity errors, which is the
// number of entries a session skipped.
func CountWarnings(errs []ScanError) int {
	n := 0
	for _, e := range errs {
		if e.Severity == Warning {
			n++
		}
	}
	return n
}
