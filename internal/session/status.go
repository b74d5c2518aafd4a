package session

import "fmt"

// Status is the lifecycle state of a session.
type Status int

const (
	Initialized Status = iota
	Running
	Completing
	Completed
	Aborted
)

var statusNames = map[Status]string{
	Initialized: "initialized",
	Running:     "running",
	Completing:  "completing",
	Completed:   "completed",
	Aborted:     "aborted",
}

// String returns the lowercase status label.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	for st, n := range statusNames {
		if n == s {
			return st, true
		}
	}
	return Initialized, false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Aborted
}

// next lists the allowed transitions.
var next = map[Status][]Status{
	Initialized: {Running, Aborted},
	Running:     {Completing, Aborted},
	Completing:  {Completed, Aborted},
}

func (s Status) canMoveTo(to Status) bool {
	for _, n := range next[s] {
		if n == to {
			return true
		}
	}
	return false
}

// MarshalText encodes the status label.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status label.
func (s *Status) UnmarshalText(b []byte) error {
	st, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown session status %q", b)
	}
	*s = st
	return nil
}
