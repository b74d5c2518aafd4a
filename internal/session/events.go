package session

import "github.com/lumipallolabs/dirsize/internal/model"

// Event is a notification from a running session.
type Event interface {
	isEvent()
}

// StatusChangedEvent is emitted on every lifecycle transition.
type StatusChangedEvent struct {
	From, To Status
}

func (StatusChangedEvent) isEvent() {}

// StrategySelectedEvent is emitted once the traversal backend is known.
type StrategySelectedEvent struct {
	Strategy   string
	Filesystem string
}

func (StrategySelectedEvent) isEvent() {}

// ProgressEvent carries one throttled progress snapshot.
type ProgressEvent struct {
	Snapshot model.ProgressSnapshot
}

func (ProgressEvent) isEvent() {}

// CompletedEvent is the last event of a session.
type CompletedEvent struct {
	Summary *Summary
	Err     error
}

func (CompletedEvent) isEvent() {}
