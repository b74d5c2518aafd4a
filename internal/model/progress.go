package model

import "time"

// ProgressSnapshot is one throttled progress report.
type ProgressSnapshot struct {
	Time             time.Time     `json:"time"`
	Elapsed          time.Duration `json:"elapsed"`
	ProcessedEntries int64         `json:"processed_entries"`
	ProcessedBytes   int64         `json:"processed_bytes"`
	// Throughput is the moving average of bytes/second over recent snapshots.
	Throughput float64 `json:"throughput"`
	// Completion is 1 on the final snapshot of a finished walk and 0 otherwise.
	Completion float64 `json:"completion,omitempty"`
}
