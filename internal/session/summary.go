package session

import (
	"time"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// Summary is the read-only result of a session.
type Summary struct {
	ID         string      `json:"id"`
	Root       string      `json:"root"`
	Strategy   traverse.ID `json:"strategy"`
	Filesystem string      `json:"filesystem,omitempty"`
	// VolumeTotal and VolumeFree describe the volume holding Root when the
	// scan started; zero when it could not be probed.
	VolumeTotal int64                `json:"volume_total_bytes,omitempty"`
	VolumeFree  int64                `json:"volume_free_bytes,omitempty"`
	Status      Status               `json:"status"`
	Basis       model.SizeBasis      `json:"-"`
	Hardlinks   model.HardlinkPolicy `json:"-"`
	Started     time.Time            `json:"started_at"`
	Finished    time.Time            `json:"finished_at"`

	Totals   model.Totals             `json:"totals"`
	Entries  []model.DirectoryEntry   `json:"entries"`
	Errors   []model.ScanError        `json:"errors"`
	Progress []model.ProgressSnapshot `json:"progress,omitempty"`

	// Skipped is the number of entries left out, equal to the number of
	// warning-severity errors.
	Skipped int `json:"skipped"`

	// Cause explains an Aborted status.
	Cause string `json:"cause,omitempty"`

	// Parity is set when a legacy comparison ran.
	Parity *ParityReport `json:"parity,omitempty"`
}

// ParityReport compares the selected strategy against the legacy walker.
type ParityReport struct {
	Legacy    model.Totals `json:"legacy"`
	Delta     int64        `json:"delta_bytes"`
	Tolerance int64        `json:"tolerance_bytes"`
	Within    bool         `json:"within"`
}

// Duration returns how long the session ran.
func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// RootEntry returns the aggregated entry of the scan root.
func (s *Summary) RootEntry() (model.DirectoryEntry, bool) {
	return model.Find(s.Entries, s.Root)
}

// Top returns the k largest directories below the root by key.
func (s *Summary) Top(key model.SortKey, k int) []model.DirectoryEntry {
	below := make([]model.DirectoryEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Path != s.Root {
			below = append(below, e)
		}
	}
	return model.Top(below, key, k)
}

// Children returns the immediate subdirectories of path ranked by key.
func (s *Summary) Children(path string, key model.SortKey, k int) []model.DirectoryEntry {
	return model.Top(model.Children(s.Entries, path), key, k)
}

// Share returns e's size as a percentage of the scanned total.
func (s *Summary) Share(e model.DirectoryEntry) float64 {
	return model.Percent(e.SizeBytes, s.Totals.Bytes)
}

// Partial reports whether the result is incomplete.
func (s *Summary) Partial() bool {
	return s.Status == Aborted || len(s.Errors) > 0
}

func compareParity(got, legacy model.Totals) ParityReport {
	delta := got.Bytes - legacy.Bytes
	if delta < 0 {
		delta = -delta
	}
	tol := max(int64(float64(legacy.Bytes)*ParityTolerance), ParityFloor)
	return ParityReport{
		Legacy:    legacy,
		Delta:     delta,
		Tolerance: tol,
		Within:    delta <= tol,
	}
}
