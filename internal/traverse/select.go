package traverse

import (
	"fmt"
	"log/slog"

	"github.com/lumipallolabs/dirsize/internal/logging"
	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/probe"
)

// Selection is the outcome of choosing a strategy for a root.
type Selection struct {
	Strategy Strategy
	// Probe is the detected filesystem; zero when detection was skipped or failed.
	Probe probe.Info
	// Warnings records every fallback that happened on the way.
	Warnings []model.ScanError
}

// Selector picks the strategy for a root from the requested override, the
// legacy flag and the detected filesystem kind.
type Selector struct {
	strategies map[ID]Strategy
	detect     func(path string) (probe.Info, error)
	logger     *slog.Logger
}

// NewSelector returns a Selector over the built-in strategies.
func NewSelector(logger *slog.Logger) *Selector {
	return &Selector{
		strategies: map[ID]Strategy{
			Legacy:   NewLegacy(),
			Posix:    NewPosix(),
			NTFS:     NewNTFS(),
			Fastwalk: NewFastwalk(),
		},
		detect: probe.Detect,
		logger: logging.Or(logger),
	}
}

// Strategies lists the descriptors of every registered strategy.
func (s *Selector) Strategies() []Descriptor {
	out := make([]Descriptor, 0, len(s.strategies))
	for _, id := range []ID{Posix, NTFS, Fastwalk, Legacy} {
		if st, ok := s.strategies[id]; ok {
			out = append(out, st.Descriptor())
		}
	}
	return out
}

// Select chooses the strategy for root. An explicit override wins, then the
// legacy flag, then the probe result. A failed probe, or a strategy that
// cannot run here or honour cfg, falls back to legacy with a warning.
func (s *Selector) Select(root string, override ID, legacy bool, cfg Config) Selection {
	var sel Selection

	id := override
	switch {
	case id != Auto:
	case legacy:
		id = Legacy
	default:
		info, err := s.detect(root)
		if err != nil {
			sel.Warnings = append(sel.Warnings, fallbackWarning(root, model.CodeProbeFailed, err))
			s.logger.Debug("filesystem probe failed", "root", root, "error", err)
			id = Legacy
			break
		}
		sel.Probe = info
		id = ForKind(info.Kind)
		if st, ok := s.strategies[id]; ok && !st.Supported() {
			// e.g. an NTFS volume mounted through ntfs-3g on Linux
			id = Fastwalk
		}
	}

	st, ok := s.strategies[id]
	if !ok {
		sel.Warnings = append(sel.Warnings, fallbackWarning(root, model.CodeStrategyUnsupported,
			fmt.Errorf("unknown strategy %q", id)))
		st = s.strategies[Legacy]
	}
	if !st.Supported() || !st.Eligible(cfg) {
		sel.Warnings = append(sel.Warnings, fallbackWarning(root, model.CodeStrategyUnsupported,
			fmt.Errorf("strategy %s cannot run here, using %s", id, Legacy)))
		st = s.strategies[Legacy]
	}

	sel.Strategy = st
	s.logger.Debug("strategy selected", "root", root, "strategy", st.Descriptor().ID,
		"filesystem", sel.Probe.Kind, "fallbacks", len(sel.Warnings))
	return sel
}

// ForKind maps a filesystem kind to its preferred strategy.
func ForKind(k probe.Kind) ID {
	switch k {
	case probe.NTFS, probe.ReFS:
		return NTFS
	case probe.Ext, probe.XFS, probe.Btrfs, probe.ZFS, probe.APFS, probe.HFS, probe.Tmpfs, probe.Overlay:
		return Posix
	default:
		return Fastwalk
	}
}

func fallbackWarning(root string, code model.ErrorCode, err error) model.ScanError {
	e := model.NewScanError(root, err, model.Warning)
	e.Code = code
	return e
}
