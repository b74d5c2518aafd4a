// Package session runs one scan end to end: strategy selection, traversal,
// aggregation and finalization, tracking the lifecycle and every error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumipallolabs/dirsize/internal/aggregate"
	"github.com/lumipallolabs/dirsize/internal/logging"
	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/probe"
	"github.com/lumipallolabs/dirsize/internal/progress"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// Session is a single scan of one root. It runs at most once.
type Session struct {
	id       string
	root     string
	opts     Options
	logger   *slog.Logger
	selector *traverse.Selector

	mu     sync.RWMutex
	status Status
	events chan Event
}

// New validates root and opts and returns an Initialized session.
func New(root string, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("%w: empty root path", ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidInput, abs)
	}

	logger := logging.Or(opts.Logger)
	return &Session{
		id:       uuid.NewString(),
		root:     filepath.Clean(abs),
		opts:     opts,
		logger:   logger,
		selector: traverse.NewSelector(logger),
	}, nil
}

// Start scans root with opts and blocks until the session ends. Only
// ErrInvalidInput and ErrFatal are returned as errors; a fatal error still
// comes with the Aborted summary gathered so far. Cancelling ctx yields an
// Aborted summary and a nil error.
func Start(ctx context.Context, root string, opts Options) (*Summary, error) {
	s, err := New(root, opts)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Root returns the absolute scan root.
func (s *Session) Root() string { return s.root }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RunAsync runs the session in a goroutine and returns its event stream.
// The channel is closed after the final CompletedEvent.
func (s *Session) RunAsync(ctx context.Context) <-chan Event {
	ch := make(chan Event, 100)
	s.mu.Lock()
	s.events = ch
	s.mu.Unlock()

	go func() {
		defer close(ch)
		sum, err := s.Run(ctx)
		ch <- CompletedEvent{Summary: sum, Err: err}
	}()
	return ch
}

// Run executes the session. See Start for the error contract.
func (s *Session) Run(ctx context.Context) (*Summary, error) {
	if err := s.transition(Running); err != nil {
		return nil, err
	}
	sum := &Summary{
		ID:        s.id,
		Root:      s.root,
		Basis:     s.opts.Basis,
		Hardlinks: s.opts.Hardlinks,
		Started:   time.Now(),
	}
	s.logger.Info("scan started", "session", s.id, "root", s.root)

	cfg := s.opts.traverseConfig()
	sel := s.selector.Select(s.root, s.opts.Strategy, s.opts.Legacy, cfg)
	sum.Strategy = sel.Strategy.Descriptor().ID
	info := sel.Probe
	if info == (probe.Info{}) {
		// Overrides skip detection.
		info, _ = probe.Detect(s.root)
	}
	if info != (probe.Info{}) {
		sum.Filesystem = info.Kind.String()
		sum.VolumeTotal, sum.VolumeFree = info.TotalBytes, info.FreeBytes
	}
	s.emit(StrategySelectedEvent{Strategy: string(sum.Strategy), Filesystem: sum.Filesystem})

	throttle := progress.New(s.opts.ProgressInterval, s.opts.ProgressBytes, s.notify)
	res, walkErr := s.walk(ctx, sel.Strategy, cfg, throttle)

	var fatal error
	aborted := false
	switch {
	case walkErr == nil:
	case ctx.Err() != nil && errors.Is(walkErr, ctx.Err()):
		aborted = true
		sum.Cause = context.Cause(ctx).Error()
	default:
		aborted = true
		sum.Cause = walkErr.Error()
		fatal = fmt.Errorf("%w: %v", ErrFatal, walkErr)
	}
	if !aborted {
		if err := s.transition(Completing); err != nil {
			return nil, err
		}
	}

	errs := append(sel.Warnings, res.Errors...)
	if s.opts.Parity && !aborted && sum.Strategy != traverse.Legacy {
		report, err := s.parity(ctx, cfg, res.Totals)
		switch {
		case err != nil:
			s.logger.Warn("parity rerun failed", "session", s.id, "error", err)
		case !report.Within:
			e := model.NewScanError(s.root, fmt.Errorf("totals differ from legacy walk by %d bytes (tolerance %d)",
				report.Delta, report.Tolerance), model.Warning)
			e.Code = model.CodeParityMismatch
			errs = append(errs, e)
			sum.Parity = &report
		default:
			sum.Parity = &report
		}
	}

	throttle.Finish()
	sum.Progress = throttle.Snapshots()
	sum.Entries = res.Entries
	sum.Totals = res.Totals
	sum.Errors = errs
	sum.Skipped = model.CountWarnings(errs)
	sum.Finished = time.Now()
	if sum.Finished.Before(sum.Started) {
		sum.Finished = sum.Started
	}

	final := Completed
	if aborted {
		final = Aborted
	}
	if err := s.transition(final); err != nil {
		return nil, err
	}
	sum.Status = final

	s.logger.Info("scan finished",
		"session", s.id,
		"status", final,
		"strategy", sum.Strategy,
		"bytes", sum.Totals.Bytes,
		"files", sum.Totals.Files,
		"dirs", sum.Totals.Dirs,
		"errors", len(errs),
		"flushed", res.Flushed,
		"peak_pending", res.Peak,
		"elapsed", sum.Duration())
	return sum, fatal
}

// walk runs one strategy into per-partition aggregators and merges them.
func (s *Session) walk(ctx context.Context, st traverse.Strategy, cfg traverse.Config, rec aggregate.Recorder) (aggregate.Result, error) {
	acfg := aggregate.Config{
		Basis:    s.opts.Basis,
		Policy:   s.opts.Hardlinks,
		Dedup:    aggregate.NewDedupSet(s.opts.DedupThreshold, 0),
		Progress: rec,
	}

	var (
		mu   sync.Mutex
		aggs []*aggregate.Aggregator
	)
	err := st.Walk(ctx, s.root, cfg, func() traverse.Visitor {
		a := aggregate.New(acfg)
		mu.Lock()
		aggs = append(aggs, a)
		mu.Unlock()
		return a
	})

	parts := make([]*aggregate.Partial, len(aggs))
	for i, a := range aggs {
		parts[i] = a.Finish()
	}
	if stats := acfg.Dedup.Stats(); stats.Evictions > 0 {
		s.logger.Debug("hardlink set overflowed", "session", s.id, "evictions", stats.Evictions)
	}
	return aggregate.Finalize(aggregate.Merge(parts...)), err
}

// parity reruns the walk with the legacy strategy and compares byte totals.
func (s *Session) parity(ctx context.Context, cfg traverse.Config, got model.Totals) (ParityReport, error) {
	legacy, err := s.walk(ctx, traverse.NewLegacy(), cfg, nil)
	if err != nil {
		return ParityReport{}, err
	}
	report := compareParity(got, legacy.Totals)
	s.logger.Debug("parity check", "session", s.id, "delta", report.Delta, "tolerance", report.Tolerance)
	return report, nil
}

func (s *Session) transition(to Status) error {
	s.mu.Lock()
	from := s.status
	if !from.canMoveTo(to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s, cannot become %s", ErrInvalidInput, from, to)
	}
	s.status = to
	s.mu.Unlock()

	s.logger.Debug("session status", "session", s.id, "from", from, "to", to)
	s.emit(StatusChangedEvent{From: from, To: to})
	return nil
}

func (s *Session) notify(snap model.ProgressSnapshot) {
	if s.opts.Notifier != nil {
		s.opts.Notifier(snap)
	}
	s.mu.RLock()
	ch := s.events
	s.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ProgressEvent{Snapshot: snap}:
	default:
	}
}

func (s *Session) emit(e Event) {
	s.mu.RLock()
	ch := s.events
	s.mu.RUnlock()
	if ch != nil {
		ch <- e
	}
}
