// Package snapshot persists session summaries as single-schema parquet files.
//
// Every row carries a kind discriminator ("entry", "meta" or "error") and
// only the columns of its kind are set; the rest are null. Readers decode
// just the columns they need, and columns added by later versions are
// ignored by older readers while missing columns read as absent.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/session"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// FormatVersion is written to every snapshot. Readers reject newer versions.
const FormatVersion = 1

const (
	kindEntry = "entry"
	kindMeta  = "meta"
	kindError = "error"

	keyVersion = "dirsize.format_version"
	keySession = "dirsize.session_id"
)

var (
	// ErrCorrupt reports a snapshot that cannot be decoded or fails validation.
	ErrCorrupt = errors.New("snapshot corrupt")
	// ErrNoMetadata reports a snapshot without its meta row.
	ErrNoMetadata = fmt.Errorf("%w: no metadata found", ErrCorrupt)
)

// row is the full on-disk schema.
type row struct {
	Kind string `parquet:"kind,dict"`

	Path      *string `parquet:"path,optional"`
	Parent    *string `parquet:"parent_path,optional"`
	Depth     *int32  `parquet:"depth,optional"`
	SizeBytes *int64  `parquet:"size_bytes,optional"`
	FileCount *int64  `parquet:"file_count,optional"`
	DirCount  *int64  `parquet:"dir_count,optional"`
	Errored   *bool   `parquet:"errored,optional"`

	Version    *int32  `parquet:"meta_version,optional"`
	SessionID  *string `parquet:"meta_session_id,optional"`
	Root       *string `parquet:"meta_root,optional"`
	Strategy   *string `parquet:"meta_strategy,optional"`
	Filesystem *string `parquet:"meta_filesystem,optional"`
	Status     *string `parquet:"meta_status,optional"`
	Basis      *string `parquet:"meta_size_basis,optional"`
	Hardlinks  *string `parquet:"meta_hardlink_policy,optional"`
	Started    *int64  `parquet:"meta_started_at,optional"`
	Finished   *int64  `parquet:"meta_finished_at,optional"`
	TotalBytes *int64  `parquet:"meta_total_bytes,optional"`
	TotalFiles *int64  `parquet:"meta_total_files,optional"`
	TotalDirs  *int64  `parquet:"meta_total_dirs,optional"`
	Entries    *int64  `parquet:"meta_entry_count,optional"`
	Errors     *int64  `parquet:"meta_error_count,optional"`
	Skipped    *int64  `parquet:"meta_skipped,optional"`
	Cause      *string `parquet:"meta_cause,optional"`
	VolTotal   *int64  `parquet:"meta_volume_total_bytes,optional"`
	VolFree    *int64  `parquet:"meta_volume_free_bytes,optional"`

	ErrPath     *string `parquet:"error_path,optional"`
	ErrCode     *string `parquet:"error_code,optional,dict"`
	ErrSeverity *string `parquet:"error_severity,optional,dict"`
	ErrMessage  *string `parquet:"error_message,optional"`
	ErrTime     *int64  `parquet:"error_time,optional"`
}

// entryRow, metaRow and errorRow are the column subsets each reader decodes.
type entryRow struct {
	Kind      string  `parquet:"kind"`
	Path      *string `parquet:"path,optional"`
	Parent    *string `parquet:"parent_path,optional"`
	Depth     *int32  `parquet:"depth,optional"`
	SizeBytes *int64  `parquet:"size_bytes,optional"`
	FileCount *int64  `parquet:"file_count,optional"`
	DirCount  *int64  `parquet:"dir_count,optional"`
	Errored   *bool   `parquet:"errored,optional"`
}

type metaRow struct {
	Kind       string  `parquet:"kind"`
	Version    *int32  `parquet:"meta_version,optional"`
	SessionID  *string `parquet:"meta_session_id,optional"`
	Root       *string `parquet:"meta_root,optional"`
	Strategy   *string `parquet:"meta_strategy,optional"`
	Filesystem *string `parquet:"meta_filesystem,optional"`
	Status     *string `parquet:"meta_status,optional"`
	Basis      *string `parquet:"meta_size_basis,optional"`
	Hardlinks  *string `parquet:"meta_hardlink_policy,optional"`
	Started    *int64  `parquet:"meta_started_at,optional"`
	Finished   *int64  `parquet:"meta_finished_at,optional"`
	TotalBytes *int64  `parquet:"meta_total_bytes,optional"`
	TotalFiles *int64  `parquet:"meta_total_files,optional"`
	TotalDirs  *int64  `parquet:"meta_total_dirs,optional"`
	Entries    *int64  `parquet:"meta_entry_count,optional"`
	Errors     *int64  `parquet:"meta_error_count,optional"`
	Skipped    *int64  `parquet:"meta_skipped,optional"`
	Cause      *string `parquet:"meta_cause,optional"`
	VolTotal   *int64  `parquet:"meta_volume_total_bytes,optional"`
	VolFree    *int64  `parquet:"meta_volume_free_bytes,optional"`
}

type errorRow struct {
	Kind        string  `parquet:"kind"`
	ErrPath     *string `parquet:"error_path,optional"`
	ErrCode     *string `parquet:"error_code,optional"`
	ErrSeverity *string `parquet:"error_severity,optional"`
	ErrMessage  *string `parquet:"error_message,optional"`
	ErrTime     *int64  `parquet:"error_time,optional"`
}

// Meta is the session-level record of a snapshot.
type Meta struct {
	Version    int
	SessionID  string
	Root       string
	Strategy   traverse.ID
	Filesystem string
	Status     session.Status
	Basis      model.SizeBasis
	Hardlinks  model.HardlinkPolicy
	Started    time.Time
	Finished   time.Time
	Totals     model.Totals
	Entries    int
	Errors     int
	Skipped    int
	Cause      string
	// VolumeTotal and VolumeFree are zero in snapshots written before they
	// were recorded.
	VolumeTotal int64
	VolumeFree  int64
}

func ptr[T any](v T) *T { return &v }

func val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func unixNano(p *int64) time.Time {
	if p == nil {
		return time.Time{}
	}
	return time.Unix(0, *p).UTC()
}

// Write encodes s to w.
func Write(w io.Writer, s *session.Summary) error {
	pw := parquet.NewGenericWriter[row](w,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(keyVersion, strconv.Itoa(FormatVersion)),
		parquet.KeyValueMetadata(keySession, s.ID),
	)

	rows := make([]row, 0, len(s.Entries)+len(s.Errors)+1)
	rows = append(rows, row{
		Kind:       kindMeta,
		Version:    ptr(int32(FormatVersion)),
		SessionID:  ptr(s.ID),
		Root:       ptr(s.Root),
		Strategy:   ptr(string(s.Strategy)),
		Filesystem: ptr(s.Filesystem),
		Status:     ptr(s.Status.String()),
		Basis:      ptr(s.Basis.String()),
		Hardlinks:  ptr(s.Hardlinks.String()),
		Started:    ptr(s.Started.UnixNano()),
		Finished:   ptr(s.Finished.UnixNano()),
		TotalBytes: ptr(s.Totals.Bytes),
		TotalFiles: ptr(s.Totals.Files),
		TotalDirs:  ptr(s.Totals.Dirs),
		Entries:    ptr(int64(len(s.Entries))),
		Errors:     ptr(int64(len(s.Errors))),
		Skipped:    ptr(int64(s.Skipped)),
		Cause:      ptr(s.Cause),
		VolTotal:   ptr(s.VolumeTotal),
		VolFree:    ptr(s.VolumeFree),
	})
	for _, e := range s.Entries {
		rows = append(rows, row{
			Kind:      kindEntry,
			Path:      ptr(e.Path),
			Parent:    ptr(e.Parent),
			Depth:     ptr(int32(e.Depth)),
			SizeBytes: ptr(e.SizeBytes),
			FileCount: ptr(e.FileCount),
			DirCount:  ptr(e.DirCount),
			Errored:   ptr(e.Errored),
		})
	}
	for _, e := range s.Errors {
		rows = append(rows, row{
			Kind:        kindError,
			ErrPath:     ptr(e.Path),
			ErrCode:     ptr(string(e.Code)),
			ErrSeverity: ptr(e.Severity.String()),
			ErrMessage:  ptr(e.Message),
			ErrTime:     ptr(e.Time.UnixNano()),
		})
	}

	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// WriteFile writes s to path, replacing any existing file only once the new
// one is complete.
func WriteFile(path string, s *session.Summary) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// readRows opens path, validates the container and decodes rows of type T.
func readRows[T any](path string) (rows []T, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	// Malformed pages can panic inside the decoder.
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, r)
		}
	}()

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	v, ok := pf.Lookup(keyVersion)
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing format version", ErrCorrupt, path)
	}
	if n, err := strconv.Atoi(v); err != nil || n > FormatVersion || n < 1 {
		return nil, fmt.Errorf("%w: %s: unsupported format version %q", ErrCorrupt, path, v)
	}

	rows, err = parquet.Read[T](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return rows, nil
}

// ReadMeta decodes only the meta columns of path.
func ReadMeta(path string) (Meta, error) {
	rows, err := readRows[metaRow](path)
	if err != nil {
		return Meta{}, err
	}
	var (
		m     Meta
		found int
	)
	for _, r := range rows {
		if r.Kind != kindMeta {
			continue
		}
		found++
		m, err = metaFrom(r)
		if err != nil {
			return Meta{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
	}
	switch found {
	case 0:
		return Meta{}, fmt.Errorf("%w: %s", ErrNoMetadata, path)
	case 1:
		return m, nil
	default:
		return Meta{}, fmt.Errorf("%w: %s: %d meta rows", ErrCorrupt, path, found)
	}
}

func metaFrom(r metaRow) (Meta, error) {
	m := Meta{
		Version:    int(val(r.Version)),
		SessionID:  val(r.SessionID),
		Root:       val(r.Root),
		Strategy:   traverse.ID(val(r.Strategy)),
		Filesystem: val(r.Filesystem),
		Started:    unixNano(r.Started),
		Finished:   unixNano(r.Finished),
		Totals: model.Totals{
			Bytes: val(r.TotalBytes),
			Files: val(r.TotalFiles),
			Dirs:  val(r.TotalDirs),
		},
		Entries: int(val(r.Entries)),
		Errors:  int(val(r.Errors)),
		Skipped: int(val(r.Skipped)),
		Cause:   val(r.Cause),

		VolumeTotal: val(r.VolTotal),
		VolumeFree:  val(r.VolFree),
	}
	if m.Root == "" {
		return Meta{}, errors.New("meta row without root")
	}
	var ok bool
	if m.Status, ok = session.ParseStatus(val(r.Status)); !ok {
		return Meta{}, fmt.Errorf("unknown status %q", val(r.Status))
	}
	if m.Basis, ok = model.ParseSizeBasis(val(r.Basis)); !ok {
		return Meta{}, fmt.Errorf("unknown size basis %q", val(r.Basis))
	}
	if m.Hardlinks, ok = model.ParseHardlinkPolicy(val(r.Hardlinks)); !ok {
		return Meta{}, fmt.Errorf("unknown hardlink policy %q", val(r.Hardlinks))
	}
	return m, nil
}

// ReadEntries decodes only the entry columns of path, keeping the entries
// keep accepts. A nil keep accepts all.
func ReadEntries(path string, keep func(model.DirectoryEntry) bool) ([]model.DirectoryEntry, error) {
	rows, err := readRows[entryRow](path)
	if err != nil {
		return nil, err
	}
	var out []model.DirectoryEntry
	for _, r := range rows {
		if r.Kind != kindEntry {
			continue
		}
		if r.Path == nil {
			return nil, fmt.Errorf("%w: %s: entry row without path", ErrCorrupt, path)
		}
		e := model.DirectoryEntry{
			Path:      *r.Path,
			Parent:    val(r.Parent),
			Depth:     int(val(r.Depth)),
			SizeBytes: val(r.SizeBytes),
			FileCount: val(r.FileCount),
			DirCount:  val(r.DirCount),
			Errored:   val(r.Errored),
		}
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReadErrors decodes only the error columns of path.
func ReadErrors(path string) ([]model.ScanError, error) {
	rows, err := readRows[errorRow](path)
	if err != nil {
		return nil, err
	}
	var out []model.ScanError
	for _, r := range rows {
		if r.Kind != kindError {
			continue
		}
		sev, ok := model.ParseSeverity(val(r.ErrSeverity))
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown severity %q", ErrCorrupt, path, val(r.ErrSeverity))
		}
		out = append(out, model.ScanError{
			Path:     val(r.ErrPath),
			Code:     model.ErrorCode(val(r.ErrCode)),
			Severity: sev,
			Message:  val(r.ErrMessage),
			Time:     unixNano(r.ErrTime),
		})
	}
	return out, nil
}

// Read reconstructs the summary stored in path without touching the
// filesystem it describes. Progress snapshots are not persisted, and times
// come back in UTC without a monotonic reading, so compare them with
// time.Time.Equal.
func Read(path string) (*session.Summary, error) {
	m, err := ReadMeta(path)
	if err != nil {
		return nil, err
	}
	entries, err := ReadEntries(path, nil)
	if err != nil {
		return nil, err
	}
	errs, err := ReadErrors(path)
	if err != nil {
		return nil, err
	}
	if len(entries) != m.Entries {
		return nil, fmt.Errorf("%w: %s: %d entries, meta says %d", ErrCorrupt, path, len(entries), m.Entries)
	}
	if len(errs) != m.Errors {
		return nil, fmt.Errorf("%w: %s: %d errors, meta says %d", ErrCorrupt, path, len(errs), m.Errors)
	}

	return &session.Summary{
		ID:          m.SessionID,
		Root:        m.Root,
		Strategy:    m.Strategy,
		Filesystem:  m.Filesystem,
		VolumeTotal: m.VolumeTotal,
		VolumeFree:  m.VolumeFree,
		Status:      m.Status,
		Basis:       m.Basis,
		Hardlinks:   m.Hardlinks,
		Started:     m.Started,
		Finished:    m.Finished,
		Totals:      m.Totals,
		Entries:     entries,
		Errors:      errs,
		Skipped:     m.Skipped,
		Cause:       m.Cause,
	}, nil
}
