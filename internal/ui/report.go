package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/session"
)

const (
	maxPathWidth     = 70
	defaultMaxErrors = 5
)

// ErrPathNotFound is returned when a report is asked for a directory the
// summary does not contain.
var ErrPathNotFound = errors.New("path not in scan results")

// ReportOptions controls WriteReport.
type ReportOptions struct {
	// Path is the directory whose children are listed; empty means the root.
	Path string
	Key  model.SortKey
	// Top limits the first level of rows; 0 shows all.
	Top int
	// Preview nests children under dominant rows; nil lists one level.
	Preview Preview
	// MaxErrors limits the listed errors; 0 uses a default, negative lists all.
	MaxErrors int
}

type row struct {
	entry  model.DirectoryEntry
	indent int
}

// WriteReport renders a ranked table of the subdirectories of opts.Path.
func WriteReport(w io.Writer, sum *session.Summary, opts ReportOptions) error {
	base, err := resolve(sum, opts.Path)
	if err != nil {
		return err
	}

	children := make(map[string][]model.DirectoryEntry)
	for _, e := range sum.Entries {
		if e.Path != sum.Root {
			children[e.Parent] = append(children[e.Parent], e)
		}
	}

	var rows []row
	var walk func(parent model.DirectoryEntry, depth, limit int)
	walk = func(parent model.DirectoryEntry, depth, limit int) {
		ranked := model.Top(children[parent.Path], opts.Key, limit)
		for i, e := range ranked {
			rows = append(rows, row{entry: e, indent: depth})
			p := opts.Preview
			if p == nil || depth >= p.MaxDepth() || !p.Expand(e, parent.SizeBytes, i+1, depth) {
				continue
			}
			walk(e, depth+1, p.MaxChildren())
		}
	}
	walk(base, 0, opts.Top)

	fmt.Fprintln(w, header(sum, base))
	if sum.Status == session.Aborted {
		fmt.Fprintln(w, WarningStyle.Render("scan aborted: "+sum.Cause+" (results are partial)"))
	}
	fmt.Fprintln(w)

	if len(rows) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No subdirectories."))
	} else {
		width := 4
		for _, r := range rows {
			width = max(width, min(len(display(r.entry))+2*r.indent, maxPathWidth))
		}
		fmt.Fprintln(w, HeaderRowStyle.Render(fmt.Sprintf("%-*s %10s %8s %6s", width, "Path", "Size", "Files", "%")))
		fmt.Fprintln(w, MutedStyle.Render(strings.Repeat("─", width+28)))
		for _, r := range rows {
			pct := sum.Share(r.entry)
			name := strings.Repeat("  ", r.indent) + display(r.entry)
			line := fmt.Sprintf("%-*s %10s %8s %5.1f%%", width, name,
				FormatSize(r.entry.SizeBytes), humanize.Comma(r.entry.FileCount), pct)
			if r.entry.Errored {
				line += " !"
			}
			fmt.Fprintln(w, shareStyle(pct).Render(line))
		}
	}

	writeErrors(w, sum.Errors, opts.MaxErrors)
	return nil
}

func resolve(sum *session.Summary, path string) (model.DirectoryEntry, error) {
	if path == "" {
		path = sum.Root
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(sum.Root, path)
	}
	e, ok := model.Find(sum.Entries, filepath.Clean(path))
	if !ok {
		return model.DirectoryEntry{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return e, nil
}

func header(sum *session.Summary, base model.DirectoryEntry) string {
	title := TitleStyle.Render(fmt.Sprintf("%s (%s)", base.Path, FormatSize(base.SizeBytes)))
	parts := []string{
		humanize.Comma(sum.Totals.Files) + " files",
		humanize.Comma(sum.Totals.Dirs) + " dirs",
		string(sum.Strategy),
		sum.Basis.String(),
	}
	if sum.Filesystem != "" {
		parts = append(parts, sum.Filesystem)
	}
	if sum.VolumeTotal > 0 {
		parts = append(parts, fmt.Sprintf("%s free of %s", FormatSize(sum.VolumeFree), FormatSize(sum.VolumeTotal)))
	}
	if !sum.Finished.IsZero() {
		parts = append(parts, fmt.Sprintf("%s in %s", sum.Status, sum.Duration().Round(time.Millisecond)))
	}
	return title + " " + StatsStyle.Render(strings.Join(parts, " · "))
}

// display appends a separator so directories read as directories.
func display(e model.DirectoryEntry) string {
	p := e.Path
	if !strings.HasSuffix(p, string(filepath.Separator)) {
		p += string(filepath.Separator)
	}
	return p
}

func writeErrors(w io.Writer, errs []model.ScanError, limit int) {
	if len(errs) == 0 {
		return
	}
	if limit == 0 {
		limit = defaultMaxErrors
	}
	skipped := model.CountWarnings(errs)
	fmt.Fprintln(w)
	fmt.Fprintln(w, ErrorStyle.Render(fmt.Sprintf("Errors encountered: %d (%d skipped)", len(errs), skipped)))
	shown := errs
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, e := range shown {
		style := WarningStyle
		if e.Severity == model.Critical {
			style = ErrorStyle
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("  [%s] %s: %s", e.Code, e.Path, e.Message)))
	}
	if rest := len(errs) - len(shown); rest > 0 {
		fmt.Fprintln(w, MutedStyle.Render(fmt.Sprintf("  ... and %d more", rest)))
	}
}

// JSONReport is the machine-readable form of a report.
type JSONReport struct {
	ID          string                 `json:"id,omitempty"`
	Root        string                 `json:"root"`
	Path        string                 `json:"path"`
	Status      session.Status         `json:"status"`
	Strategy    string                 `json:"strategy"`
	Filesystem  string                 `json:"filesystem,omitempty"`
	VolumeTotal int64                  `json:"volume_total_bytes,omitempty"`
	VolumeFree  int64                  `json:"volume_free_bytes,omitempty"`
	Basis       string                 `json:"size_basis"`
	Hardlinks   string                 `json:"hardlink_policy"`
	ElapsedMS   int64                  `json:"elapsed_ms"`
	Totals      model.Totals           `json:"totals"`
	Entries     []model.DirectoryEntry `json:"entries"`
	Skipped     int                    `json:"skipped"`
	ErrorCount  int                    `json:"error_count"`
	Errors      []model.ScanError      `json:"errors"`
	Cause       string                 `json:"cause,omitempty"`
	Parity      *session.ParityReport  `json:"parity,omitempty"`
}

// NewJSONReport lists the ranked children of path, or of the root.
func NewJSONReport(sum *session.Summary, path string, key model.SortKey, top int) (JSONReport, error) {
	base, err := resolve(sum, path)
	if err != nil {
		return JSONReport{}, err
	}
	entries := sum.Children(base.Path, key, top)
	if entries == nil {
		entries = []model.DirectoryEntry{}
	}
	errs := sum.Errors
	if errs == nil {
		errs = []model.ScanError{}
	}
	return JSONReport{
		ID:          sum.ID,
		Root:        sum.Root,
		Path:        base.Path,
		Status:      sum.Status,
		Strategy:    string(sum.Strategy),
		Filesystem:  sum.Filesystem,
		VolumeTotal: sum.VolumeTotal,
		VolumeFree:  sum.VolumeFree,
		Basis:       sum.Basis.String(),
		Hardlinks:   sum.Hardlinks.String(),
		ElapsedMS:   sum.Duration().Milliseconds(),
		Totals:      sum.Totals,
		Entries:     entries,
		Skipped:     sum.Skipped,
		ErrorCount:  len(sum.Errors),
		Errors:      errs,
		Cause:       sum.Cause,
		Parity:      sum.Parity,
	}, nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}
	return nil
}
