package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/lumipallolabs/dirsize/internal/snapshot"
)

// DiffOptions controls WriteDiff.
type DiffOptions struct {
	// Top limits the listed changes; 0 shows all.
	Top int
}

// WriteDiff renders the changes between two snapshots of the same root.
func WriteDiff(w io.Writer, before, after snapshot.Meta, changes []snapshot.Change, opts DiffOptions) error {
	fmt.Fprintln(w, TitleStyle.Render(after.Root)+" "+StatsStyle.Render(fmt.Sprintf("%s → %s",
		before.Finished.Local().Format("2006-01-02 15:04:05"),
		after.Finished.Local().Format("2006-01-02 15:04:05"))))

	total := after.Totals.Bytes - before.Totals.Bytes
	fmt.Fprintln(w, StatsStyle.Render(fmt.Sprintf("%s → %s (%s)",
		FormatSize(before.Totals.Bytes), FormatSize(after.Totals.Bytes), FormatDelta(total))))
	fmt.Fprintln(w)

	if len(changes) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No changes."))
		return nil
	}
	shown := changes
	if opts.Top > 0 && len(shown) > opts.Top {
		shown = shown[:opts.Top]
	}

	width := 4
	for _, c := range shown {
		width = max(width, min(len(c.Path), maxPathWidth))
	}
	fmt.Fprintln(w, HeaderRowStyle.Render(fmt.Sprintf("%-*s %12s %10s", width, "Path", "Change", "Now")))
	fmt.Fprintln(w, MutedStyle.Render(strings.Repeat("─", width+24)))
	for _, c := range shown {
		line := fmt.Sprintf("%-*s %12s %10s", width, c.Path, FormatDelta(c.Delta()), FormatSize(c.After))
		switch {
		case c.New:
			fmt.Fprintln(w, NewBadge.Render(line+" new"))
		case c.Deleted:
			fmt.Fprintln(w, ShrunkStyle.Render(line+" deleted"))
		case c.Delta() > 0:
			fmt.Fprintln(w, GrewStyle.Render(line))
		default:
			fmt.Fprintln(w, ShrunkStyle.Render(line))
		}
	}
	if rest := len(changes) - len(shown); rest > 0 {
		fmt.Fprintln(w, MutedStyle.Render(fmt.Sprintf("... and %d more", rest)))
	}
	return nil
}
